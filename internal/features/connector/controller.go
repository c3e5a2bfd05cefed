package connector

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"go-ops/internal/middleware"
)

type ConnectorController struct {
	Service *ConnectorService
}

func NewConnectorController(service *ConnectorService) *ConnectorController {
	return &ConnectorController{
		Service: service,
	}
}

func (ctrl *ConnectorController) CreateConnector(c *fiber.Ctx) error {
	var setting Setting
	if err := c.BodyParser(&setting); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	tenantID, err := primitive.ObjectIDFromHex(middleware.TenantID(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid tenant",
		})
	}
	setting.TenantID = tenantID

	created, err := ctrl.Service.Create(c.Context(), &setting)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Connector created successfully",
		"data":    created,
	})
}

func (ctrl *ConnectorController) ListConnectors(c *fiber.Ctx) error {
	tenantID, err := primitive.ObjectIDFromHex(middleware.TenantID(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid tenant",
		})
	}

	settings, err := ctrl.Service.List(c.Context(), tenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": settings,
	})
}

func (ctrl *ConnectorController) GetConnector(c *fiber.Ctx) error {
	tenantID, id, err := parseIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	setting, err := ctrl.Service.Get(c.Context(), tenantID, id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Connector not found",
		})
	}

	return c.JSON(setting)
}

func (ctrl *ConnectorController) UpdateConnector(c *fiber.Ctx) error {
	tenantID, id, err := parseIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var updates bson.M
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	delete(updates, "_id")
	delete(updates, "tenant_id")

	setting, err := ctrl.Service.Update(c.Context(), tenantID, id, updates)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Connector updated successfully",
		"data":    setting,
	})
}

func (ctrl *ConnectorController) DeleteConnector(c *fiber.Ctx) error {
	tenantID, id, err := parseIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := ctrl.Service.Delete(c.Context(), tenantID, id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Connector deleted successfully",
	})
}

func (ctrl *ConnectorController) TestConnector(c *fiber.Ctx) error {
	tenantID, id, err := parseIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	result, err := ctrl.Service.Test(c.Context(), tenantID, id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Connector not found",
		})
	}

	return c.JSON(fiber.Map{
		"data": result,
	})
}

func parseIDs(c *fiber.Ctx) (primitive.ObjectID, primitive.ObjectID, error) {
	tenantID, err := primitive.ObjectIDFromHex(middleware.TenantID(c))
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, errors.New("invalid tenant")
	}
	id, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, errors.New("invalid connector id")
	}
	return tenantID, id, nil
}
