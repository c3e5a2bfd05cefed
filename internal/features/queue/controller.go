package queue

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"go-ops/internal/config"
	"go-ops/internal/middleware"
)

type QueueController struct {
	Service QueueService
	Config  *config.Config
}

func NewQueueController(service QueueService, cfg *config.Config) *QueueController {
	return &QueueController{
		Service: service,
		Config:  cfg,
	}
}

func (ctrl *QueueController) CreateQueue(c *fiber.Ctx) error {
	var q Queue
	if err := c.BodyParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	tenantID, err := tenantFrom(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	q.TenantID = tenantID

	created, err := ctrl.Service.CreateQueue(c.Context(), &q)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Queue created successfully",
		"data":    created,
	})
}

func (ctrl *QueueController) ListQueues(c *fiber.Ctx) error {
	tenantID, err := tenantFrom(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	filter := ListFilter{
		State:  QueueState(c.Query("state")),
		Limit:  int64(c.QueryInt("limit", 50)),
		Offset: int64(c.QueryInt("offset", 0)),
	}

	queues, err := ctrl.Service.ListQueues(c.Context(), tenantID, filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"data": queues,
	})
}

func (ctrl *QueueController) AddLines(c *fiber.Ctx) error {
	tenantID, queueID, err := queueIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var body struct {
		Lines []LineInput `json:"lines"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(body.Lines) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No lines provided",
		})
	}

	inserted, err := ctrl.Service.AddLines(c.Context(), tenantID, queueID, body.Lines)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Queue not found"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"message":  "Lines enqueued",
		"inserted": inserted,
		"received": len(body.Lines),
	})
}

func (ctrl *QueueController) StartQueue(c *fiber.Ctx) error {
	tenantID, queueID, err := queueIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := ctrl.Service.Start(c.Context(), tenantID, queueID); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessing):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, mongo.ErrNoDocuments):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Queue not found"})
		}
		var ve *ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Queue processing started",
	})
}

func (ctrl *QueueController) QueueStatus(c *fiber.Ctx) error {
	tenantID, queueID, err := queueIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	status, err := ctrl.Service.Status(c.Context(), tenantID, queueID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Queue not found"})
	}

	return c.JSON(status)
}

func (ctrl *QueueController) ListLines(c *fiber.Ctx) error {
	tenantID, queueID, err := queueIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	lines, err := ctrl.Service.ListLines(c.Context(), tenantID, queueID,
		LineState(c.Query("state")), int64(c.QueryInt("limit", 100)))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Queue not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"data": lines,
	})
}

func (ctrl *QueueController) RetryFailed(c *fiber.Ctx) error {
	tenantID, queueID, err := queueIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	reset, err := ctrl.Service.RetryFailed(c.Context(), tenantID, queueID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessing):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, mongo.ErrNoDocuments):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Queue not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"message":     "Retry started",
		"reset_count": reset,
	})
}

func (ctrl *QueueController) ForceDone(c *fiber.Ctx) error {
	tenantID, queueID, err := queueIDs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cancelled, err := ctrl.Service.ForceDone(c.Context(), tenantID, queueID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessing):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, mongo.ErrNoDocuments):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Queue not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"message":         "Queue forced done",
		"cancelled_count": cancelled,
	})
}

func (ctrl *QueueController) SyncFromConnector(c *fiber.Ctx) error {
	tenantID, err := tenantFrom(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	var body struct {
		ConnectorID string            `json:"connector_id"`
		Name        string            `json:"name"`
		Params      map[string]string `json:"params"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	connectorID, err := primitive.ObjectIDFromHex(body.ConnectorID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid connector id"})
	}

	q, err := ctrl.Service.SyncFromConnector(c.Context(), tenantID, connectorID, body.Name, body.Params)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Connector not found"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Sync started",
		"data":    q,
	})
}

func (ctrl *QueueController) Cleanup(c *fiber.Ctx) error {
	days := c.QueryInt("retention_days", ctrl.Config.RetentionDays)
	if days <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "retention_days must be positive",
		})
	}

	deleted, err := ctrl.Service.Cleanup(c.Context(), days)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"message":       "Cleanup finished",
		"deleted_count": deleted,
	})
}

func tenantFrom(c *fiber.Ctx) (primitive.ObjectID, error) {
	tenantID, err := primitive.ObjectIDFromHex(middleware.TenantID(c))
	if err != nil {
		return primitive.NilObjectID, errors.New("invalid tenant")
	}
	return tenantID, nil
}

func queueIDs(c *fiber.Ctx) (primitive.ObjectID, primitive.ObjectID, error) {
	tenantID, err := tenantFrom(c)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, err
	}
	queueID, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, errors.New("invalid queue id")
	}
	return tenantID, queueID, nil
}
