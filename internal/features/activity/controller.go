package activity

import (
	"strconv"

	"go-ops/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActivityController struct {
	Repo ActivityRepository
}

func NewActivityController(repo ActivityRepository) *ActivityController {
	return &ActivityController{
		Repo: repo,
	}
}

func (ctrl *ActivityController) GetQueueActivity(c *fiber.Ctx) error {
	queueID, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid queue id",
		})
	}

	tenantID, err := primitive.ObjectIDFromHex(middleware.TenantID(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid tenant",
		})
	}

	limit, _ := strconv.ParseInt(c.Query("limit", "100"), 10, 64)

	entries, err := ctrl.Repo.List(c.Context(), tenantID, queueID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": entries,
	})
}
