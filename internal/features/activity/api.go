package activity

import (
	"go-ops/internal/common/api"
	"go-ops/internal/config"
	"go-ops/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ActivityApi struct {
	controller *ActivityController
	config     *config.Config
}

func NewActivityApi(controller *ActivityController, config *config.Config) api.Route {
	return &ActivityApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the activity routes
func (h *ActivityApi) Setup(app *fiber.App) {
	group := app.Group("/api/queues", middleware.AuthMiddleware(h.config.SkipAuth), middleware.TenantMiddleware())

	group.Get("/:id/activity", h.controller.GetQueueActivity)
}
