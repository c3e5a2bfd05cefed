package queue

import (
	"github.com/gofiber/fiber/v2"

	"go-ops/internal/common/api"
	"go-ops/internal/config"
	"go-ops/internal/middleware"
)

type QueueApi struct {
	controller *QueueController
	config     *config.Config
}

func NewQueueApi(controller *QueueController, config *config.Config) api.Route {
	return &QueueApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers all queue routes
func (h *QueueApi) Setup(app *fiber.App) {
	group := app.Group("/api/queues",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantMiddleware())

	group.Post("/", h.controller.CreateQueue)
	group.Get("/", h.controller.ListQueues)
	group.Post("/sync", h.controller.SyncFromConnector)
	group.Post("/cleanup", h.controller.Cleanup)

	group.Post("/:id/lines", h.controller.AddLines)
	group.Get("/:id/lines", h.controller.ListLines)
	group.Post("/:id/start", h.controller.StartQueue)
	group.Get("/:id/status", h.controller.QueueStatus)
	group.Post("/:id/retry", h.controller.RetryFailed)
	group.Post("/:id/force-done", h.controller.ForceDone)
}
