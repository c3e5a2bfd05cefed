package connector

import (
	"github.com/gofiber/fiber/v2"

	"go-ops/internal/common/api"
	"go-ops/internal/config"
	"go-ops/internal/middleware"
)

type ConnectorApi struct {
	controller *ConnectorController
	config     *config.Config
}

func NewConnectorApi(controller *ConnectorController, config *config.Config) api.Route {
	return &ConnectorApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers all connector routes
func (h *ConnectorApi) Setup(app *fiber.App) {
	group := app.Group("/api/connectors",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantMiddleware())

	group.Post("/", h.controller.CreateConnector)
	group.Get("/", h.controller.ListConnectors)
	group.Get("/:id", h.controller.GetConnector)
	group.Put("/:id", h.controller.UpdateConnector)
	group.Delete("/:id", h.controller.DeleteConnector)
	group.Post("/:id/test", h.controller.TestConnector)
}
