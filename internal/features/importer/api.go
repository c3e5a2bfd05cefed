package importer

import (
	"github.com/gofiber/fiber/v2"

	"go-ops/internal/common/api"
	"go-ops/internal/config"
	"go-ops/internal/middleware"
)

type ImportApi struct {
	controller *ImportController
	config     *config.Config
}

func NewImportApi(controller *ImportController, config *config.Config) api.Route {
	return &ImportApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the import route
func (h *ImportApi) Setup(app *fiber.App) {
	group := app.Group("/api/queues",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantMiddleware())

	group.Post("/:id/import", h.controller.ImportFile)
}
