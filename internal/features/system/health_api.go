package system

import (
	"github.com/gofiber/fiber/v2"

	"go-ops/internal/common/api"
	"go-ops/internal/config"
	"go-ops/internal/database"
)

type HealthApi struct {
	db     *database.MongodbDB
	config *config.Config
}

func NewHealthApi(db *database.MongodbDB, config *config.Config) api.Route {
	return &HealthApi{
		db:     db,
		config: config,
	}
}

func (h *HealthApi) Setup(app *fiber.App) {
	app.Get("/api/health", func(c *fiber.Ctx) error {
		dbOK := h.db.DB.Client().Ping(c.Context(), nil) == nil
		status := "ok"
		code := fiber.StatusOK
		if !dbOK {
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":      status,
			"database":    dbOK,
			"environment": h.config.Environment,
		})
	})
}
