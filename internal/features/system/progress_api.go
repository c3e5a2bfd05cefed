package system

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"go-ops/internal/common/api"
)

type ProgressApi struct {
	Controller *ProgressController
}

func NewProgressApi(controller *ProgressController) api.Route {
	return &ProgressApi{
		Controller: controller,
	}
}

func (h *ProgressApi) Setup(app *fiber.App) {
	app.Get("/ws/:tenant/queues/:id/progress", websocket.New(h.Controller.HandleProgress))
}
