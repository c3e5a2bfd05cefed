package system

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"go-ops/internal/features/queue"
)

// ProgressController streams queue progress over a websocket. It polls the
// queue status and pushes a frame whenever something changed, closing once
// the queue reaches a terminal state.
type ProgressController struct {
	Queues queue.QueueService
	Logger *zap.Logger
}

func NewProgressController(queues queue.QueueService, logger *zap.Logger) *ProgressController {
	return &ProgressController{
		Queues: queues,
		Logger: logger,
	}
}

type progressFrame struct {
	QueueID        string           `json:"queue_id"`
	State          queue.QueueState `json:"state"`
	Progress       int              `json:"progress"`
	TotalCount     int              `json:"total_count"`
	DoneCount      int              `json:"done_count"`
	FailedCount    int              `json:"failed_count"`
	CancelledCount int              `json:"cancelled_count"`
	IsProcessing   bool             `json:"is_processing"`
	Final          bool             `json:"final"`
}

func (h *ProgressController) HandleProgress(c *websocket.Conn) {
	tenantID, err := primitive.ObjectIDFromHex(c.Params("tenant"))
	if err != nil {
		c.WriteJSON(map[string]string{"error": "invalid tenant id"})
		return
	}
	queueID, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		c.WriteJSON(map[string]string{"error": "invalid queue id"})
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last progressFrame
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		status, err := h.Queues.Status(ctx, tenantID, queueID)
		cancel()
		if err != nil {
			c.WriteJSON(map[string]string{"error": "queue not found"})
			return
		}

		q := status.Queue
		frame := progressFrame{
			QueueID:        q.ID.Hex(),
			State:          q.State,
			Progress:       status.Progress,
			TotalCount:     q.TotalCount,
			DoneCount:      q.DoneCount,
			FailedCount:    q.FailedCount,
			CancelledCount: q.CancelledCount,
			IsProcessing:   q.IsProcessing,
			Final:          q.State.IsTerminal() && !q.IsProcessing,
		}

		if frame != last {
			if err := c.WriteJSON(frame); err != nil {
				h.Logger.Debug("progress client went away", zap.Error(err))
				return
			}
			last = frame
		}

		if frame.Final {
			return
		}
	}
}
