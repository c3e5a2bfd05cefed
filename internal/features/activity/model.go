package activity

import (
	"time"

	common_models "go-ops/internal/common/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entry is one immutable record in the sync activity trail. Entries are only
// ever inserted; nothing in the engine reads them back to drive control flow.
type Entry struct {
	ID        primitive.ObjectID           `json:"id" bson:"_id,omitempty"`
	TenantID  primitive.ObjectID           `json:"tenant_id" bson:"tenant_id"`
	QueueID   primitive.ObjectID           `json:"queue_id" bson:"queue_id"`
	LineID    *primitive.ObjectID          `json:"line_id,omitempty" bson:"line_id,omitempty"`
	Type      common_models.ActivityType   `json:"type" bson:"type"`
	Status    common_models.ActivityStatus `json:"status" bson:"status"`
	Message   string                       `json:"message" bson:"message"`
	Details   bson.M                       `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt time.Time                    `json:"created_at" bson:"created_at"`
}
