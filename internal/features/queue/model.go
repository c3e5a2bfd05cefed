package queue

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type QueueState string

const (
	QueueDraft      QueueState = "draft"
	QueueProcessing QueueState = "processing"
	QueuePartial    QueueState = "partial"
	QueueDone       QueueState = "done"
	QueueFailed     QueueState = "failed"
	QueueCancelled  QueueState = "cancelled"
)

// IsTerminal reports whether the queue has finished its lifecycle. Terminal
// queues are eligible for retention cleanup.
func (s QueueState) IsTerminal() bool {
	switch s {
	case QueuePartial, QueueDone, QueueFailed, QueueCancelled:
		return true
	}
	return false
}

type LineState string

const (
	LineDraft      LineState = "draft"
	LineProcessing LineState = "processing"
	LineDone       LineState = "done"
	LineFailed     LineState = "failed"
	LineCancelled  LineState = "cancelled"
)

// CanTransition encodes the per-line state machine. Done and cancelled are
// locked; failed lines may only go back to draft (retry) or cancelled
// (force-done).
func (s LineState) CanTransition(to LineState) bool {
	switch s {
	case LineDraft:
		return to == LineProcessing || to == LineCancelled
	case LineProcessing:
		return to == LineDone || to == LineFailed
	case LineFailed:
		return to == LineDraft || to == LineCancelled
	}
	return false
}

// QueueConfig holds the per-queue processing knobs. Zero values are filled
// from the application defaults at create time.
type QueueConfig struct {
	BatchSize         int     `json:"batch_size" bson:"batch_size"`
	BatchDelayMs      int     `json:"batch_delay_ms" bson:"batch_delay_ms"`
	MaxRetries        int     `json:"max_retries" bson:"max_retries"`
	InitialBackoffMs  int     `json:"initial_backoff_ms" bson:"initial_backoff_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier" bson:"backoff_multiplier"`
	IdempotencyKey    string  `json:"idempotency_key" bson:"idempotency_key"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *QueueConfig) Validate() error {
	if c.BatchSize <= 0 {
		return &ValidationError{Field: "batch_size", Message: "must be greater than zero"}
	}
	if c.BatchDelayMs < 0 {
		return &ValidationError{Field: "batch_delay_ms", Message: "must not be negative"}
	}
	if c.MaxRetries < 0 {
		return &ValidationError{Field: "max_retries", Message: "must not be negative"}
	}
	if c.BackoffMultiplier < 1 {
		return &ValidationError{Field: "backoff_multiplier", Message: "must be at least 1"}
	}
	return nil
}

// Backoff returns the delay before the given attempt, growing geometrically.
func (c *QueueConfig) Backoff(attempt int) time.Duration {
	if c.InitialBackoffMs <= 0 {
		return 0
	}
	ms := float64(c.InitialBackoffMs) * math.Pow(c.BackoffMultiplier, float64(attempt))
	return time.Duration(ms) * time.Millisecond
}

type Queue struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID     primitive.ObjectID `json:"tenant_id" bson:"tenant_id"`
	Name         string             `json:"name" bson:"name"`
	SourceSystem string             `json:"source_system" bson:"source_system"`
	ConnectorID  primitive.ObjectID `json:"connector_id,omitempty" bson:"connector_id,omitempty"`
	Config       QueueConfig        `json:"config" bson:"config"`
	State        QueueState         `json:"state" bson:"state"`

	TotalCount     int `json:"total_count" bson:"total_count"`
	DraftCount     int `json:"draft_count" bson:"draft_count"`
	DoneCount      int `json:"done_count" bson:"done_count"`
	FailedCount    int `json:"failed_count" bson:"failed_count"`
	CancelledCount int `json:"cancelled_count" bson:"cancelled_count"`

	IsProcessing         bool   `json:"is_processing" bson:"is_processing"`
	IsActionRequired     bool   `json:"is_action_required" bson:"is_action_required"`
	ActionRequiredReason string `json:"action_required_reason,omitempty" bson:"action_required_reason,omitempty"`
	ProcessCount         int    `json:"process_count" bson:"process_count"`

	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updated_at"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty" bson:"last_processed_at,omitempty"`
}

// ProcessingCount is derived, never stored: lines claimed but not yet
// resolved.
func (q *Queue) ProcessingCount() int {
	n := q.TotalCount - q.DraftCount - q.DoneCount - q.FailedCount - q.CancelledCount
	if n < 0 {
		return 0
	}
	return n
}

// Progress reports percentage of lines that reached a resting state the
// operator no longer has to think about (done or cancelled).
func (q *Queue) Progress() int {
	if q.TotalCount == 0 {
		return 0
	}
	return int(math.Round(100 * float64(q.DoneCount+q.CancelledCount) / float64(q.TotalCount)))
}

type Line struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	QueueID  primitive.ObjectID `json:"queue_id" bson:"queue_id"`
	TenantID primitive.ObjectID `json:"tenant_id" bson:"tenant_id"`

	ExternalID string    `json:"external_id" bson:"external_id"`
	Payload    bson.M    `json:"payload" bson:"payload"`
	State      LineState `json:"state" bson:"state"`

	ProcessCount int    `json:"process_count" bson:"process_count"`
	ErrorCount   int    `json:"error_count" bson:"error_count"`
	ErrorMessage string `json:"error_message,omitempty" bson:"error_message,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty" bson:"error_kind,omitempty"`

	ResultID  string `json:"result_id,omitempty" bson:"result_id,omitempty"`
	WasUpdate bool   `json:"was_update" bson:"was_update"`

	LastErrorAt     *time.Time `json:"last_error_at,omitempty" bson:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty" bson:"last_processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updated_at"`
}

// ValidateEnqueue rejects malformed lines at the boundary instead of letting
// them poison a batch later.
func ValidateEnqueue(externalID string, payload bson.M) error {
	if externalID == "" {
		return &ValidationError{Field: "external_id", Message: "must not be empty"}
	}
	if payload == nil {
		return &ValidationError{Field: "payload", Message: "must not be nil"}
	}
	return nil
}
