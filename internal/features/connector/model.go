package connector

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Record is one raw external entity. The queue engine treats Data as opaque.
type Record struct {
	ExternalID string         `json:"external_id"`
	Data       map[string]any `json:"data"`
}

// Result reports where an upserted record landed internally.
type Result struct {
	InternalID string `json:"internal_id"`
	WasUpdate  bool   `json:"was_update"`
}

// Source produces the entities to enqueue. Implementations own pagination,
// field mapping and credentials.
type Source interface {
	Fetch(ctx context.Context, params map[string]string) ([]Record, error)
	TestConnection(ctx context.Context) bool
}

// Writer lands one record in the internal store. Failures must be returned
// as *SyncError so the engine can decide retry eligibility.
type Writer interface {
	Upsert(ctx context.Context, rec Record) (*Result, error)
}

// Setting is a named connector configuration. Target holds the writer side
// (DSN, table, column mapping), Source holds the fetch side.
type Setting struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID     primitive.ObjectID `json:"tenant_id" bson:"tenant_id"`
	Name         string             `json:"name" bson:"name"`
	SourceSystem string             `json:"source_system" bson:"source_system"`
	SourceURL    string             `json:"source_url" bson:"source_url"`
	TargetDSN    string             `json:"target_dsn" bson:"target_dsn"`
	TargetTable  string             `json:"target_table" bson:"target_table"`
	Mapping      map[string]string  `json:"mapping" bson:"mapping"` // record field -> target column
	IsActive     bool               `json:"is_active" bson:"is_active"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}
