package queue

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-ops/internal/database"
)

// ErrAlreadyProcessing is returned when a start request loses the
// single-processor guard.
var ErrAlreadyProcessing = errors.New("queue is already being processed")

type ListFilter struct {
	State  QueueState
	Limit  int64
	Offset int64
}

type QueueRepository interface {
	Create(ctx context.Context, q *Queue) (*Queue, error)
	Get(ctx context.Context, tenantID, id primitive.ObjectID) (*Queue, error)
	GetByIdempotencyKey(ctx context.Context, tenantID primitive.ObjectID, key string) (*Queue, error)
	List(ctx context.Context, tenantID primitive.ObjectID, filter ListFilter) ([]Queue, error)
	BeginProcessing(ctx context.Context, tenantID, id primitive.ObjectID) (*Queue, error)
	EndProcessing(ctx context.Context, id primitive.ObjectID, finalState QueueState) error
	RefreshCounts(ctx context.Context, id primitive.ObjectID) (*Queue, error)
	FlagActionRequired(ctx context.Context, id primitive.ObjectID, reason string) error
	ClearActionRequired(ctx context.Context, id primitive.ObjectID) error
	SetState(ctx context.Context, id primitive.ObjectID, state QueueState) error
	Touch(ctx context.Context, id primitive.ObjectID) error
	ListDeletable(ctx context.Context, cutoff time.Time) ([]primitive.ObjectID, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type LineRepository interface {
	Upsert(ctx context.Context, line *Line) (inserted bool, err error)
	ClaimNext(ctx context.Context, queueID primitive.ObjectID) (*Line, error)
	MarkDone(ctx context.Context, id primitive.ObjectID, result string, wasUpdate bool) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, kind, message string) error
	ResetForRetry(ctx context.Context, ids []primitive.ObjectID) (int64, error)
	CancelOpen(ctx context.Context, queueID primitive.ObjectID) (int64, error)
	CountByState(ctx context.Context, queueID primitive.ObjectID) (map[LineState]int, error)
	ListRetryableFailed(ctx context.Context, queueID primitive.ObjectID, maxRetries int) ([]Line, error)
	ListByQueue(ctx context.Context, queueID primitive.ObjectID, state LineState, limit int64) ([]Line, error)
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteByQueueIDs(ctx context.Context, queueIDs []primitive.ObjectID) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type MongoQueueRepository struct {
	collection *mongo.Collection
	lines      *mongo.Collection
}

func NewQueueRepository(db *database.MongodbDB) QueueRepository {
	return &MongoQueueRepository{
		collection: db.DB.Collection("sync_queues"),
		lines:      db.DB.Collection("sync_queue_lines"),
	}
}

func (r *MongoQueueRepository) Create(ctx context.Context, q *Queue) (*Queue, error) {
	q.ID = primitive.NewObjectID()
	q.State = QueueDraft
	q.CreatedAt = time.Now()
	q.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *MongoQueueRepository) Get(ctx context.Context, tenantID, id primitive.ObjectID) (*Queue, error) {
	var q Queue
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&q)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *MongoQueueRepository) GetByIdempotencyKey(ctx context.Context, tenantID primitive.ObjectID, key string) (*Queue, error) {
	var q Queue
	err := r.collection.FindOne(ctx, bson.M{
		"tenant_id":              tenantID,
		"config.idempotency_key": key,
	}).Decode(&q)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *MongoQueueRepository) List(ctx context.Context, tenantID primitive.ObjectID, filter ListFilter) ([]Queue, error) {
	query := bson.M{"tenant_id": tenantID}
	if filter.State != "" {
		query["state"] = filter.State
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cursor, err := r.collection.Find(ctx, query, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(filter.Offset).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	queues := []Queue{}
	if err := cursor.All(ctx, &queues); err != nil {
		return nil, err
	}
	return queues, nil
}

// BeginProcessing takes the single-processor guard. The filter requires
// is_processing false, so of two concurrent starts exactly one wins; the
// loser gets ErrAlreadyProcessing.
func (r *MongoQueueRepository) BeginProcessing(ctx context.Context, tenantID, id primitive.ObjectID) (*Queue, error) {
	now := time.Now()
	var q Queue
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{
			"_id":           id,
			"tenant_id":     tenantID,
			"is_processing": false,
			"state":         bson.M{"$nin": bson.A{QueueCancelled}},
		},
		bson.M{
			"$set": bson.M{
				"is_processing":     true,
				"state":             QueueProcessing,
				"updated_at":        now,
				"last_processed_at": now,
			},
			"$inc": bson.M{"process_count": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&q)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Distinguish "locked" from "missing" for the caller.
			if _, getErr := r.Get(ctx, tenantID, id); getErr == nil {
				return nil, ErrAlreadyProcessing
			}
			return nil, mongo.ErrNoDocuments
		}
		return nil, err
	}
	return &q, nil
}

func (r *MongoQueueRepository) EndProcessing(ctx context.Context, id primitive.ObjectID, finalState QueueState) error {
	_, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"is_processing": false,
			"state":         finalState,
			"updated_at":    time.Now(),
		},
	})
	return err
}

// RefreshCounts recomputes every counter from the lines collection. Counters
// are never adjusted incrementally, so they cannot drift from the lines.
func (r *MongoQueueRepository) RefreshCounts(ctx context.Context, id primitive.ObjectID) (*Queue, error) {
	cursor, err := r.lines.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"queue_id": id}}},
		{{Key: "$group", Value: bson.M{"_id": "$state", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		State LineState `bson:"_id"`
		Count int       `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := map[LineState]int{}
	total := 0
	for _, row := range rows {
		counts[row.State] = row.Count
		total += row.Count
	}

	var q Queue
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"total_count":     total,
			"draft_count":     counts[LineDraft],
			"done_count":      counts[LineDone],
			"failed_count":    counts[LineFailed],
			"cancelled_count": counts[LineCancelled],
			"updated_at":      time.Now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&q)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *MongoQueueRepository) FlagActionRequired(ctx context.Context, id primitive.ObjectID, reason string) error {
	_, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"is_action_required":     true,
			"action_required_reason": reason,
			"updated_at":             time.Now(),
		},
	})
	return err
}

func (r *MongoQueueRepository) ClearActionRequired(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"is_action_required":     false,
			"action_required_reason": "",
			"updated_at":             time.Now(),
		},
	})
	return err
}

func (r *MongoQueueRepository) SetState(ctx context.Context, id primitive.ObjectID, state QueueState) error {
	_, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"state": state, "updated_at": time.Now()},
	})
	return err
}

func (r *MongoQueueRepository) Touch(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"updated_at": time.Now()},
	})
	return err
}

func (r *MongoQueueRepository) ListDeletable(ctx context.Context, cutoff time.Time) ([]primitive.ObjectID, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"state":      bson.M{"$in": bson.A{QueuePartial, QueueDone, QueueFailed, QueueCancelled}},
		"updated_at": bson.M{"$lt": cutoff},
	}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func (r *MongoQueueRepository) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoQueueRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "config.idempotency_key", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"config.idempotency_key": bson.M{"$gt": ""}}),
		},
		{
			Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "state", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "state", Value: 1}, {Key: "updated_at", Value: 1}},
		},
	})
	return err
}
