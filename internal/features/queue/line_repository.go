package queue

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-ops/internal/database"
	"go-ops/internal/features/connector"
)

type MongoLineRepository struct {
	collection *mongo.Collection
}

func NewLineRepository(db *database.MongodbDB) LineRepository {
	return &MongoLineRepository{
		collection: db.DB.Collection("sync_queue_lines"),
	}
}

// Upsert enqueues a line idempotently. A second enqueue of the same
// (queue_id, external_id) only bumps updated_at; state and payload of the
// existing line are left alone.
func (r *MongoLineRepository) Upsert(ctx context.Context, line *Line) (bool, error) {
	now := time.Now()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"queue_id": line.QueueID, "external_id": line.ExternalID},
		bson.M{
			"$set": bson.M{"updated_at": now},
			"$setOnInsert": bson.M{
				"tenant_id":     line.TenantID,
				"payload":       line.Payload,
				"state":         LineDraft,
				"process_count": 0,
				"error_count":   0,
				"was_update":    false,
				"created_at":    now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

// ClaimNext atomically takes the oldest draft line: draft→processing plus a
// process_count bump in one FindOneAndUpdate. Concurrent claimers therefore
// never receive the same line. Returns nil, nil when nothing is claimable.
func (r *MongoLineRepository) ClaimNext(ctx context.Context, queueID primitive.ObjectID) (*Line, error) {
	now := time.Now()
	var line Line
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"queue_id": queueID, "state": LineDraft},
		bson.M{
			"$set": bson.M{
				"state":             LineProcessing,
				"last_processed_at": now,
				"updated_at":        now,
			},
			"$inc": bson.M{"process_count": 1},
		},
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "created_at", Value: 1}}).
			SetReturnDocument(options.After),
	).Decode(&line)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

func (r *MongoLineRepository) MarkDone(ctx context.Context, id primitive.ObjectID, result string, wasUpdate bool) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "state": LineProcessing},
		bson.M{"$set": bson.M{
			"state":         LineDone,
			"result_id":     result,
			"was_update":    wasUpdate,
			"error_message": "",
			"error_kind":    "",
			"updated_at":    time.Now(),
		}},
	)
	return err
}

func (r *MongoLineRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, kind, message string) error {
	now := time.Now()
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "state": LineProcessing},
		bson.M{
			"$set": bson.M{
				"state":         LineFailed,
				"error_kind":    kind,
				"error_message": message,
				"last_error_at": now,
				"updated_at":    now,
			},
			"$inc": bson.M{"error_count": 1},
		},
	)
	return err
}

func (r *MongoLineRepository) ResetForRetry(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "state": LineFailed},
		bson.M{"$set": bson.M{"state": LineDraft, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CancelOpen sweeps every line an operator gives up on: draft and failed
// both move to cancelled. Lines already done or cancelled are untouched, so
// the sweep is idempotent.
func (r *MongoLineRepository) CancelOpen(ctx context.Context, queueID primitive.ObjectID) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"queue_id": queueID, "state": bson.M{"$in": bson.A{LineDraft, LineFailed}}},
		bson.M{"$set": bson.M{"state": LineCancelled, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoLineRepository) CountByState(ctx context.Context, queueID primitive.ObjectID) (map[LineState]int, error) {
	cursor, err := r.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"queue_id": queueID}}},
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
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}

// ListRetryableFailed returns failed lines that still have budget, oldest
// failure first. Permanently failed lines are excluded: retrying them would
// fail identically.
func (r *MongoLineRepository) ListRetryableFailed(ctx context.Context, queueID primitive.ObjectID, maxRetries int) ([]Line, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"queue_id":      queueID,
		"state":         LineFailed,
		"process_count": bson.M{"$lt": maxRetries},
		"error_kind":    bson.M{"$ne": string(connector.KindPermanent)},
	}, options.Find().SetSort(bson.D{{Key: "last_error_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	lines := []Line{}
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *MongoLineRepository) ListByQueue(ctx context.Context, queueID primitive.ObjectID, state LineState, limit int64) ([]Line, error) {
	query := bson.M{"queue_id": queueID}
	if state != "" {
		query["state"] = state
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	cursor, err := r.collection.Find(ctx, query, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	lines := []Line{}
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// ReclaimStale returns lines stuck in processing (a crashed worker never
// resolved them) to draft so the next run picks them up again.
func (r *MongoLineRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"state": LineProcessing, "last_processed_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"state": LineDraft, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoLineRepository) DeleteByQueueIDs(ctx context.Context, queueIDs []primitive.ObjectID) (int64, error) {
	if len(queueIDs) == 0 {
		return 0, nil
	}
	res, err := r.collection.DeleteMany(ctx, bson.M{"queue_id": bson.M{"$in": queueIDs}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoLineRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "queue_id", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "queue_id", Value: 1}, {Key: "state", Value: 1}, {Key: "created_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "state", Value: 1}, {Key: "last_processed_at", Value: 1}},
		},
	})
	return err
}
