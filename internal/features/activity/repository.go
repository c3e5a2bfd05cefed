package activity

import (
	"context"
	"time"

	"go-ops/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ActivityRepository is append-only: the interface deliberately exposes no
// update or delete methods.
type ActivityRepository interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, tenantID, queueID primitive.ObjectID, limit int64) ([]Entry, error)
	EnsureIndexes(ctx context.Context) error
}

type ActivityRepositoryImpl struct {
	collection *mongo.Collection
}

func NewActivityRepository(db *database.MongodbDB) ActivityRepository {
	return &ActivityRepositoryImpl{
		collection: db.DB.Collection("sync_activity"),
	}
}

func (r *ActivityRepositoryImpl) Append(ctx context.Context, entry *Entry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	entry.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

func (r *ActivityRepositoryImpl) List(ctx context.Context, tenantID, queueID primitive.ObjectID, limit int64) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	filter := bson.M{"tenant_id": tenantID, "queue_id": queueID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *ActivityRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "queue_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	return err
}
