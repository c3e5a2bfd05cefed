package connector

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-ops/internal/database"
)

type SettingRepository interface {
	Create(ctx context.Context, setting *Setting) (*Setting, error)
	GetByID(ctx context.Context, tenantID, id primitive.ObjectID) (*Setting, error)
	List(ctx context.Context, tenantID primitive.ObjectID) ([]Setting, error)
	Update(ctx context.Context, tenantID, id primitive.ObjectID, update bson.M) (*Setting, error)
	Delete(ctx context.Context, tenantID, id primitive.ObjectID) error
}

type MongoSettingRepository struct {
	collection *mongo.Collection
}

func NewSettingRepository(db *database.MongodbDB) SettingRepository {
	return &MongoSettingRepository{
		collection: db.DB.Collection("connector_settings"),
	}
}

func (r *MongoSettingRepository) Create(ctx context.Context, setting *Setting) (*Setting, error) {
	setting.ID = primitive.NewObjectID()
	setting.CreatedAt = time.Now()
	setting.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, setting); err != nil {
		return nil, err
	}
	return setting, nil
}

func (r *MongoSettingRepository) GetByID(ctx context.Context, tenantID, id primitive.ObjectID) (*Setting, error) {
	var setting Setting
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&setting)
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *MongoSettingRepository) List(ctx context.Context, tenantID primitive.ObjectID) ([]Setting, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"tenant_id": tenantID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	settings := []Setting{}
	if err := cursor.All(ctx, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *MongoSettingRepository) Update(ctx context.Context, tenantID, id primitive.ObjectID, update bson.M) (*Setting, error) {
	update["updated_at"] = time.Now()

	var setting Setting
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "tenant_id": tenantID},
		bson.M{"$set": update},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&setting)
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *MongoSettingRepository) Delete(ctx context.Context, tenantID, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "tenant_id": tenantID})
	return err
}
