package orderRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sereno/database"
	"sereno/database/repository"
	"sereno/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOrderRepo implements repository.OrderRepository on MongoDB.
type MongoOrderRepo struct {
	coll *mongo.Collection
}

func NewMongoOrderRepo() *MongoOrderRepo {
	repo := &MongoOrderRepo{
		coll: database.DB().Collection("orders"),
	}
	if err := repo.ensureIndexes(); err != nil {
		panic(fmt.Sprintf("order repo: %v", err))
	}
	return repo
}

func (r *MongoOrderRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoOrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", id, err)
	}
	return &o, nil
}

func (r *MongoOrderRepo) Create(ctx context.Context, o *models.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if _, err := r.coll.InsertOne(ctx, o); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// MarkCompleted flips the order pending->completed exactly once. A webhook
// redelivery finds the status already flipped and reports false.
func (r *MongoOrderRepo) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "status": models.OrderStatusPending},
		bson.M{"$set": bson.M{"status": models.OrderStatusCompleted, "completedAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete order %s: %w", id, err)
	}
	return res.ModifiedCount > 0, nil
}
