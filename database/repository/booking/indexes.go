package bookingRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes creates indexes for frequently used fields in queries.
// The partial unique index on (orderId, serviceId, startTime) is the race
// guard for duplicate order materialization: a second concurrent attempt
// hits a duplicate-key error instead of creating a second booking set.
func (r *MongoBookingRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orderOpts := options.Index().
		SetUnique(true).
		SetPartialFilterExpression(bson.M{"orderId": bson.M{"$exists": true, "$gt": ""}})

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "serviceId", Value: 1}, {Key: "startTime", Value: 1}}, Options: orderOpts},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "startTime", Value: 1}}},
		{Keys: bson.D{{Key: "parentId", Value: 1}}},
		{Keys: bson.D{{Key: "classSessionId", Value: 1}}},
		{Keys: bson.D{{Key: "practitionerId", Value: 1}, {Key: "startTime", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
