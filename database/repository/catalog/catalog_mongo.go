package catalogRepo

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

// MongoCatalogRepo implements repository.CatalogRepository on MongoDB.
type MongoCatalogRepo struct {
	serviceColl *mongo.Collection
	sessionColl *mongo.Collection
}

func NewMongoCatalogRepo() *MongoCatalogRepo {
	db := database.DB()
	return &MongoCatalogRepo{
		serviceColl: db.Collection("services"),
		sessionColl: db.Collection("class_sessions"),
	}
}

func (r *MongoCatalogRepo) GetService(ctx context.Context, id string) (*models.Service, error) {
	var s models.Service
	err := r.serviceColl.FindOne(ctx, bson.M{"id": id}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch service %s: %w", id, err)
	}
	return &s, nil
}

func (r *MongoCatalogRepo) GetClassSession(ctx context.Context, id string) (*models.ClassSession, error) {
	var cs models.ClassSession
	err := r.sessionColl.FindOne(ctx, bson.M{"id": id}).Decode(&cs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch class session %s: %w", id, err)
	}
	return &cs, nil
}

// LatestClassSessionEnd returns the end time of the last scheduled class of
// a course service. The completion sweep uses it as the course's end.
func (r *MongoCatalogRepo) LatestClassSessionEnd(ctx context.Context, serviceID string) (time.Time, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "endTime", Value: -1}})
	var cs models.ClassSession
	err := r.sessionColl.FindOne(ctx, bson.M{"serviceId": serviceID}, opts).Decode(&cs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, repository.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch latest class session for %s: %w", serviceID, err)
	}
	return cs.EndTime, nil
}

func (r *MongoCatalogRepo) UpdateClassSessionTimes(ctx context.Context, id string, start, end time.Time) error {
	res, err := r.sessionColl.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"startTime": start, "endTime": end}},
	)
	if err != nil {
		return fmt.Errorf("failed to update class session %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
