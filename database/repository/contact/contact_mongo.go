package contactRepo

import (
	"context"
	"errors"
	"fmt"

	"sereno/database"
	"sereno/database/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoContactRepo resolves FCM push tokens from the user and practitioner
// collections owned by the account subsystem.
type MongoContactRepo struct {
	userColl         *mongo.Collection
	practitionerColl *mongo.Collection
}

func NewMongoContactRepo() *MongoContactRepo {
	db := database.DB()
	return &MongoContactRepo{
		userColl:         db.Collection("users"),
		practitionerColl: db.Collection("practitioners"),
	}
}

type tokenDoc struct {
	FCMToken string `bson:"fcmToken"`
}

func (r *MongoContactRepo) UserToken(ctx context.Context, userID string) (string, error) {
	return r.token(ctx, r.userColl, userID)
}

func (r *MongoContactRepo) PractitionerToken(ctx context.Context, practitionerID string) (string, error) {
	return r.token(ctx, r.practitionerColl, practitionerID)
}

func (r *MongoContactRepo) token(ctx context.Context, coll *mongo.Collection, id string) (string, error) {
	var doc tokenDoc
	err := coll.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch push token for %s: %w", id, err)
	}
	return doc.FCMToken, nil
}
