package bookingRepo

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
)

// MongoBookingRepo implements repository.BookingRepository on MongoDB.
type MongoBookingRepo struct {
	coll *mongo.Collection
}

func NewMongoBookingRepo() *MongoBookingRepo {
	repo := &MongoBookingRepo{
		coll: database.DB().Collection("bookings"),
	}
	if err := repo.ensureIndexes(); err != nil {
		panic(fmt.Sprintf("booking repo: %v", err))
	}
	return repo
}

func (r *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking %s: %w", id, err)
	}
	return &b, nil
}

func (r *MongoBookingRepo) GetByOrderID(ctx context.Context, orderID string) ([]models.Booking, error) {
	return r.find(ctx, bson.M{"orderId": orderID})
}

func (r *MongoBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, b); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (r *MongoBookingRepo) CreateMany(ctx context.Context, bs []*models.Booking) error {
	if len(bs) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(bs))
	now := time.Now()
	for _, b := range bs {
		if err := b.Validate(); err != nil {
			return err
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		b.UpdatedAt = now
		docs = append(docs, b)
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert bookings: %w", err)
	}
	return nil
}

// UpdateWithStatusGuard replaces the stored document only while its status
// still matches expected. MatchedCount==0 means another writer won the race.
func (r *MongoBookingRepo) UpdateWithStatusGuard(ctx context.Context, b *models.Booking, expected models.BookingStatus) error {
	if err := b.Validate(); err != nil {
		return err
	}
	b.UpdatedAt = time.Now()
	res, err := r.coll.ReplaceOne(ctx, bson.M{"id": b.ID, "status": expected}, b)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", b.ID, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *MongoBookingRepo) FindNonTerminalChildren(ctx context.Context, parentID string) ([]models.Booking, error) {
	return r.find(ctx, bson.M{
		"parentId": parentID,
		"status":   bson.M{"$nin": terminalStatuses()},
	})
}

func (r *MongoBookingRepo) FindConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	return r.find(ctx, bson.M{
		"status":            models.BookingStatusConfirmed,
		"startTime":         bson.M{"$gte": from, "$lte": to},
		"isPackagePurchase": bson.M{"$ne": true},
		"isBundlePurchase":  bson.M{"$ne": true},
	})
}

func (r *MongoBookingRepo) FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	return r.find(ctx, bson.M{
		"status":            bson.M{"$in": []models.BookingStatus{models.BookingStatusConfirmed, models.BookingStatusInProgress}},
		"startTime":         bson.M{"$gt": time.Time{}, "$lt": cutoff},
		"isPackagePurchase": bson.M{"$ne": true},
		"isBundlePurchase":  bson.M{"$ne": true},
	})
}

func (r *MongoBookingRepo) FindOpenCourseEnrollments(ctx context.Context) ([]models.Booking, error) {
	return r.find(ctx, bson.M{
		"status":        models.BookingStatusConfirmed,
		"snapshot.type": models.ServiceTypeCourse,
		"startTime":     time.Time{},
	})
}

func (r *MongoBookingRepo) FindVirtualWithoutRoom(ctx context.Context, createdSince time.Time) ([]models.Booking, error) {
	return r.find(ctx, bson.M{
		"status":                bson.M{"$in": []models.BookingStatus{models.BookingStatusConfirmed}},
		"roomId":                bson.M{"$in": bson.A{"", nil}},
		"classSessionId":        bson.M{"$in": bson.A{"", nil}},
		"snapshot.locationMode": bson.M{"$in": []models.LocationMode{models.LocationVirtual, models.LocationHybrid}},
		"isPackagePurchase":     bson.M{"$ne": true},
		"isBundlePurchase":      bson.M{"$ne": true},
		"createdAt":             bson.M{"$gte": createdSince},
	})
}

func (r *MongoBookingRepo) FindByClassSession(ctx context.Context, classSessionID string) ([]models.Booking, error) {
	return r.find(ctx, bson.M{
		"classSessionId": classSessionID,
		"status":         bson.M{"$nin": terminalStatuses()},
	})
}

func (r *MongoBookingRepo) FindOverlapping(ctx context.Context, practitionerID string, start, end time.Time) ([]models.Booking, error) {
	return r.find(ctx, bson.M{
		"practitionerId": practitionerID,
		"status":         bson.M{"$nin": terminalStatuses()},
		"startTime":      bson.M{"$lt": end},
		"endTime":        bson.M{"$gt": start},
	})
}

func (r *MongoBookingRepo) SetRoom(ctx context.Context, id, roomID string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "roomId": bson.M{"$in": bson.A{"", nil}}},
		bson.M{"$set": bson.M{"roomId": roomID, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to set room for booking %s: %w", id, err)
	}
	return res.ModifiedCount > 0, nil
}

// MarkReminderSent flips one typed reminder flag, but only if it is still
// unset. Both the orchestrator and the sweep call this before sending, so
// exactly one of them dispatches.
func (r *MongoBookingRepo) MarkReminderSent(ctx context.Context, id, field string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, field: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{field: at, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder sent for booking %s: %w", id, err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoBookingRepo) ApplyReschedule(ctx context.Context, id string, newStart, newEnd time.Time, audit models.RescheduleAudit) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{
			"$set": bson.M{
				"startTime": newStart,
				"endTime":   newEnd,
				"reminders": models.ReminderState{},
				"updatedAt": time.Now(),
			},
			"$push": bson.M{"rescheduleHistory": audit},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule booking %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoBookingRepo) find(ctx context.Context, filter bson.M) ([]models.Booking, error) {
	cur, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("booking query failed: %w", err)
	}
	defer cur.Close(ctx)
	var out []models.Booking
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("booking decode failed: %w", err)
	}
	return out, nil
}

func terminalStatuses() []models.BookingStatus {
	return []models.BookingStatus{
		models.BookingStatusCompleted,
		models.BookingStatusCanceled,
		models.BookingStatusNoShow,
	}
}
