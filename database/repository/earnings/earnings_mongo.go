package earningsRepo

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

// MongoEarningsRepo implements repository.EarningsRepository on MongoDB.
type MongoEarningsRepo struct {
	txnColl        *mongo.Collection
	payoutColl     *mongo.Collection
	completionColl *mongo.Collection
}

func NewMongoEarningsRepo() *MongoEarningsRepo {
	db := database.DB()
	repo := &MongoEarningsRepo{
		txnColl:        db.Collection("earnings_transactions"),
		payoutColl:     db.Collection("payout_batches"),
		completionColl: db.Collection("package_completions"),
	}
	if err := repo.ensureIndexes(); err != nil {
		panic(fmt.Sprintf("earnings repo: %v", err))
	}
	return repo
}

func (r *MongoEarningsRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	txnIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "practitionerId", Value: 1}, {Key: "status", Value: 1}, {Key: "availableAfter", Value: 1}}},
		{Keys: bson.D{{Key: "bookingId", Value: 1}}},
	}
	if _, err := r.txnColl.Indexes().CreateMany(ctx, txnIdx); err != nil {
		return fmt.Errorf("failed to create earnings indexes: %w", err)
	}
	compIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "parentBookingId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := r.completionColl.Indexes().CreateMany(ctx, compIdx); err != nil {
		return fmt.Errorf("failed to create completion indexes: %w", err)
	}
	return nil
}

func (r *MongoEarningsRepo) CreateTransaction(ctx context.Context, t *models.EarningsTransaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if _, err := r.txnColl.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert earnings transaction: %w", err)
	}
	return nil
}

func (r *MongoEarningsRepo) GetTransaction(ctx context.Context, id string) (*models.EarningsTransaction, error) {
	var t models.EarningsTransaction
	err := r.txnColl.FindOne(ctx, bson.M{"id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch earnings transaction %s: %w", id, err)
	}
	return &t, nil
}

func (r *MongoEarningsRepo) FindReadyForPayout(ctx context.Context, practitionerID string, now time.Time) ([]models.EarningsTransaction, error) {
	filter := bson.M{
		"practitionerId": practitionerID,
		"$or": bson.A{
			bson.M{"status": models.EarningsStatusAvailable},
			bson.M{"status": models.EarningsStatusPending, "availableAfter": bson.M{"$lte": now}},
		},
	}
	cur, err := r.txnColl.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("earnings query failed: %w", err)
	}
	defer cur.Close(ctx)
	var out []models.EarningsTransaction
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("earnings decode failed: %w", err)
	}
	return out, nil
}

// CommitPayout inserts the batch record and marks every source transaction
// paid out inside one transaction. If any transaction is missing or already
// consumed the whole batch aborts, so no row is ever left half-marked.
func (r *MongoEarningsRepo) CommitPayout(ctx context.Context, batch *models.PayoutBatch) error {
	client := r.txnColl.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnFn := func(sc mongo.SessionContext) error {
		if batch.CreatedAt.IsZero() {
			batch.CreatedAt = time.Now()
		}
		if _, err := r.payoutColl.InsertOne(sc, batch); err != nil {
			return fmt.Errorf("payout batch insert failed: %w", err)
		}
		res, err := r.txnColl.UpdateMany(sc,
			bson.M{
				"id":     bson.M{"$in": batch.TransactionIDs},
				"status": bson.M{"$ne": models.EarningsStatusPaidOut},
			},
			bson.M{"$set": bson.M{"status": models.EarningsStatusPaidOut, "payoutId": batch.ID}},
		)
		if err != nil {
			return fmt.Errorf("payout mark failed: %w", err)
		}
		if res.ModifiedCount != int64(len(batch.TransactionIDs)) {
			return fmt.Errorf("payout batch expected %d transactions, marked %d: %w",
				len(batch.TransactionIDs), res.ModifiedCount, repository.ErrConflict)
		}
		return nil
	}

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	})
}

func (r *MongoEarningsRepo) GetPackageCompletion(ctx context.Context, parentBookingID string) (*models.PackageCompletion, error) {
	var pc models.PackageCompletion
	err := r.completionColl.FindOne(ctx, bson.M{"parentBookingId": parentBookingID}).Decode(&pc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package completion for %s: %w", parentBookingID, err)
	}
	return &pc, nil
}

// MarkPackageSessionCompleted adds the child to the record's counted set and
// bumps the counter in one atomic update. When the child is already in the
// set, the filter matches nothing, the upsert collides on the unique
// parentBookingId index, and the caller gets ErrDuplicateKey.
func (r *MongoEarningsRepo) MarkPackageSessionCompleted(ctx context.Context, seed *models.PackageCompletion, childBookingID string) error {
	filter := bson.M{
		"parentBookingId":     seed.ParentBookingID,
		"completedBookingIds": bson.M{"$ne": childBookingID},
	}
	update := bson.M{
		"$inc":      bson.M{"completedSessions": 1},
		"$addToSet": bson.M{"completedBookingIds": childBookingID},
		"$set":      bson.M{"updatedAt": time.Now()},
		"$setOnInsert": bson.M{
			"id":                   seed.ID,
			"practitionerId":       seed.PractitionerID,
			"grossCents":           seed.GrossCents,
			"commissionRate":       seed.CommissionRate,
			"totalSessions":        seed.TotalSessions,
			"lastPayoutPercentage": float64(0),
			"finalPaidOut":         false,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.completionColl.UpdateOne(ctx, filter, update, opts); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to mark package session completed: %w", err)
	}
	return nil
}

// AdvanceWatermark raises the payout watermark using the stored value as a
// compare-and-set guard, which is what makes replayed progressive payouts
// no-op instead of paying twice.
func (r *MongoEarningsRepo) AdvanceWatermark(ctx context.Context, id string, from, to float64, final bool) (bool, error) {
	set := bson.M{"lastPayoutPercentage": to, "updatedAt": time.Now()}
	if final {
		set["finalPaidOut"] = true
	}
	res, err := r.completionColl.UpdateOne(ctx,
		bson.M{"id": id, "lastPayoutPercentage": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance payout watermark: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoEarningsRepo) ReleasePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.txnColl.UpdateMany(ctx,
		bson.M{"status": models.EarningsStatusPending, "availableAfter": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"status": models.EarningsStatusAvailable}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release pending earnings: %w", err)
	}
	return res.ModifiedCount, nil
}
