package bookingRepo

import (
	"context"
	"fmt"
	"time"

	"sereno/database/repository"
	"sereno/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CancelCascade persists a canceled parent and all of its canceled children
// inside one mongo transaction, so a crash mid-cascade cannot leave a
// canceled parent with live children. The parent write is guarded on its
// prior status; a guard miss aborts the whole transaction with ErrConflict.
func (r *MongoBookingRepo) CancelCascade(ctx context.Context, parent *models.Booking, children []*models.Booking, expectedParent models.BookingStatus) error {
	client := r.coll.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	now := time.Now()
	txnFn := func(sc mongo.SessionContext) error {
		parent.UpdatedAt = now
		res, err := r.coll.ReplaceOne(sc, bson.M{"id": parent.ID, "status": expectedParent}, parent)
		if err != nil {
			return fmt.Errorf("parent cancel write failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return repository.ErrConflict
		}
		for _, child := range children {
			child.UpdatedAt = now
			cres, err := r.coll.ReplaceOne(sc, bson.M{"id": child.ID}, child)
			if err != nil {
				return fmt.Errorf("child cancel write failed for %s: %w", child.ID, err)
			}
			if cres.MatchedCount == 0 {
				return fmt.Errorf("child %s: %w", child.ID, repository.ErrNotFound)
			}
		}
		return nil
	}

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		return err
	}

	return nil
}

// CreateScheduledChild inserts a child booking against a bundle/package
// parent and decrements the parent's remaining credits in one transaction.
// The decrement is guarded by creditsRemaining >= 1, which is what enforces
// the remaining >= 0 ledger invariant under concurrency.
func (r *MongoBookingRepo) CreateScheduledChild(ctx context.Context, parentID string, child *models.Booking) error {
	if err := child.Validate(); err != nil {
		return err
	}

	client := r.coll.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	now := time.Now()
	txnFn := func(sc mongo.SessionContext) error {
		res, err := r.coll.UpdateOne(sc,
			bson.M{"id": parentID, "creditsRemaining": bson.M{"$gte": 1}},
			bson.M{"$inc": bson.M{"creditsRemaining": -1}, "$set": bson.M{"updatedAt": now}},
		)
		if err != nil {
			return fmt.Errorf("credit decrement failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return repository.ErrCreditsExhausted
		}

		if child.CreatedAt.IsZero() {
			child.CreatedAt = now
		}
		child.UpdatedAt = now
		if _, err := r.coll.InsertOne(sc, child); err != nil {
			return fmt.Errorf("child insert failed: %w", err)
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
