package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"sereno/database/repository"
	"sereno/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CalculateEarnings splits a gross amount by a commission percentage.
// Pure and deterministic: commission is rounded half away from zero, net is
// whatever remains, so commission + net always equals gross.
func CalculateEarnings(grossCents int64, ratePercent float64) (commissionCents, netCents int64) {
	commissionCents = int64(math.Round(float64(grossCents) * ratePercent / 100))
	netCents = grossCents - commissionCents
	return commissionCents, netCents
}

// EarningsService records practitioner earnings and runs payouts.
type EarningsService interface {
	Record(ctx context.Context, b *models.Booking) (*models.EarningsTransaction, error)
	BatchPayout(ctx context.Context, practitionerID string) (*models.PayoutBatch, error)
	ReleasePackagePayout(ctx context.Context, parentBookingID string) (*models.EarningsTransaction, error)
	RecordPackageSessionCompleted(ctx context.Context, parent *models.Booking, childBookingID string) error
	ReleaseEligible(ctx context.Context) (int64, error)
}

// DefaultEarningsService implements EarningsService.
type DefaultEarningsService struct {
	Repo           repository.EarningsRepository
	FundsLock      time.Duration
	MinPayoutCents int64
	Logger         *zap.Logger
}

// earningsTransactionID derives the transaction id from what the row pays
// for. A replayed recording regenerates the same id and collides on the
// unique index instead of minting a second row.
func earningsTransactionID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("earnings/"+key)).String()
}

// Record writes one pending earnings transaction for a completed booking,
// keyed by the booking so the queue redelivering the step cannot pay twice.
// The commission rate is copied from the booking's snapshot, so a later
// change to the practitioner's rate never touches this row.
func (s *DefaultEarningsService) Record(ctx context.Context, b *models.Booking) (*models.EarningsTransaction, error) {
	rate := b.Snapshot.CommissionRate
	commission, net := CalculateEarnings(b.FinalAmount, rate)

	t := &models.EarningsTransaction{
		ID:              earningsTransactionID("session/" + b.ID),
		PractitionerID:  b.PractitionerID,
		BookingID:       b.ID,
		GrossCents:      b.FinalAmount,
		CommissionRate:  rate,
		CommissionCents: commission,
		NetCents:        net,
		Status:          models.EarningsStatusPending,
		AvailableAfter:  time.Now().Add(s.FundsLock),
	}
	if err := s.Repo.CreateTransaction(ctx, t); err != nil {
		return nil, Transient("earnings write", err)
	}
	s.Logger.Info("earnings recorded",
		zap.String("bookingId", b.ID),
		zap.Int64("net", net),
		zap.Float64("rate", rate),
	)
	return t, nil
}

// BatchPayout collects every ready transaction for the practitioner and,
// if their net sum meets the minimum, marks them all paid out and creates
// the payout record in one transaction. All or nothing.
func (s *DefaultEarningsService) BatchPayout(ctx context.Context, practitionerID string) (*models.PayoutBatch, error) {
	ready, err := s.Repo.FindReadyForPayout(ctx, practitionerID, time.Now())
	if err != nil {
		return nil, Transient("payout query", err)
	}

	var total int64
	ids := make([]string, 0, len(ready))
	for _, t := range ready {
		total += t.NetCents
		ids = append(ids, t.ID)
	}
	if total < s.MinPayoutCents {
		return nil, ErrBelowMinimumPayout
	}

	batch := &models.PayoutBatch{
		ID:             uuid.New().String(),
		PractitionerID: practitionerID,
		TotalNetCents:  total,
		TransactionIDs: ids,
	}
	if err := s.Repo.CommitPayout(ctx, batch); err != nil {
		return nil, err
	}
	s.Logger.Info("payout batch committed",
		zap.String("practitionerId", practitionerID),
		zap.Int64("totalNet", total),
		zap.Int("transactions", len(ids)),
	)
	return batch, nil
}

// ReleaseEligible flips pending transactions whose funds-lock window has
// passed to available. Run hourly by the sweep scheduler.
func (s *DefaultEarningsService) ReleaseEligible(ctx context.Context) (int64, error) {
	n, err := s.Repo.ReleasePending(ctx, time.Now())
	if err != nil {
		return 0, Transient("pending release", err)
	}
	return n, nil
}

// RecordPackageSessionCompleted counts one completed session toward the
// package parent's completion record, creating the record on first use. The
// repository marking is atomic and keyed by the child booking: concurrent
// children both count, and a replayed completion for the same child is a
// no-op rather than an inflated percentage.
func (s *DefaultEarningsService) RecordPackageSessionCompleted(ctx context.Context, parent *models.Booking, childBookingID string) error {
	seed := &models.PackageCompletion{
		ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte("package-completion/"+parent.ID)).String(),
		ParentBookingID: parent.ID,
		PractitionerID:  parent.PractitionerID,
		GrossCents:      parent.FinalAmount,
		CommissionRate:  parent.Snapshot.CommissionRate,
		TotalSessions:   parent.CreditsAllocated,
	}
	err := s.Repo.MarkPackageSessionCompleted(ctx, seed, childBookingID)
	if errors.Is(err, repository.ErrDuplicateKey) {
		// This child was already counted.
		return nil
	}
	if err != nil {
		return Transient("package completion mark", err)
	}
	return nil
}

// ReleasePackagePayout pays the practitioner the slice of package earnings
// newly unlocked by completed sessions. The watermark makes it idempotent:
// a payout for a percentage at or below the last one no-ops, and only the
// caller that wins the compare-and-set actually writes money. Reaching 100%
// takes the final-payout path, releasing the funds immediately.
func (s *DefaultEarningsService) ReleasePackagePayout(ctx context.Context, parentBookingID string) (*models.EarningsTransaction, error) {
	pc, err := s.Repo.GetPackageCompletion(ctx, parentBookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, Transient("package completion fetch", err)
	}

	pct := pc.CompletionPercentage()
	if pct <= pc.LastPayoutPercentage {
		return nil, nil // replay or no new completions
	}

	final := pct >= 100
	won, err := s.Repo.AdvanceWatermark(ctx, pc.ID, pc.LastPayoutPercentage, pct, final)
	if err != nil {
		return nil, Transient("watermark advance", err)
	}
	if !won {
		return nil, nil // concurrent release already advanced it
	}

	_, totalNet := CalculateEarnings(pc.GrossCents, pc.CommissionRate)
	slice := int64(math.Round(float64(totalNet) * (pct - pc.LastPayoutPercentage) / 100))

	t := &models.EarningsTransaction{
		ID:              earningsTransactionID(fmt.Sprintf("package/%s/%.4f", pc.ParentBookingID, pct)),
		PractitionerID:  pc.PractitionerID,
		BookingID:       pc.ParentBookingID,
		GrossCents:      pc.GrossCents,
		CommissionRate:  pc.CommissionRate,
		CommissionCents: pc.GrossCents - totalNet,
		NetCents:        slice,
		Status:          models.EarningsStatusPending,
		AvailableAfter:  time.Now().Add(s.FundsLock),
	}
	if final {
		t.Status = models.EarningsStatusAvailable
		t.AvailableAfter = time.Now()
	}
	if err := s.Repo.CreateTransaction(ctx, t); err != nil {
		return nil, Transient("progressive payout write", err)
	}
	s.Logger.Info("package payout released",
		zap.String("parentBookingId", parentBookingID),
		zap.Float64("percentage", pct),
		zap.Bool("final", final),
		zap.Int64("net", slice),
	)
	return t, nil
}
