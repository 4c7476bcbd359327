package booking

import (
	"context"
	"fmt"
	"time"

	"sereno/database/repository"
	"sereno/models"

	"go.uber.org/zap"
)

// allowedTransitions is the full legal transition table. Terminal states
// have no entry: any attempt out of them fails.
var allowedTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingStatusDraft: {
		models.BookingStatusPendingPayment,
		models.BookingStatusCanceled,
	},
	models.BookingStatusPendingPayment: {
		models.BookingStatusConfirmed,
		models.BookingStatusCanceled,
	},
	models.BookingStatusConfirmed: {
		models.BookingStatusInProgress,
		models.BookingStatusCanceled,
		models.BookingStatusNoShow,
	},
	models.BookingStatusInProgress: {
		models.BookingStatusCompleted,
		models.BookingStatusNoShow,
	},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to models.BookingStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionContext carries the caller-supplied context of a transition.
type TransitionContext struct {
	CanceledBy string
	Reason     string
	Now        time.Time
}

func (tc TransitionContext) now() time.Time {
	if tc.Now.IsZero() {
		return time.Now()
	}
	return tc.Now
}

// StatusService applies status transitions and cancellation policy.
type StatusService interface {
	Transition(ctx context.Context, b *models.Booking, to models.BookingStatus, tc TransitionContext) error
	CanCancel(b *models.Booking, now time.Time) error
}

// DefaultStatusService implements StatusService.
type DefaultStatusService struct {
	Repo           repository.BookingRepository
	MinNoticeHours int
	Logger         *zap.Logger
}

// Transition validates the change against the table, stamps the matching
// timestamp fields, and persists under a status guard so concurrent attempts
// on the same booking serialize. Canceling a package/bundle parent cascades
// to all non-terminal children atomically.
func (s *DefaultStatusService) Transition(ctx context.Context, b *models.Booking, to models.BookingStatus, tc TransitionContext) error {
	from := b.Status
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}

	now := tc.now()
	applyStamps(b, to, now, tc)

	if to == models.BookingStatusCanceled && b.IsParent() {
		return s.cancelCascade(ctx, b, from, now, tc)
	}

	if err := s.Repo.UpdateWithStatusGuard(ctx, b, from); err != nil {
		return err
	}
	s.Logger.Info("booking status changed",
		zap.String("bookingId", b.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (s *DefaultStatusService) cancelCascade(ctx context.Context, parent *models.Booking, from models.BookingStatus, now time.Time, tc TransitionContext) error {
	children, err := s.Repo.FindNonTerminalChildren(ctx, parent.ID)
	if err != nil {
		return Transient("cancel cascade child lookup", err)
	}

	canceled := make([]*models.Booking, 0, len(children))
	reason := fmt.Sprintf("parent booking %s canceled: %s", parent.ID, tc.Reason)
	for i := range children {
		child := children[i]
		applyStamps(&child, models.BookingStatusCanceled, now, TransitionContext{
			CanceledBy: "system",
			Reason:     reason,
		})
		canceled = append(canceled, &child)
	}

	if err := s.Repo.CancelCascade(ctx, parent, canceled, from); err != nil {
		return err
	}
	s.Logger.Info("booking canceled with cascade",
		zap.String("bookingId", parent.ID),
		zap.Int("children", len(canceled)),
	)
	return nil
}

// applyStamps mutates status plus the per-state timestamp fields.
func applyStamps(b *models.Booking, to models.BookingStatus, now time.Time, tc TransitionContext) {
	b.Status = to
	b.StatusChangedAt = &now

	switch to {
	case models.BookingStatusConfirmed:
		b.ConfirmedAt = &now
	case models.BookingStatusInProgress:
		b.StartedAt = &now
		if b.ActualStartTime == nil {
			b.ActualStartTime = &now
		}
	case models.BookingStatusCompleted:
		b.CompletedAt = &now
		if b.ActualEndTime == nil {
			b.ActualEndTime = &now
		}
	case models.BookingStatusCanceled:
		b.CanceledAt = &now
		b.CanceledBy = tc.CanceledBy
		b.CancellationReason = tc.Reason
	case models.BookingStatusNoShow:
		b.NoShowAt = &now
	}
}

// CanCancel applies the cancellation eligibility rule: never from a terminal
// state, and only outside the minimum notice window before start.
func (s *DefaultStatusService) CanCancel(b *models.Booking, now time.Time) error {
	if b.IsTerminal() {
		return ErrBookingTerminal
	}
	notice := time.Duration(s.MinNoticeHours) * time.Hour
	if !b.StartTime.IsZero() && !now.Before(b.StartTime.Add(-notice)) {
		return ErrCancelWindowClosed
	}
	return nil
}
