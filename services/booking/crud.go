package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sereno/database/repository"
	"sereno/models"

	"go.uber.org/zap"
)

// BookingService is the operational surface for existing bookings: client
// cancellation and scheduling sessions against bundle/package credits.
type BookingService interface {
	Cancel(ctx context.Context, bookingID, canceledBy, reason string) (*models.Booking, error)
	ScheduleFromCredits(ctx context.Context, parentID string, start, end time.Time) (*models.Booking, error)
}

// DefaultBookingService implements BookingService.
type DefaultBookingService struct {
	Repo   repository.BookingRepository
	Status StatusService
	Logger *zap.Logger
}

// Cancel applies the eligibility rule and then the canceled transition
// (cascading to children when the booking is a package/bundle parent).
// Rejections name their cause so the caller can surface it.
func (s *DefaultBookingService) Cancel(ctx context.Context, bookingID, canceledBy, reason string) (*models.Booking, error) {
	b, err := s.Repo.GetByID(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, Transient("booking fetch", err)
	}

	if err := s.Status.CanCancel(b, time.Now()); err != nil {
		return nil, err
	}

	tc := TransitionContext{CanceledBy: canceledBy, Reason: reason}
	if err := s.Status.Transition(ctx, b, models.BookingStatusCanceled, tc); err != nil {
		return nil, err
	}
	return b, nil
}

// ScheduleFromCredits creates a zero-price child session against a bundle or
// package parent, consuming one credit. Fails with ErrCreditsExhausted when
// none remain.
func (s *DefaultBookingService) ScheduleFromCredits(ctx context.Context, parentID string, start, end time.Time) (*models.Booking, error) {
	parent, err := s.Repo.GetByID(ctx, parentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, Transient("parent fetch", err)
	}
	if !parent.IsParent() {
		return nil, fmt.Errorf("booking %s is not a package or bundle parent", parentID)
	}
	if parent.IsTerminal() {
		return nil, ErrBookingTerminal
	}
	if !end.After(start) {
		return nil, models.ErrInvalidTimeRange
	}

	overlapping, err := s.Repo.FindOverlapping(ctx, parent.PractitionerID, start, end)
	if err != nil {
		return nil, Transient("overlap check", err)
	}
	if len(overlapping) > 0 {
		return nil, ErrConflictingBooking
	}

	child := newBundleChild(parent, start, end)
	if err := s.Repo.CreateScheduledChild(ctx, parent.ID, child); err != nil {
		if errors.Is(err, repository.ErrCreditsExhausted) {
			return nil, ErrCreditsExhausted
		}
		return nil, err
	}

	s.Logger.Info("scheduled session from credits",
		zap.String("parentId", parent.ID),
		zap.String("bookingId", child.ID),
	)
	return child, nil
}
