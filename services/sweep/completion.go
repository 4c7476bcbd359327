package sweep

import (
	"context"
	"errors"
	"time"

	"sereno/database/repository"
	"sereno/models"
	booking "sereno/services/booking"
	"sereno/services/lifecycle"
	"sereno/services/notification"

	"go.uber.org/zap"
)

// CompletionSweeper closes out bookings whose session window has passed but
// whose status never reached completed, which happens for in-person sessions
// with no attendance signal and for any booking whose lifecycle task was
// lost. Completed bookings are handed back to the lifecycle engine at the
// earnings step so payout and the survey still fire.
type CompletionSweeper struct {
	Bookings repository.BookingRepository
	Catalog  repository.CatalogRepository
	Status   booking.StatusService
	Schedule lifecycle.TaskScheduler
	Notifier notification.NotificationService
	Logger   *zap.Logger
}

// Grace past the scheduled end before the sweep completes a booking, so a
// session running slightly long is not cut off.
const completionGrace = 30 * time.Minute

// Run executes one sweep tick and reports how many bookings it closed.
func (s *CompletionSweeper) Run(ctx context.Context) (models.SweepStats, error) {
	var stats models.SweepStats
	now := time.Now()

	candidates, err := s.Bookings.FindActiveStartedBefore(ctx, now)
	if err != nil {
		return stats, err
	}
	for i := range candidates {
		s.sweepTimed(ctx, &candidates[i], now, &stats)
	}

	courses, err := s.Bookings.FindOpenCourseEnrollments(ctx)
	if err != nil {
		s.Logger.Error("course enrollment sweep query failed", zap.Error(err))
		return stats, err
	}
	for i := range courses {
		s.sweepCourse(ctx, &courses[i], now, &stats)
	}
	return stats, nil
}

func (s *CompletionSweeper) sweepTimed(ctx context.Context, b *models.Booking, now time.Time, stats *models.SweepStats) {
	if now.Before(b.EndTime.Add(completionGrace)) {
		stats.Skipped++
		return
	}
	s.complete(ctx, b, stats)
}

// sweepCourse completes an enrollment once the course's final class session
// has ended. Enrollments in courses that still have sessions scheduled are
// skipped.
func (s *CompletionSweeper) sweepCourse(ctx context.Context, b *models.Booking, now time.Time, stats *models.SweepStats) {
	lastEnd, err := s.Catalog.LatestClassSessionEnd(ctx, b.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			stats.Skipped++
			return
		}
		s.Logger.Error("course session lookup failed", zap.String("bookingId", b.ID), zap.Error(err))
		stats.Errored++
		return
	}
	if lastEnd.IsZero() || now.Before(lastEnd.Add(completionGrace)) {
		stats.Skipped++
		return
	}
	s.complete(ctx, b, stats)
}

// complete walks the booking to completed through in_progress when needed,
// since confirmed does not transition to completed directly.
func (s *CompletionSweeper) complete(ctx context.Context, b *models.Booking, stats *models.SweepStats) {
	if b.Status == models.BookingStatusConfirmed {
		if err := s.Status.Transition(ctx, b, models.BookingStatusInProgress, booking.TransitionContext{}); err != nil {
			s.Logger.Error("completion sweep start transition failed",
				zap.String("bookingId", b.ID), zap.Error(err))
			stats.Errored++
			return
		}
	}
	if err := s.Status.Transition(ctx, b, models.BookingStatusCompleted, booking.TransitionContext{}); err != nil {
		if errors.Is(err, repository.ErrConflict) || booking.IsInvalidTransition(err) {
			// Someone else moved it first, that counts as handled.
			stats.Skipped++
			return
		}
		s.Logger.Error("completion sweep transition failed",
			zap.String("bookingId", b.ID), zap.Error(err))
		stats.Errored++
		return
	}

	s.requestReview(ctx, b)

	if err := s.Schedule.ScheduleAdvance(ctx, b.ID, lifecycle.StepEarnings, time.Now()); err != nil {
		s.Logger.Error("completion sweep earnings enqueue failed",
			zap.String("bookingId", b.ID), zap.Error(err))
		stats.Errored++
		return
	}
	stats.Completed++
	s.Logger.Info("completion sweep closed booking",
		zap.String("bookingId", b.ID), zap.String("type", string(b.Snapshot.Type)))
}

// requestReview asks the client for a review right as the booking closes.
// The lifecycle's own survey still follows a day later.
func (s *CompletionSweeper) requestReview(ctx context.Context, b *models.Booking) {
	err := s.Notifier.SendUserPushNotification(ctx, b.UserID,
		notification.ReviewRequestTitle, notification.ReviewRequestBody(b),
		map[string]string{"type": "review_request", "bookingId": b.ID})
	if err != nil {
		s.Logger.Warn("review request push failed",
			zap.String("bookingId", b.ID), zap.Error(err))
	}
}
