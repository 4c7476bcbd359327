package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sereno/database/repository"
	"sereno/models"
	booking "sereno/services/booking"
	"sereno/services/notification"
	"sereno/services/room"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Engine drives one booking from confirmation through post-session
// follow-up as a sequence of durable tasks. Every handler is idempotent:
// the queue delivers at least once, so a crash between a side effect and
// scheduling the successor replays the whole step safely. Each wake-up
// re-reads the booking and halts on a terminal status, which is how an
// external cancellation interrupts a suspended sequence.
type Engine struct {
	Bookings repository.BookingRepository
	Status   booking.StatusService
	Earnings booking.EarningsService
	Rooms    room.RoomService
	Notifier notification.NotificationService
	Schedule TaskScheduler
	Logger   *zap.Logger

	ReminderLead time.Duration // before start, default 48h
	RoomLead     time.Duration // before start, default 15m
	GraceWindow  time.Duration // after start, default 15m
	RecoveryWait time.Duration // after recovery notification, default 5m
	SurveyDelay  time.Duration // after completion, default 24h
}

// NewEngine applies the default timing windows.
func NewEngine(bookings repository.BookingRepository, status booking.StatusService, earnings booking.EarningsService, rooms room.RoomService, notifier notification.NotificationService, schedule TaskScheduler, logger *zap.Logger) *Engine {
	return &Engine{
		Bookings:     bookings,
		Status:       status,
		Earnings:     earnings,
		Rooms:        rooms,
		Notifier:     notifier,
		Schedule:     schedule,
		Logger:       logger,
		ReminderLead: 48 * time.Hour,
		RoomLead:     15 * time.Minute,
		GraceWindow:  15 * time.Minute,
		RecoveryWait: 5 * time.Minute,
		SurveyDelay:  24 * time.Hour,
	}
}

// Start kicks off the lifecycle for a newly confirmed booking.
func (e *Engine) Start(ctx context.Context, bookingID string) error {
	return e.Schedule.ScheduleAdvance(ctx, bookingID, StepConfirm, time.Now())
}

// HandleAdvance is the asynq handler for lifecycle:advance tasks.
func (e *Engine) HandleAdvance(ctx context.Context, t *asynq.Task) error {
	var p models.LifecycleAdvancePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid lifecycle payload: %v: %w", err, asynq.SkipRetry)
	}
	return e.advance(ctx, p.BookingID, Step(p.Step))
}

func (e *Engine) advance(ctx context.Context, bookingID string, step Step) error {
	b, err := e.Bookings.GetByID(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		e.Logger.Warn("lifecycle booking vanished, halting",
			zap.String("bookingId", bookingID), zap.String("step", string(step)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lifecycle booking fetch: %w", err)
	}

	// Cancellation interrupt: checked on every wake before any side effect.
	// A completed booking still runs its post-session tail (earnings, survey,
	// completion replays); everything else halts on a terminal status.
	if halted(b.Status, step) {
		e.Logger.Info("lifecycle halting on terminal status",
			zap.String("bookingId", b.ID),
			zap.String("status", string(b.Status)),
			zap.String("step", string(step)),
		)
		return nil
	}

	switch step {
	case StepConfirm:
		return e.stepConfirm(ctx, b)
	case StepReminder:
		return e.stepReminder(ctx, b)
	case StepRoomSetup:
		return e.stepRoomSetup(ctx, b)
	case StepSessionStart:
		return e.stepSessionStart(ctx, b)
	case StepAttendanceCheck:
		return e.stepAttendanceCheck(ctx, b)
	case StepRecoveryCheck:
		return e.stepRecoveryCheck(ctx, b)
	case StepComplete:
		return e.stepComplete(ctx, b)
	case StepEarnings:
		return e.stepEarnings(ctx, b)
	case StepSurvey:
		return e.stepSurvey(ctx, b)
	default:
		return fmt.Errorf("unknown lifecycle step %q: %w", step, asynq.SkipRetry)
	}
}

func halted(status models.BookingStatus, step Step) bool {
	switch status {
	case models.BookingStatusCanceled, models.BookingStatusNoShow:
		return true
	case models.BookingStatusCompleted:
		return step != StepComplete && step != StepEarnings && step != StepSurvey
	}
	return false
}

// stepConfirm validates the booking entered the sequence confirmed and
// notifies both parties. A booking in any other live state is a wiring bug
// and fails the workflow for operator attention.
func (e *Engine) stepConfirm(ctx context.Context, b *models.Booking) error {
	if b.Status != models.BookingStatusConfirmed {
		return fmt.Errorf("lifecycle started for booking %s in status %s: %w", b.ID, b.Status, asynq.SkipRetry)
	}

	e.notifyUser(ctx, b, notification.BookingConfirmedTitle, notification.BookingConfirmedBody(b), "booking_confirmed")
	e.notifyPractitioner(ctx, b, notification.BookingConfirmedTitle,
		fmt.Sprintf("New booking: %s on %s.", b.Snapshot.Name, b.StartTime.Format("Mon, Jan 2 at 3:04 PM")),
		"booking_confirmed")

	return e.Schedule.ScheduleAdvance(ctx, b.ID, StepReminder, b.StartTime.Add(-e.ReminderLead))
}

// Slack past the nominal reminder lead before a wake counts as premature.
const reminderSlack = 15 * time.Minute

// stepReminder sends the 24h-class reminders. The flag flip is a
// compare-and-set shared with the periodic sweep, so whichever mechanism
// wakes first sends and the other skips.
func (e *Engine) stepReminder(ctx context.Context, b *models.Booking) error {
	// A reschedule that pushes the booking out leaves this task at the old
	// wake time. Skip the premature send so the cleared flags stay free for
	// the sweep's windows around the new start; the chain itself moves on.
	if time.Until(b.StartTime) > e.ReminderLead+reminderSlack {
		return e.Schedule.ScheduleAdvance(ctx, b.ID, StepRoomSetup, b.StartTime.Add(-e.RoomLead))
	}

	won, err := e.Bookings.MarkReminderSent(ctx, b.ID,
		models.ReminderField(models.AudienceClient, models.ReminderWindow24h), time.Now())
	if err != nil {
		return fmt.Errorf("reminder flag: %w", err)
	}
	if won {
		e.notifyUser(ctx, b, notification.ReminderTitle, notification.ReminderBody(b, models.ReminderWindow24h), "reminder_24h")
	}

	won, err = e.Bookings.MarkReminderSent(ctx, b.ID,
		models.ReminderField(models.AudiencePractitioner, models.ReminderWindow24h), time.Now())
	if err != nil {
		return fmt.Errorf("reminder flag: %w", err)
	}
	if won {
		e.notifyPractitioner(ctx, b, notification.ReminderTitle, notification.PractitionerReminderBody(b, models.ReminderWindow24h), "reminder_24h")
	}

	return e.Schedule.ScheduleAdvance(ctx, b.ID, StepRoomSetup, b.StartTime.Add(-e.RoomLead))
}

// stepRoomSetup creates the session room shortly before start. No-op when a
// room already exists; a creation failure is logged and left to the
// reconciliation sweep rather than blocking the sequence.
func (e *Engine) stepRoomSetup(ctx context.Context, b *models.Booking) error {
	if b.RoomID == "" && b.Snapshot.LocationMode.NeedsRoom() && b.ClassSessionID == "" {
		roomID, err := e.Rooms.CreateRoom(ctx, b)
		if err != nil {
			e.Logger.Warn("lifecycle room creation failed, reconciliation sweep will retry",
				zap.String("bookingId", b.ID), zap.Error(err))
		} else if _, err := e.Bookings.SetRoom(ctx, b.ID, roomID); err != nil {
			e.Logger.Warn("lifecycle room link failed", zap.String("bookingId", b.ID), zap.Error(err))
		}
	}
	return e.Schedule.ScheduleAdvance(ctx, b.ID, StepSessionStart, b.StartTime)
}

// stepSessionStart moves the booking into in_progress at its start time.
func (e *Engine) stepSessionStart(ctx context.Context, b *models.Booking) error {
	if b.Status == models.BookingStatusConfirmed {
		if err := e.Status.Transition(ctx, b, models.BookingStatusInProgress, booking.TransitionContext{}); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("session start raced another writer: %w", err)
			}
			return err
		}
	}
	return e.Schedule.ScheduleAdvance(ctx, b.ID, StepAttendanceCheck, b.StartTime.Add(e.GraceWindow))
}

// stepAttendanceCheck looks for the client after the grace window. Present
// clients proceed straight to completion scheduling; absent ones enter the
// no-show recovery sub-sequence.
func (e *Engine) stepAttendanceCheck(ctx context.Context, b *models.Booking) error {
	joined, err := e.clientJoined(ctx, b)
	if err != nil {
		return err
	}
	if joined {
		return e.Schedule.ScheduleAdvance(ctx, b.ID, StepComplete, e.sessionEnd(b))
	}

	e.notifyUser(ctx, b, notification.RecoveryTitle, notification.RecoveryBody(b), "noshow_recovery")
	return e.Schedule.ScheduleAdvance(ctx, b.ID, StepRecoveryCheck, time.Now().Add(e.RecoveryWait))
}

// stepRecoveryCheck re-checks attendance after the recovery notification.
// A client who joined in the meantime rejoins the normal completion path;
// otherwise the booking goes to no_show and the sequence ends.
func (e *Engine) stepRecoveryCheck(ctx context.Context, b *models.Booking) error {
	joined, err := e.clientJoined(ctx, b)
	if err != nil {
		return err
	}
	if joined {
		e.Logger.Info("no-show recovered, resuming normal path", zap.String("bookingId", b.ID))
		return e.Schedule.ScheduleAdvance(ctx, b.ID, StepComplete, e.sessionEnd(b))
	}

	if err := e.Status.Transition(ctx, b, models.BookingStatusNoShow, booking.TransitionContext{}); err != nil {
		if booking.IsInvalidTransition(err) {
			// Already moved terminally by someone else; nothing left to do.
			return nil
		}
		return err
	}
	e.notifyUser(ctx, b, notification.NoShowTitle, notification.NoShowBody(b), "noshow_reschedule")
	if b.RoomID != "" {
		if err := e.Rooms.EndRoom(ctx, b.RoomID); err != nil {
			e.Logger.Warn("room teardown failed after no-show", zap.String("bookingId", b.ID), zap.Error(err))
		}
	}
	return nil
}

// stepComplete marks the booking completed and tears down the room.
func (e *Engine) stepComplete(ctx context.Context, b *models.Booking) error {
	if b.Status == models.BookingStatusInProgress {
		if err := e.Status.Transition(ctx, b, models.BookingStatusCompleted, booking.TransitionContext{}); err != nil {
			return err
		}
	}
	if b.RoomID != "" {
		if err := e.Rooms.EndRoom(ctx, b.RoomID); err != nil {
			e.Logger.Warn("room teardown failed", zap.String("bookingId", b.ID), zap.Error(err))
		}
	}
	return e.Schedule.ScheduleAdvance(ctx, b.ID, StepEarnings, time.Now())
}

// stepEarnings persists the practitioner's earnings for the completed
// session. A write failure here is retried and, after exhausting the
// critical-queue budget, surfaces as a failed task for operators.
func (e *Engine) stepEarnings(ctx context.Context, b *models.Booking) error {
	if b.Status != models.BookingStatusCompleted {
		return fmt.Errorf("earnings step for booking %s in status %s: %w", b.ID, b.Status, asynq.SkipRetry)
	}
	if _, err := e.Earnings.Record(ctx, b); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Replayed step; the transaction is already on file.
			e.Logger.Info("earnings already recorded", zap.String("bookingId", b.ID))
		} else {
			return err
		}
	}
	if b.ParentID != "" {
		e.releasePackageSlice(ctx, b)
	}
	return e.Schedule.ScheduleAdvance(ctx, b.ID, StepSurvey, time.Now().Add(e.SurveyDelay))
}

// stepSurvey sends the post-session survey and ends the sequence.
func (e *Engine) stepSurvey(ctx context.Context, b *models.Booking) error {
	e.notifyUser(ctx, b, notification.SurveyTitle, notification.SurveyBody(b), "post_session_survey")
	e.Logger.Info("lifecycle finished", zap.String("bookingId", b.ID))
	return nil
}

// releasePackageSlice advances the progressive payout for a package child's
// parent. Best-effort here: the watermark logic is idempotent and the next
// child completion retries naturally.
func (e *Engine) releasePackageSlice(ctx context.Context, b *models.Booking) {
	parent, err := e.Bookings.GetByID(ctx, b.ParentID)
	if err != nil || !parent.IsPackagePurchase {
		return
	}
	if err := e.Earnings.RecordPackageSessionCompleted(ctx, parent, b.ID); err != nil {
		e.Logger.Warn("package completion bump failed", zap.String("parentId", parent.ID), zap.Error(err))
		return
	}
	if _, err := e.Earnings.ReleasePackagePayout(ctx, parent.ID); err != nil {
		e.Logger.Warn("package payout release failed", zap.String("parentId", parent.ID), zap.Error(err))
	}
}

func (e *Engine) clientJoined(ctx context.Context, b *models.Booking) (bool, error) {
	if b.RoomID == "" {
		if b.ClassSessionID != "" {
			// The shared class room lives on the class session. Without the
			// link there is no per-attendee signal, and a private room would
			// measure an empty room, so class bookings count as present.
			return true, nil
		}
		// Room never materialized; attendance is unknowable, so try once to
		// repair and retry the step rather than guessing no_show.
		roomID, err := e.Rooms.CreateRoom(ctx, b)
		if err != nil {
			return false, fmt.Errorf("attendance check has no room for booking %s: %w", b.ID, err)
		}
		if _, err := e.Bookings.SetRoom(ctx, b.ID, roomID); err != nil {
			return false, fmt.Errorf("attendance room link: %w", err)
		}
		b.RoomID = roomID
	}
	joined, err := e.Rooms.ParticipantJoined(ctx, b.RoomID, b.UserID)
	if err != nil {
		return false, fmt.Errorf("attendance check: %w", err)
	}
	return joined, nil
}

func (e *Engine) sessionEnd(b *models.Booking) time.Time {
	if !b.EndTime.IsZero() {
		return b.EndTime
	}
	return time.Now().Add(b.Duration())
}

func (e *Engine) notifyUser(ctx context.Context, b *models.Booking, title, body, kind string) {
	err := e.Notifier.SendUserPushNotification(ctx, b.UserID, title, body,
		map[string]string{"type": kind, "bookingId": b.ID})
	if err != nil {
		e.Logger.Warn("user notification failed",
			zap.String("bookingId", b.ID), zap.String("kind", kind), zap.Error(err))
	}
}

func (e *Engine) notifyPractitioner(ctx context.Context, b *models.Booking, title, body, kind string) {
	err := e.Notifier.SendPractitionerPushNotification(ctx, b.PractitionerID, title, body,
		map[string]string{"type": kind, "bookingId": b.ID})
	if err != nil {
		e.Logger.Warn("practitioner notification failed",
			zap.String("bookingId", b.ID), zap.String("kind", kind), zap.Error(err))
	}
}
