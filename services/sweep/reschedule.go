package sweep

import (
	"context"
	"time"

	"sereno/database/repository"
	"sereno/models"
	"sereno/services/notification"

	"go.uber.org/zap"
)

// RescheduleFanout moves every live booking tied to a class session when the
// practitioner changes its time. The canonical class-session row is updated
// first; per-booking moves then proceed independently so one bad row cannot
// strand the rest, and each moved booking has its reminder flags cleared so
// the new time gets fresh reminders.
type RescheduleFanout struct {
	Bookings repository.BookingRepository
	Catalog  repository.CatalogRepository
	Notifier notification.NotificationService
	Logger   *zap.Logger
}

// Apply performs the fan-out described by the payload.
func (f *RescheduleFanout) Apply(ctx context.Context, p models.ReschedulePayload) (models.RescheduleResult, error) {
	var result models.RescheduleResult

	if err := f.Catalog.UpdateClassSessionTimes(ctx, p.ClassSessionID, p.NewStart, p.NewEnd); err != nil {
		return result, err
	}

	bookings, err := f.Bookings.FindByClassSession(ctx, p.ClassSessionID)
	if err != nil {
		return result, err
	}

	now := time.Now()
	var practitionerID string
	for i := range bookings {
		b := &bookings[i]
		practitionerID = b.PractitionerID

		audit := models.RescheduleAudit{
			OldStart: b.StartTime,
			OldEnd:   b.EndTime,
			NewStart: p.NewStart,
			NewEnd:   p.NewEnd,
			Reason:   p.Reason,
			At:       now,
		}
		if err := f.Bookings.ApplyReschedule(ctx, b.ID, p.NewStart, p.NewEnd, audit); err != nil {
			f.Logger.Error("reschedule move failed", zap.String("bookingId", b.ID), zap.Error(err))
			result.Errored++
			continue
		}
		result.Affected++

		if err := f.Notifier.SendUserPushNotification(ctx, b.UserID,
			notification.RescheduleTitle, notification.RescheduleBody(b, p.NewStart),
			map[string]string{"type": "reschedule", "bookingId": b.ID},
		); err != nil {
			f.Logger.Warn("reschedule client notice failed", zap.String("bookingId", b.ID), zap.Error(err))
		} else {
			result.Notified++
		}
	}

	if result.Affected > 0 && practitionerID != "" {
		if err := f.Notifier.SendPractitionerPushNotification(ctx, practitionerID,
			notification.RescheduleTitle, notification.RescheduleAggregateBody(result.Affected, p.NewStart),
			map[string]string{"type": "reschedule", "classSessionId": p.ClassSessionID},
		); err != nil {
			f.Logger.Warn("reschedule practitioner notice failed",
				zap.String("classSessionId", p.ClassSessionID), zap.Error(err))
		}
	}

	f.Logger.Info("reschedule fan-out finished",
		zap.String("classSessionId", p.ClassSessionID),
		zap.Int("affected", result.Affected),
		zap.Int("errored", result.Errored),
	)
	return result, nil
}
