package sweep

import (
	"context"
	"fmt"
	"time"

	"sereno/database/repository"
	"sereno/models"
	"sereno/services/notification"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AggregationGate reserves a dedup key so that among many workers (or many
// bookings in one class session) exactly one sends the shared notification.
type AggregationGate interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisGate backs AggregationGate with SETNX on the cache DB.
type RedisGate struct {
	Client *redis.Client
}

func (g *RedisGate) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.Client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

// ReminderSweeper backstops the per-booking lifecycle reminders and owns the
// 30-minute window outright. It scans confirmed bookings whose start falls
// inside either reminder window and sends whatever has not been sent yet;
// the compare-and-set flag on the booking row makes the sweep and the
// lifecycle engine collectively send each reminder at most once.
type ReminderSweeper struct {
	Bookings repository.BookingRepository
	Notifier notification.NotificationService
	Gate     AggregationGate
	Logger   *zap.Logger
}

// Tolerance widens each window so a delayed sweep tick still catches the
// bookings the previous tick was aimed at.
const reminderTolerance = 10 * time.Minute

type reminderWindow struct {
	win  models.ReminderWindow
	lead time.Duration
}

var reminderWindows = []reminderWindow{
	{models.ReminderWindow24h, 24 * time.Hour},
	{models.ReminderWindow30m, 30 * time.Minute},
}

// Run executes one sweep tick.
func (s *ReminderSweeper) Run(ctx context.Context) error {
	now := time.Now()
	var firstErr error
	for _, w := range reminderWindows {
		from := now.Add(w.lead - reminderTolerance)
		to := now.Add(w.lead + reminderTolerance)
		bookings, err := s.Bookings.FindConfirmedStartingBetween(ctx, from, to)
		if err != nil {
			s.Logger.Error("reminder sweep query failed", zap.String("window", string(w.win)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for i := range bookings {
			s.sweepBooking(ctx, &bookings[i], w.win)
		}
	}
	return firstErr
}

func (s *ReminderSweeper) sweepBooking(ctx context.Context, b *models.Booking, win models.ReminderWindow) {
	if b.Reminders.Sent(models.AudienceClient, win) && b.Reminders.Sent(models.AudiencePractitioner, win) {
		return
	}

	won, err := s.Bookings.MarkReminderSent(ctx, b.ID, models.ReminderField(models.AudienceClient, win), time.Now())
	if err != nil {
		s.Logger.Error("client reminder flag failed", zap.String("bookingId", b.ID), zap.Error(err))
	} else if won {
		if err := s.Notifier.SendUserPushNotification(ctx, b.UserID,
			notification.ReminderTitle, notification.ReminderBody(b, win),
			map[string]string{"type": "reminder_" + string(win), "bookingId": b.ID},
		); err != nil {
			s.Logger.Warn("client reminder send failed", zap.String("bookingId", b.ID), zap.Error(err))
		}
	}

	won, err = s.Bookings.MarkReminderSent(ctx, b.ID, models.ReminderField(models.AudiencePractitioner, win), time.Now())
	if err != nil {
		s.Logger.Error("practitioner reminder flag failed", zap.String("bookingId", b.ID), zap.Error(err))
		return
	}
	if !won {
		return
	}

	if b.ClassSessionID != "" {
		s.sendAggregated(ctx, b, win)
		return
	}
	if err := s.Notifier.SendPractitionerPushNotification(ctx, b.PractitionerID,
		notification.ReminderTitle, notification.PractitionerReminderBody(b, win),
		map[string]string{"type": "reminder_" + string(win), "bookingId": b.ID},
	); err != nil {
		s.Logger.Warn("practitioner reminder send failed", zap.String("bookingId", b.ID), zap.Error(err))
	}
}

// sendAggregated collapses a class session's attendees into one practitioner
// notification. The gate key lives a little longer than the window so late
// replays of the same tick cannot re-fire it.
func (s *ReminderSweeper) sendAggregated(ctx context.Context, b *models.Booking, win models.ReminderWindow) {
	key := fmt.Sprintf("reminder:agg:%s:%s:%s", b.PractitionerID, b.ClassSessionID, win)
	won, err := s.Gate.Reserve(ctx, key, 25*time.Hour)
	if err != nil {
		s.Logger.Error("aggregation gate failed, falling back to per-booking reminder",
			zap.String("bookingId", b.ID), zap.Error(err))
		won = true
	}
	if !won {
		return
	}

	attendees, err := s.Bookings.FindByClassSession(ctx, b.ClassSessionID)
	if err != nil {
		s.Logger.Error("class session attendee lookup failed", zap.String("classSessionId", b.ClassSessionID), zap.Error(err))
		attendees = []models.Booking{*b}
	}
	names := make([]string, 0, len(attendees))
	for i := range attendees {
		if attendees[i].Status == models.BookingStatusConfirmed {
			names = append(names, attendees[i].UserID)
		}
	}
	if err := s.Notifier.SendPractitionerPushNotification(ctx, b.PractitionerID,
		notification.PractitionerAggReminder,
		notification.AggregatedReminderBody(b.Snapshot.Name, b.StartTime, names),
		map[string]string{"type": "reminder_" + string(win), "classSessionId": b.ClassSessionID},
	); err != nil {
		s.Logger.Warn("aggregated reminder send failed", zap.String("classSessionId", b.ClassSessionID), zap.Error(err))
	}
}
