package notification

import (
	"fmt"
	"strings"
	"time"

	"sereno/models"
)

// Titles for the lifecycle pushes.
const (
	BookingConfirmedTitle   = "Your booking is confirmed ✨"
	ReminderTitle           = "Upcoming session reminder"
	RecoveryTitle           = "Having trouble joining?"
	NoShowTitle             = "We missed you today"
	SurveyTitle             = "How was your session?"
	ReviewRequestTitle      = "Your session is complete"
	RescheduleTitle         = "Your session time has changed"
	PractitionerAggReminder = "Upcoming class reminder"
)

func BookingConfirmedBody(b *models.Booking) string {
	if b.StartTime.IsZero() {
		return fmt.Sprintf("Your booking for %s with %s is confirmed.", b.Snapshot.Name, b.Snapshot.PractitionerName)
	}
	return fmt.Sprintf("Your booking for %s with %s on %s is confirmed.",
		b.Snapshot.Name, b.Snapshot.PractitionerName, b.StartTime.Format("Mon, Jan 2 at 3:04 PM"))
}

func ReminderBody(b *models.Booking, win models.ReminderWindow) string {
	when := "in 24 hours"
	if win == models.ReminderWindow30m {
		when = "in 30 minutes"
	}
	return fmt.Sprintf("Your %s with %s starts %s.", b.Snapshot.Name, b.Snapshot.PractitionerName, when)
}

func PractitionerReminderBody(b *models.Booking, win models.ReminderWindow) string {
	when := "in 24 hours"
	if win == models.ReminderWindow30m {
		when = "in 30 minutes"
	}
	return fmt.Sprintf("Your %s session starts %s.", b.Snapshot.Name, when)
}

// AggregatedReminderBody lists every attendee of a shared class session in
// one practitioner notification.
func AggregatedReminderBody(serviceName string, start time.Time, attendees []string) string {
	return fmt.Sprintf("%s at %s: %d attendee%s (%s)",
		serviceName,
		start.Format("3:04 PM"),
		len(attendees),
		plural(len(attendees)),
		strings.Join(attendees, ", "),
	)
}

func RecoveryBody(b *models.Booking) string {
	return fmt.Sprintf("Your %s session has started. Tap to join, or use the dial-in details in your booking.", b.Snapshot.Name)
}

func NoShowBody(b *models.Booking) string {
	return fmt.Sprintf("You missed your %s session with %s. Tap to see reschedule options.",
		b.Snapshot.Name, b.Snapshot.PractitionerName)
}

func SurveyBody(b *models.Booking) string {
	return fmt.Sprintf("Tell us about your %s session with %s. It only takes a minute.",
		b.Snapshot.Name, b.Snapshot.PractitionerName)
}

func ReviewRequestBody(b *models.Booking) string {
	return fmt.Sprintf("Your %s session is complete. Leave %s a review!",
		b.Snapshot.Name, b.Snapshot.PractitionerName)
}

func RescheduleBody(b *models.Booking, newStart time.Time) string {
	return fmt.Sprintf("Your %s session has moved to %s.",
		b.Snapshot.Name, newStart.Format("Mon, Jan 2 at 3:04 PM"))
}

func RescheduleAggregateBody(affected int, newStart time.Time) string {
	return fmt.Sprintf("%d booking%s moved to %s.", affected, plural(affected), newStart.Format("Mon, Jan 2 at 3:04 PM"))
}

// plural returns "s" if n is not 1, otherwise returns an empty string.
func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
