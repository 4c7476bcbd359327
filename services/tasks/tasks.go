package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"sereno/models"

	"github.com/hibiken/asynq"
)

// Task type names routed by the cron worker mux.
const (
	TypeLifecycleAdvance = "lifecycle:advance"
	TypeSweepReminders   = "sweep:reminders"
	TypeSweepCompletion  = "sweep:completion"
	TypeSweepRooms       = "sweep:rooms"
	TypeSweepEarnings    = "sweep:earnings"
	TypeReschedule       = "booking:reschedule"
)

// Queue names. Critical carries state-mutating lifecycle steps and gets more
// retries and workers than best-effort notification work.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// NewLifecycleAdvanceTask builds the durable task that wakes one booking's
// lifecycle at the given time. The task ID makes enqueueing idempotent: a
// crashed-and-retried step that re-enqueues its successor collides on the ID
// instead of double-scheduling it.
func NewLifecycleAdvanceTask(bookingID, step string, at time.Time, critical bool) (*asynq.Task, []asynq.Option, error) {
	payload := models.LifecycleAdvancePayload{BookingID: bookingID, Step: step}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	queue := QueueDefault
	maxRetry := 5
	if critical {
		queue = QueueCritical
		maxRetry = 10
	}
	opts := []asynq.Option{
		asynq.ProcessAt(at),
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(fmt.Sprintf("lifecycle:%s:%s", bookingID, step)),
		asynq.Retention(24 * time.Hour),
	}
	return asynq.NewTask(TypeLifecycleAdvance, b), opts, nil
}

// NewRescheduleTask builds the fan-out task fired when a class session's
// time changes.
func NewRescheduleTask(payload models.ReschedulePayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
	}
	return asynq.NewTask(TypeReschedule, b), opts, nil
}

// NewSweepTask builds one of the periodic sweep tasks registered with the
// asynq scheduler.
func NewSweepTask(taskType string) *asynq.Task {
	return asynq.NewTask(taskType, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))
}
