package lifecycle

import (
	"context"
	"errors"
	"time"

	"sereno/services/tasks"

	"github.com/hibiken/asynq"
)

// TaskScheduler schedules the next lifecycle wake-up for a booking. The
// engine depends on this instead of asynq directly so tests can capture
// scheduled steps in memory.
type TaskScheduler interface {
	ScheduleAdvance(ctx context.Context, bookingID string, step Step, at time.Time) error
}

// AsynqScheduler is the production TaskScheduler.
type AsynqScheduler struct {
	Client *asynq.Client
}

func (s *AsynqScheduler) ScheduleAdvance(ctx context.Context, bookingID string, step Step, at time.Time) error {
	task, opts, err := tasks.NewLifecycleAdvanceTask(bookingID, string(step), at, step.Critical())
	if err != nil {
		return err
	}
	_, err = s.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// The successor is already scheduled; a redelivered step re-enqueued it.
		return nil
	}
	return err
}
