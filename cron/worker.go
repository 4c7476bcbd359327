package cron

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"sereno/config"
	"sereno/models"
	booking "sereno/services/booking"
	"sereno/services/lifecycle"
	"sereno/services/sweep"
	"sereno/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Workers bundles everything the queue worker process dispatches to.
type Workers struct {
	Engine     *lifecycle.Engine
	Reminders  *sweep.ReminderSweeper
	Completion *sweep.CompletionSweeper
	Rooms      *sweep.RoomSweeper
	Reschedule *sweep.RescheduleFanout
	Earnings   booking.EarningsService
	Logger     *zap.Logger
}

func redisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisLifecycleQueueDB,
	}
}

// NewQueueClient returns the asynq client used to enqueue lifecycle and
// fan-out tasks from the API process.
func NewQueueClient() *asynq.Client {
	return asynq.NewClient(redisOpts())
}

// InitWorker runs the asynq worker in the background. Critical lifecycle
// steps get most of the worker slots; periodic sweeps run on the low queue
// so a backlog of them cannot starve state transitions.
func InitWorker(w *Workers) {
	srv := asynq.NewServer(
		redisOpts(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
				tasks.QueueLow:      1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return time.Duration(math.Pow(2, float64(n))) * time.Second
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeLifecycleAdvance, w.Engine.HandleAdvance)
	mux.HandleFunc(tasks.TypeReschedule, w.handleReschedule)
	mux.HandleFunc(tasks.TypeSweepReminders, w.handleReminderSweep)
	mux.HandleFunc(tasks.TypeSweepCompletion, w.handleCompletionSweep)
	mux.HandleFunc(tasks.TypeSweepRooms, w.handleRoomSweep)
	mux.HandleFunc(tasks.TypeSweepEarnings, w.handleEarningsSweep)

	go monitorRedisConnection()

	go func() {
		log.Println("[Worker] Starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[Worker] Attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[Worker] Max retry attempts reached. Exiting.")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second) // Exponential backoff
			} else {
				break
			}
		}
	}()
}

// InitScheduler registers the periodic sweeps with the asynq scheduler and
// runs it in the background.
func InitScheduler(logger *zap.Logger) {
	sched := asynq.NewScheduler(redisOpts(), &asynq.SchedulerOpts{
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("sweep enqueue failed", zap.Error(err))
			}
		},
	})

	entries := []struct {
		cronspec string
		taskType string
	}{
		{"*/5 * * * *", tasks.TypeSweepReminders},
		{"*/30 * * * *", tasks.TypeSweepCompletion},
		{"*/30 * * * *", tasks.TypeSweepRooms},
		{"0 * * * *", tasks.TypeSweepEarnings},
	}
	for _, e := range entries {
		if _, err := sched.Register(e.cronspec, tasks.NewSweepTask(e.taskType)); err != nil {
			log.Fatalf("[Scheduler] Failed to register %s: %v", e.taskType, err)
		}
	}

	go func() {
		log.Println("[Scheduler] Starting periodic sweep scheduler...")
		if err := sched.Run(); err != nil {
			log.Fatalf("[Scheduler] Failed to start: %v", err)
		}
	}()
}

func (w *Workers) handleReschedule(ctx context.Context, t *asynq.Task) error {
	var p models.ReschedulePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.Logger.Error("invalid reschedule payload", zap.Error(err))
		return asynq.SkipRetry
	}
	_, err := w.Reschedule.Apply(ctx, p)
	return err
}

func (w *Workers) handleReminderSweep(ctx context.Context, _ *asynq.Task) error {
	return w.Reminders.Run(ctx)
}

func (w *Workers) handleCompletionSweep(ctx context.Context, _ *asynq.Task) error {
	stats, err := w.Completion.Run(ctx)
	if err != nil {
		return err
	}
	if stats.Completed > 0 || stats.Errored > 0 {
		w.Logger.Info("completion sweep finished",
			zap.Int("completed", stats.Completed),
			zap.Int("skipped", stats.Skipped),
			zap.Int("errored", stats.Errored),
		)
	}
	return nil
}

func (w *Workers) handleRoomSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := w.Rooms.Run(ctx)
	return err
}

func (w *Workers) handleEarningsSweep(ctx context.Context, _ *asynq.Task) error {
	released, err := w.Earnings.ReleaseEligible(ctx)
	if err != nil {
		return err
	}
	if released > 0 {
		w.Logger.Info("earnings sweep released pending funds", zap.Int64("released", released))
	}
	return nil
}

// monitorRedisConnection pings Redis periodically to detect queue-backend
// failures at runtime.
func monitorRedisConnection() {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisLifecycleQueueDB,
	})

	ctx := context.Background()

	for {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[Worker] Redis connection lost: %v", err)
		}
		time.Sleep(10 * time.Second)
	}
}
