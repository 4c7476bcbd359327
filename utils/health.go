package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthStatus represents current status of external services.
type HealthStatus struct {
	Mongo     bool      `json:"mongo"`
	Cache     bool      `json:"cache"`
	Queue     bool      `json:"queue"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Healthy reports whether every dependency responded on the last check.
func (h HealthStatus) Healthy() bool {
	return h.Mongo && h.Cache && h.Queue
}

var (
	currentHealth HealthStatus
	healthMu      sync.RWMutex
)

// GetHealthStatus returns latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	healthMu.RLock()
	defer healthMu.RUnlock()
	return currentHealth
}

// StartHealthMonitor performs periodic health checks against Mongo, the
// cache DB and the lifecycle queue DB, and updates in-memory state.
func StartHealthMonitor(cacheClient, queueClient *redis.Client, mongoClient *mongo.Client) {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		ctx := context.Background()

		for range ticker.C {
			status := HealthStatus{
				Mongo:     mongoClient.Ping(ctx, nil) == nil,
				Cache:     cacheClient.Ping(ctx).Err() == nil,
				Queue:     queueClient.Ping(ctx).Err() == nil,
				CheckedAt: time.Now(),
			}

			healthMu.Lock()
			currentHealth = status
			healthMu.Unlock()
		}
	}()
}
