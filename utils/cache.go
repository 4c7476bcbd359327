// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"sereno/config"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient is the generic cache client (reminder aggregation keys, etc).
	CacheClient *redis.Client
	// LifecycleQueueClient points at the DB backing the asynq lifecycle queue.
	LifecycleQueueClient *redis.Client
)

// InitCache initializes the generic Redis cache client (using DB from AppConfig for general caching).
func InitCache() {
	CacheClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := CacheClient.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Failed to connect to Redis (Cache): %v", err)
	}
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// InitLifecycleQueueClient initializes the Redis client for the lifecycle task queue DB.
// asynq manages its own connections; this client exists for health checks only.
func InitLifecycleQueueClient() {
	LifecycleQueueClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisLifecycleQueueDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := LifecycleQueueClient.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Failed to connect to Redis (Lifecycle Queue): %v", err)
	}
}

// GetLifecycleQueueClient returns the Redis client for the lifecycle queue DB.
func GetLifecycleQueueClient() *redis.Client {
	if LifecycleQueueClient == nil {
		InitLifecycleQueueClient()
	}
	return LifecycleQueueClient
}
