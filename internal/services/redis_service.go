package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService provides the optional Redis connection used to narrow the
// distillation check-then-write race across processes. All methods are
// nil-receiver safe: without Redis the store's uniqueness constraint remains
// the authoritative serialization.
type RedisService struct {
	client *redis.Client
}

// NewRedisService creates a new Redis service instance
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisService{client: client}, nil
}

// AcquireLock takes a best-effort exclusive lock. It reports true when the
// lock was obtained or when Redis is not configured.
func (r *RedisService) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r == nil || r.client == nil {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		// Lock failures degrade to the database constraint, they never block work.
		log.Printf("⚠️ [REDIS] Lock acquire failed for %s: %v", key, err)
		return true, nil
	}
	return ok, nil
}

// ReleaseLock drops a previously acquired lock.
func (r *RedisService) ReleaseLock(ctx context.Context, key string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		log.Printf("⚠️ [REDIS] Lock release failed for %s: %v", key, err)
	}
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
