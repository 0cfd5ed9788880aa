package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/redis/go-redis/v9"
)

const defaultLeasePrefix = "kksync:run:"

// RedisRunLease implements integration.RunLease using Redis.
// Every service instance sharing the Redis database sees the same lease.
type RedisRunLease struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisRunLease connects to Redis and creates a run lease
func NewRedisRunLease(ctx context.Context, cfg RedisConfig) (*RedisRunLease, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisRunLeaseWithClient(client, cfg.Prefix), nil
}

// NewRedisRunLeaseWithClient creates a lease over an existing client
func NewRedisRunLeaseWithClient(client redis.UniversalClient, keyPrefix string) *RedisRunLease {
	if keyPrefix == "" {
		keyPrefix = defaultLeasePrefix
	}
	return &RedisRunLease{client: client, keyPrefix: keyPrefix}
}

// Acquire takes the lease on task for ttl. It returns false when another
// holder has it. SET NX makes check and set one atomic step.
func (l *RedisRunLease) Acquire(ctx context.Context, task string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.keyPrefix+task, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lease for %s: %w", task, err)
	}
	return ok, nil
}

// Release drops the lease on task
func (l *RedisRunLease) Release(ctx context.Context, task string) error {
	if err := l.client.Del(ctx, l.keyPrefix+task).Err(); err != nil {
		return fmt.Errorf("failed to release run lease for %s: %w", task, err)
	}
	return nil
}

// Ping checks the Redis connection
func (l *RedisRunLease) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *RedisRunLease) Close() error {
	return l.client.Close()
}

var _ integration.RunLease = (*RedisRunLease)(nil)
