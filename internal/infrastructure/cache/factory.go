package cache

import (
	"context"
	"fmt"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RunLeaseFactory creates run leases based on configuration
type RunLeaseFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RunLeaseFactoryOption is a functional option for configuring the factory
type RunLeaseFactoryOption func(*RunLeaseFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RunLeaseFactoryOption {
	return func(f *RunLeaseFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// an in-process lease. Default is true.
func WithInMemoryFallback(allow bool) RunLeaseFactoryOption {
	return func(f *RunLeaseFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRunLeaseFactory creates a new factory
func NewRunLeaseFactory(cfg config.RedisConfig, opts ...RunLeaseFactoryOption) *RunLeaseFactory {
	f := &RunLeaseFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateLease returns a Redis lease when Redis is enabled and reachable.
// With Redis disabled it returns nil: the unique index on processing runs
// is then the only guard.
func (f *RunLeaseFactory) CreateLease(ctx context.Context) (integration.RunLease, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, run lease not used")
		return nil, nil
	}

	lease, err := NewRedisRunLease(ctx, RedisConfig{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
		Prefix:   f.redisConfig.Prefix,
	})
	if err == nil {
		f.logger.Info("using Redis run lease", zap.String("addr", f.redisConfig.Addr()))
		return lease, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for run lease but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory run lease. "+
		"Runs started by other instances are only excluded by the database.",
		zap.Error(err),
	)
	return NewInMemoryRunLease(), nil
}
