// Package cache provides the run lock that keeps two runs from writing the
// same output table at once.
package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/grf/partitioner/internal/domain/partition"
	"github.com/grf/partitioner/internal/infrastructure/config"
)

// RunLockFactory creates run locks based on configuration
type RunLockFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RunLockFactoryOption is a functional option for configuring the factory
type RunLockFactoryOption func(*RunLockFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RunLockFactoryOption {
	return func(f *RunLockFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to a
// process-local lock. Default is false.
func WithInMemoryFallback(allow bool) RunLockFactoryOption {
	return func(f *RunLockFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRunLockFactory creates a new factory
func NewRunLockFactory(cfg config.RedisConfig, opts ...RunLockFactoryOption) *RunLockFactory {
	f := &RunLockFactory{
		redisConfig: cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateLock returns a Redis lock when Redis is enabled, an in-memory lock otherwise
func (f *RunLockFactory) CreateLock() (partition.RunLock, error) {
	if !f.redisConfig.Enabled {
		f.logger.Debug("using in-memory run lock")
		return NewInMemoryRunLock(), nil
	}

	lock, err := NewRedisRunLock(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis run lock", zap.String("addr", f.redisConfig.Addr()))
		return lock, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for the run lock but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory run lock. "+
		"Concurrent runs on other hosts are not excluded.",
		zap.Error(err),
	)
	return NewInMemoryRunLock(), nil
}
