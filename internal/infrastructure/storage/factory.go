package storage

import (
	"fmt"

	"go.uber.org/zap"

	partitionapp "github.com/grf/partitioner/internal/application/partition"
	infraconfig "github.com/grf/partitioner/internal/infrastructure/config"
)

// New builds the object storage selected by cfg.Driver
func New(cfg *infraconfig.StorageConfig, logger *zap.Logger) (partitionapp.ObjectStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case "s3":
		return NewS3ObjectStorage(cfg, WithLogger(logger.Named("s3")))
	case "filesystem":
		return NewFileSystemStorage(cfg.BasePath, logger.Named("fs"))
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
