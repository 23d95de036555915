package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	partitionapp "github.com/grf/partitioner/internal/application/partition"
	"github.com/grf/partitioner/internal/domain/partition"
	"github.com/grf/partitioner/internal/infrastructure/cache"
	"github.com/grf/partitioner/internal/infrastructure/config"
	"github.com/grf/partitioner/internal/infrastructure/extsort"
	"github.com/grf/partitioner/internal/infrastructure/persistence"
	"github.com/grf/partitioner/internal/infrastructure/sink"
	"github.com/grf/partitioner/internal/infrastructure/storage"
	"github.com/grf/partitioner/internal/infrastructure/telemetry"
)

// components holds the infrastructure opened for one command
type components struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *persistence.Database
	catalog *persistence.GormCatalogRepository
	closers []func(context.Context) error
}

// openCatalog connects the catalog database
func openCatalog(cfg *config.Config, log *zap.Logger) (*components, error) {
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Debug("Catalog database connected", zap.String("driver", db.Driver()))

	c := &components{
		cfg:     cfg,
		log:     log,
		db:      db,
		catalog: persistence.NewGormCatalogRepository(db.DB),
	}
	c.closers = append(c.closers, func(context.Context) error { return db.Close() })
	return c, nil
}

// newService wires the partition service and its telemetry
func (c *components) newService(ctx context.Context) (*partitionapp.Service, error) {
	telemetryCfg := telemetry.ConfigFrom(c.cfg.Telemetry)

	tp, err := telemetry.NewTracerProvider(ctx, telemetryCfg, c.log)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetryCfg, c.log)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, mp.Shutdown)

	metrics, err := telemetry.NewPartitionMetrics(mp.Meter(telemetry.TracerName), c.log)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(&c.cfg.Storage, c.log)
	if err != nil {
		return nil, err
	}

	objectSink, err := sink.New(store, c.cfg.Writer.Format, c.log)
	if err != nil {
		return nil, err
	}

	lock, err := cache.NewRunLockFactory(c.cfg.Redis, cache.WithLogger(c.log)).CreateLock()
	if err != nil {
		return nil, err
	}
	if closer, ok := lock.(io.Closer); ok {
		c.closers = append(c.closers, func(context.Context) error { return closer.Close() })
	}

	return partitionapp.NewService(partitionapp.Dependencies{
		Catalog:       c.catalog,
		Storage:       store,
		Sink:          objectSink,
		Lock:          lock,
		SorterFactory: extsort.NewFactory(&c.cfg.Sort, c.log),
		Metrics:       metrics,
		Logger:        c.log,
	}, partitionapp.Options{
		OutputPrefix:  c.cfg.Job.OutputPrefix,
		LockTTL:       c.cfg.Job.LockTTL,
		WriterWorkers: c.cfg.Writer.Workers,
	})
}

// runRequest builds the run request from the job and plan sections
func runRequest(cfg *config.Config) partitionapp.RunRequest {
	return partitionapp.RunRequest{
		Database:       cfg.Job.Database,
		InventoryTable: cfg.Job.InventoryTable,
		FilelistTable:  cfg.Job.FilelistTable,
		OutputTable:    cfg.Job.OutputTable,
		Plan:           cfg.PlanInput(),
	}
}

// Close releases everything in reverse order of opening
func (c *components) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = c.log.Sync()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// formatTable renders a table definition for humans
func formatTable(t *partition.TableDefinition) string {
	return fmt.Sprintf("%s\tlocation=%s\tformat=%s\trun=%s", t.QualifiedName(), t.Location, t.Format, t.RunID)
}
