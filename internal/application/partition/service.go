// Package partitionapp runs the inventory partitioning job: it sizes the
// partitions, orders and numbers the inventory, applies description overrides
// and publishes the partitioned table through the catalog.
package partitionapp

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grf/partitioner/internal/domain/partition"
	csvimport "github.com/grf/partitioner/internal/infrastructure/import"
	"github.com/grf/partitioner/internal/infrastructure/logger"
	"github.com/grf/partitioner/internal/infrastructure/telemetry"
)

// Run outcomes reported to metrics
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusLocked    = "locked"
)

// Defaults applied to zero Options fields
const (
	DefaultLockTTL       = 6 * time.Hour
	DefaultWriterWorkers = 4
)

// maxBatchPrealloc caps the records preallocated per partition batch
const maxBatchPrealloc = 1 << 16

// Dependencies are the ports the service drives
type Dependencies struct {
	Catalog       partition.CatalogRepository
	Storage       ObjectStorage
	Sink          PartitionSink
	Lock          partition.RunLock
	SorterFactory SorterFactory
	Metrics       Metrics
	Logger        *zap.Logger
}

// Options tune a Service
type Options struct {
	OutputPrefix  string // runs are written below <OutputPrefix>/run=<id>
	LockTTL       time.Duration
	WriterWorkers int
}

// RunRequest names the tables of one run and carries its sizing inputs
type RunRequest struct {
	Database       string
	InventoryTable string
	FilelistTable  string
	OutputTable    string
	Plan           partition.PlanInput
}

// Validate checks that every table is named
func (r RunRequest) Validate() error {
	fields := []struct{ name, value string }{
		{"database", r.Database},
		{"inventory table", r.InventoryTable},
		{"filelist table", r.FilelistTable},
		{"output table", r.OutputTable},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return partition.NewDomainError(partition.ErrCodeInvalidTable, f.name+" is required")
		}
	}
	return nil
}

// RunResult summarises a committed run
type RunResult struct {
	RunID            string
	Location         string
	Plan             partition.PartitionPlan
	Records          int64
	Partitions       []partition.PartitionEntry
	OverridesApplied int64
	OverrideStats    partition.OverrideStats
	SortStats        SortStats
	Duration         time.Duration
}

// Service executes partitioning runs
type Service struct {
	catalog   partition.CatalogRepository
	storage   ObjectStorage
	sink      PartitionSink
	lock      partition.RunLock
	newSorter SorterFactory
	metrics   Metrics
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewService creates a Service. Catalog, Storage, Sink, Lock and SorterFactory are required.
func NewService(deps Dependencies, opts Options) (*Service, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("partition service requires a catalog")
	case deps.Storage == nil:
		return nil, errors.New("partition service requires object storage")
	case deps.Sink == nil:
		return nil, errors.New("partition service requires a partition sink")
	case deps.Lock == nil:
		return nil, errors.New("partition service requires a run lock")
	case deps.SorterFactory == nil:
		return nil, errors.New("partition service requires a sorter factory")
	}
	if deps.Metrics == nil {
		deps.Metrics = NoopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.WriterWorkers <= 0 {
		opts.WriterWorkers = DefaultWriterWorkers
	}
	opts.OutputPrefix = strings.Trim(opts.OutputPrefix, "/")

	return &Service{
		catalog:   deps.Catalog,
		storage:   deps.Storage,
		sink:      deps.Sink,
		lock:      deps.Lock,
		newSorter: deps.SorterFactory,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		opts:      opts,
		now:       time.Now,
	}, nil
}

// Plan validates the sizing inputs and computes the partition plan
func (s *Service) Plan(ctx context.Context, in partition.PlanInput) (partition.PartitionPlan, error) {
	plan, err := partition.ComputePartitionSize(in)
	if err != nil {
		return partition.PartitionPlan{}, err
	}

	logger.ForContext(ctx, s.logger).Info("Partition plan computed",
		zap.Int64("daily_quota", in.DailyQuota),
		zap.Int64("vault_size", in.VaultSize),
		zap.Int64("archive_count", in.ArchiveCount),
		zap.Int64("estimated_days", plan.Days),
		zap.Int64("partition_size", plan.Size),
		zap.Int64("partitions", plan.PartitionCount(in.ArchiveCount)),
	)
	return plan, nil
}

// RunLocation returns the object prefix of run runID
func (s *Service) RunLocation(runID string) string {
	return path.Join(s.opts.OutputPrefix, "run="+runID)
}

// Run partitions the inventory and publishes the result as the output table.
// Either the whole run is committed or the catalog is left untouched and the
// objects written by the run are deleted.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := s.now()
	ctx, span := telemetry.StartServiceSpan(ctx, "partition", "run",
		telemetry.WithAttribute(telemetry.SpanAttrTable, req.Database+"."+req.OutputTable),
	)
	defer span.End()

	result, status, err := s.run(ctx, req)
	duration := s.now().Sub(start)
	s.metrics.RecordRun(ctx, status, duration)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result.Duration = duration
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRunID, result.RunID,
		telemetry.SpanAttrRecords, result.Records,
		telemetry.SpanAttrPartitions, len(result.Partitions),
	)
	return result, nil
}

func (s *Service) run(ctx context.Context, req RunRequest) (*RunResult, string, error) {
	if err := req.Validate(); err != nil {
		return nil, RunStatusFailed, err
	}
	plan, err := s.Plan(ctx, req.Plan)
	if err != nil {
		return nil, RunStatusFailed, err
	}

	runID := uuid.NewString()
	outputName := req.Database + "." + req.OutputTable
	ctx, log := logger.WithRunID(ctx, s.logger, runID)
	ctx, log = logger.WithTable(ctx, log, outputName)

	handle, err := s.lock.Acquire(ctx, outputName, s.opts.LockTTL)
	if err != nil {
		if errors.Is(err, partition.ErrRunLocked) {
			return nil, RunStatusLocked, err
		}
		return nil, RunStatusFailed, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() {
		if err := handle.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	inventory, err := s.inputTable(ctx, req.Database, req.InventoryTable)
	if err != nil {
		return nil, RunStatusFailed, err
	}
	filelist, err := s.inputTable(ctx, req.Database, req.FilelistTable)
	if err != nil {
		return nil, RunStatusFailed, err
	}

	sorter, err := s.newSorter()
	if err != nil {
		return nil, RunStatusFailed, fmt.Errorf("failed to create sorter: %w", err)
	}
	defer func() {
		if err := sorter.Close(); err != nil {
			log.Warn("Failed to clean up sorter", zap.Error(err))
		}
	}()

	index, extras, err := s.load(ctx, inventory, filelist, sorter)
	if err != nil {
		return nil, RunStatusFailed, err
	}
	overrideStats := index.Stats()
	log.Info("Inputs loaded",
		zap.Int64("records", sorter.Stats().Records),
		zap.Int("sort_runs", sorter.Stats().Runs),
		zap.Int64("overrides", overrideStats.Keys),
		zap.Int64("duplicate_overrides", overrideStats.Duplicates),
		zap.Strings("extra_columns", extras),
	)
	if n := sorter.Stats().Records; n != req.Plan.ArchiveCount {
		log.Warn("Inventory size differs from the configured archive count",
			zap.Int64("records", n),
			zap.Int64("archive_count", req.Plan.ArchiveCount),
		)
	}

	location := s.RunLocation(runID)
	written, overridden, err := s.write(ctx, runID, location, plan, extras, sorter, index)
	if err == nil {
		err = verifyPartitions(written, sorter.Stats().Records)
	}
	if err != nil {
		s.abort(ctx, log, written)
		return nil, RunStatusFailed, err
	}

	entries := make([]partition.PartitionEntry, len(written))
	for i, obj := range written {
		entries[i] = obj.Entry()
	}
	output := partition.TableDefinition{
		Database:      req.Database,
		Name:          req.OutputTable,
		Location:      location,
		Format:        s.sink.Format(),
		Compression:   s.sink.Compression(),
		Columns:       partition.OutputColumns(extras),
		PartitionKeys: []string{partition.ColumnPartition},
		RunID:         runID,
	}
	previous, err := s.catalog.CommitOutput(ctx, output, entries)
	if err != nil {
		s.abort(ctx, log, written)
		return nil, RunStatusFailed, fmt.Errorf("failed to commit %s: %w", outputName, err)
	}

	records := sorter.Stats().Records
	s.metrics.AddRecords(ctx, records)
	s.metrics.AddOverridesApplied(ctx, overridden)
	log.Info("Run committed",
		zap.String("location", location),
		zap.Int64("records", records),
		zap.Int("partitions", len(entries)),
		zap.Int64("overrides_applied", overridden),
	)

	if previous != nil {
		s.collectPrevious(ctx, log, previous, location)
	}

	return &RunResult{
		RunID:            runID,
		Location:         location,
		Plan:             plan,
		Records:          records,
		Partitions:       entries,
		OverridesApplied: overridden,
		OverrideStats:    overrideStats,
		SortStats:        sorter.Stats(),
	}, RunStatusSucceeded, nil
}

// inputTable resolves a CSV input table
func (s *Service) inputTable(ctx context.Context, database, name string) (*partition.TableDefinition, error) {
	table, err := s.catalog.GetTable(ctx, database, name)
	if err != nil {
		return nil, err
	}
	if table.Format != partition.FormatCSV {
		return nil, partition.NewDomainError(partition.ErrCodeInvalidTable,
			fmt.Sprintf("input table %s must be csv, got %s", table.QualifiedName(), table.Format))
	}
	return table, nil
}

// load builds the override index and feeds the inventory into sorter concurrently.
// It returns the passthrough columns of the inventory in first-seen order.
func (s *Service) load(ctx context.Context, inventory, filelist *partition.TableDefinition, sorter RecordSorter) (*partition.OverrideIndex, []string, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "partition", "load")
	defer span.End()

	var (
		index  *partition.OverrideIndex
		extras []string
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		builder := partition.NewOverrideIndexBuilder()
		err := s.eachObject(gctx, filelist.Location, func(key string, r io.Reader) error {
			reader, err := csvimport.NewOverrideReader(r, key)
			if err != nil {
				return err
			}
			return reader.Each(func(rec partition.OverrideRecord) error {
				builder.Add(rec)
				return nil
			})
		})
		if err != nil {
			return fmt.Errorf("failed to read filelist %s: %w", filelist.QualifiedName(), err)
		}
		index = builder.Build()
		return nil
	})

	g.Go(func() error {
		err := s.eachObject(gctx, inventory.Location, func(key string, r io.Reader) error {
			reader, err := csvimport.NewInventoryReader(r, key)
			if err != nil {
				return err
			}
			for _, col := range reader.ExtraColumns() {
				if !slices.Contains(extras, col) {
					extras = append(extras, col)
				}
			}
			return reader.Each(func(rec partition.InventoryRecord) error {
				return sorter.Add(gctx, rec)
			})
		})
		if err != nil {
			return fmt.Errorf("failed to read inventory %s: %w", inventory.QualifiedName(), err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}
	return index, extras, nil
}

// eachObject opens every non-empty object below location in key order
func (s *Service) eachObject(ctx context.Context, location string, fn func(key string, r io.Reader) error) error {
	objects, err := s.storage.List(ctx, strings.TrimSuffix(location, "/")+"/")
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		// an empty object holds no rows, not even a header
		if obj.Size == 0 {
			s.logger.Debug("Skipping empty object", zap.String("key", obj.Key))
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rc, err := s.storage.Open(ctx, obj.Key)
		if err != nil {
			return err
		}
		err = fn(obj.Key, rc)
		closeErr := rc.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return fmt.Errorf("failed to close %s: %w", obj.Key, closeErr)
		}
	}
	return nil
}

// write streams the numbered records through the reconciler and hands each
// complete partition to a pool of sink writers. It returns every object
// written, also on failure, sorted by partition id.
func (s *Service) write(
	ctx context.Context,
	runID, location string,
	plan partition.PartitionPlan,
	extras []string,
	sorter RecordSorter,
	index *partition.OverrideIndex,
) ([]PartitionObject, int64, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "partition", "write",
		telemetry.WithAttribute(telemetry.SpanAttrFormat, s.sink.Format()),
	)
	defer span.End()

	var (
		mu         sync.Mutex
		written    []PartitionObject
		overridden int64
	)
	batches := make(chan PartitionBatch, s.opts.WriterWorkers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)

		send := func(b PartitionBatch) error {
			select {
			case batches <- b:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		var current *PartitionBatch
		err := sorter.Each(gctx, func(rec partition.NumberedRecord) error {
			out := partition.Reconcile(rec, index, plan.Size)
			if out.Overridden {
				overridden++
			}
			if current != nil && current.PartitionID != out.PartitionID {
				if err := send(*current); err != nil {
					return err
				}
				current = nil
			}
			if current == nil {
				current = &PartitionBatch{
					RunID:        runID,
					Location:     location,
					PartitionID:  out.PartitionID,
					ExtraColumns: extras,
					Records:      make([]partition.ReconciledRecord, 0, min(plan.Size, maxBatchPrealloc)),
				}
			}
			current.Records = append(current.Records, out)
			return nil
		})
		if err != nil {
			return err
		}
		if current != nil {
			return send(*current)
		}
		return nil
	})

	for range s.opts.WriterWorkers {
		g.Go(func() error {
			for batch := range batches {
				started := s.now()
				obj, err := s.sink.WritePartition(gctx, batch)
				if err != nil {
					return fmt.Errorf("failed to write partition %d: %w", batch.PartitionID, err)
				}
				s.metrics.RecordPartitionWrite(gctx, s.sink.Format(), obj.Records, s.now().Sub(started))

				mu.Lock()
				written = append(written, obj)
				mu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	slices.SortFunc(written, func(a, b PartitionObject) int {
		return cmp.Compare(a.PartitionID, b.PartitionID)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return written, 0, err
	}
	return written, overridden, nil
}

// verifyPartitions checks that the written objects tile the row number range
// [0, records) in partition order
func verifyPartitions(objects []PartitionObject, records int64) error {
	counts := make([]int64, len(objects))
	var total int64
	for i, obj := range objects {
		if obj.PartitionID != int64(i) {
			return fmt.Errorf("partition %d is missing from the output", i)
		}
		counts[i] = obj.Records
		total += obj.Records
	}
	if total != records {
		return fmt.Errorf("wrote %d records, sorted %d", total, records)
	}
	for i, offset := range partition.RunOffsets(counts) {
		obj := objects[i]
		if obj.MinRowNum != offset || obj.MaxRowNum != offset+obj.Records-1 {
			return fmt.Errorf("partition %d covers rows %d..%d, expected %d..%d",
				obj.PartitionID, obj.MinRowNum, obj.MaxRowNum, offset, offset+obj.Records-1)
		}
	}
	return nil
}

// abort deletes the objects of a failed run
func (s *Service) abort(ctx context.Context, log *zap.Logger, objects []PartitionObject) {
	if len(objects) == 0 {
		return
	}
	if err := s.sink.Abort(context.WithoutCancel(ctx), objects); err != nil {
		log.Error("Failed to delete objects of the failed run", zap.Int("objects", len(objects)), zap.Error(err))
		return
	}
	log.Info("Deleted objects of the failed run", zap.Int("objects", len(objects)))
}

// collectPrevious deletes the objects of the run replaced by the commit. Failures are logged only.
func (s *Service) collectPrevious(ctx context.Context, log *zap.Logger, previous *partition.TableDefinition, current string) {
	prefix := strings.TrimSuffix(previous.Location, "/")
	if previous.RunID == "" || prefix == "" || prefix == current {
		return
	}
	log = log.With(zap.String("previous_run_id", previous.RunID), zap.String("previous_location", prefix))

	objects, err := s.storage.List(ctx, prefix+"/")
	if err != nil {
		log.Warn("Failed to list objects of the previous run", zap.Error(err))
		return
	}
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	if err := s.storage.Delete(ctx, keys...); err != nil {
		log.Warn("Failed to delete objects of the previous run", zap.Error(err))
		return
	}
	log.Info("Previous run collected", zap.Int("objects", len(keys)))
}
