package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned by NewPartitionMetrics without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// PartitionMetrics records partitioning runs as OpenTelemetry instruments.
type PartitionMetrics struct {
	logger *zap.Logger

	runsTotal        *Counter
	runDuration      *Histogram
	recordsTotal     *Counter
	overridesTotal   *Counter
	partitionsTotal  *Counter
	partitionRecords *Counter
	writeDuration    *Histogram
}

// NewPartitionMetrics registers the partitioner instruments on meter.
func NewPartitionMetrics(meter metric.Meter, logger *zap.Logger) (*PartitionMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PartitionMetrics{logger: logger}

	var err error
	if pm.runsTotal, err = NewCounter(meter,
		"partitioner_runs_total",
		"Total number of partitioning runs by outcome",
		"{runs}",
	); err != nil {
		return nil, err
	}

	if pm.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "partitioner_run_duration_seconds",
		Description: "Wall time of a partitioning run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}

	if pm.recordsTotal, err = NewCounter(meter,
		"partitioner_records_total",
		"Inventory records numbered and written",
		"{records}",
	); err != nil {
		return nil, err
	}

	if pm.overridesTotal, err = NewCounter(meter,
		"partitioner_overrides_applied_total",
		"Records whose description was replaced from the filelist",
		"{records}",
	); err != nil {
		return nil, err
	}

	if pm.partitionsTotal, err = NewCounter(meter,
		"partitioner_partitions_written_total",
		"Partition objects written",
		"{objects}",
	); err != nil {
		return nil, err
	}

	if pm.partitionRecords, err = NewCounter(meter,
		"partitioner_partition_records_total",
		"Records written into partition objects",
		"{records}",
	); err != nil {
		return nil, err
	}

	if pm.writeDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "partitioner_partition_write_duration_seconds",
		Description: "Time to encode and upload one partition object",
		Unit:        "s",
		Boundaries:  WriteDurationBuckets,
	}); err != nil {
		return nil, err
	}

	logger.Debug("Partition metrics registered")
	return pm, nil
}

// RecordRun counts a finished run and its duration under status
func (pm *PartitionMetrics) RecordRun(ctx context.Context, status string, duration time.Duration) {
	pm.runsTotal.Add(ctx, 1, AttrStatus.String(status))
	pm.runDuration.RecordDuration(ctx, duration, AttrStatus.String(status))
}

// AddRecords adds n numbered records
func (pm *PartitionMetrics) AddRecords(ctx context.Context, n int64) {
	if n <= 0 {
		return
	}
	pm.recordsTotal.Add(ctx, n)
}

// AddOverridesApplied adds n overridden descriptions
func (pm *PartitionMetrics) AddOverridesApplied(ctx context.Context, n int64) {
	if n <= 0 {
		return
	}
	pm.overridesTotal.Add(ctx, n)
}

// RecordPartitionWrite counts one written partition object
func (pm *PartitionMetrics) RecordPartitionWrite(ctx context.Context, format string, records int64, duration time.Duration) {
	attr := AttrFormat.String(format)
	pm.partitionsTotal.Add(ctx, 1, attr)
	pm.partitionRecords.Add(ctx, records, attr)
	pm.writeDuration.RecordDuration(ctx, duration, attr)
}
