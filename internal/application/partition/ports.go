package partitionapp

import (
	"context"
	"io"
	"time"

	"github.com/grf/partitioner/internal/domain/partition"
)

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage is the blob store holding the input feeds and the partition objects
type ObjectStorage interface {
	// List returns the objects under prefix sorted by key
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Delete removes keys; missing keys are not an error
	Delete(ctx context.Context, keys ...string) error
}

// PartitionBatch is the complete content of one partition in row number order
type PartitionBatch struct {
	RunID        string
	Location     string // run root, e.g. partitioned/run=<id>
	PartitionID  int64
	ExtraColumns []string
	Records      []partition.ReconciledRecord
}

// PartitionObject is a partition that has been written to storage
type PartitionObject struct {
	PartitionID int64
	Key         string
	Records     int64
	MinRowNum   int64
	MaxRowNum   int64
	Bytes       int64
}

// Entry converts the object into its catalog entry
func (o PartitionObject) Entry() partition.PartitionEntry {
	return partition.PartitionEntry{
		PartitionID: o.PartitionID,
		Location:    o.Key,
		Records:     o.Records,
		MinRowNum:   o.MinRowNum,
		MaxRowNum:   o.MaxRowNum,
	}
}

// PartitionSink persists partitions. Written objects stay invisible until the
// catalog commit references them.
type PartitionSink interface {
	Format() string
	Compression() string
	WritePartition(ctx context.Context, batch PartitionBatch) (PartitionObject, error)
	// Abort deletes objects written by a failed run
	Abort(ctx context.Context, objects []PartitionObject) error
}

// SortStats summarizes an external sort
type SortStats struct {
	Records int64
	// Runs is the number of sorted runs spilled to disk; 0 means the input fit in memory
	Runs     int
	RunSizes []int64
}

// RecordSorter orders inventory records by (creation date, archive id) and
// assigns dense row numbers. Add is called from a single goroutine.
type RecordSorter interface {
	Add(ctx context.Context, rec partition.InventoryRecord) error
	// Each finishes the sort and streams the numbered records in order
	Each(ctx context.Context, fn func(partition.NumberedRecord) error) error
	Stats() SortStats
	Close() error
}

// SorterFactory creates a sorter for one run
type SorterFactory func() (RecordSorter, error)

// Metrics records run telemetry
type Metrics interface {
	RecordRun(ctx context.Context, status string, duration time.Duration)
	AddRecords(ctx context.Context, n int64)
	AddOverridesApplied(ctx context.Context, n int64)
	RecordPartitionWrite(ctx context.Context, format string, records int64, duration time.Duration)
}

// NoopMetrics discards all measurements
type NoopMetrics struct{}

func (NoopMetrics) RecordRun(context.Context, string, time.Duration) {}
func (NoopMetrics) AddRecords(context.Context, int64) {}
func (NoopMetrics) AddOverridesApplied(context.Context, int64) {}
func (NoopMetrics) RecordPartitionWrite(context.Context, string, int64, time.Duration) {}
