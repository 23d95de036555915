// Package extsort implements an external merge sort for inventory records.
//
// Records are buffered into runs. Full runs are sorted on a bounded pool of
// goroutines and spilled to s2-compressed gob files; Each then k-way merges
// the runs and numbers the records in global order.
package extsort

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	partitionapp "github.com/grf/partitioner/internal/application/partition"
	"github.com/grf/partitioner/internal/domain/partition"
	infraconfig "github.com/grf/partitioner/internal/infrastructure/config"
)

const (
	DefaultRunSize = 500_000
	DefaultWorkers = 4

	// ctxCheckInterval is how many records are emitted between context checks
	ctxCheckInterval = 4096
)

// ErrSorterFinished is returned when records are added after Each started
var ErrSorterFinished = errors.New("sorter already finished")

var _ partitionapp.RecordSorter = (*Sorter)(nil)

type run struct {
	path  string
	count int64
}

// Sorter is a RecordSorter backed by temporary files
type Sorter struct {
	runSize int
	workers int
	tempDir string
	logger  *zap.Logger

	buf     []partition.InventoryRecord
	runs    []run
	dir     string
	records int64
	group   *errgroup.Group
	merged  bool
}

// Option configures a Sorter
type Option func(*Sorter)

// WithRunSize sets the number of records held in memory per run
func WithRunSize(n int) Option {
	return func(s *Sorter) {
		if n > 0 {
			s.runSize = n
		}
	}
}

// WithWorkers sets how many runs may be sorted and spilled concurrently
func WithWorkers(n int) Option {
	return func(s *Sorter) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTempDir sets the parent directory of the spill files
func WithTempDir(dir string) Option {
	return func(s *Sorter) {
		s.tempDir = dir
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sorter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Sorter
func New(opts ...Option) *Sorter {
	s := &Sorter{
		runSize: DefaultRunSize,
		workers: DefaultWorkers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.group = new(errgroup.Group)
	s.group.SetLimit(s.workers)
	return s
}

// NewFactory returns a SorterFactory configured from cfg
func NewFactory(cfg *infraconfig.SortConfig, logger *zap.Logger) partitionapp.SorterFactory {
	return func() (partitionapp.RecordSorter, error) {
		return New(
			WithRunSize(cfg.RunSize),
			WithWorkers(cfg.Workers),
			WithTempDir(cfg.TempDir),
			WithLogger(logger),
		), nil
	}
}

// Add buffers rec and spills the buffer once it holds a full run.
// Spilling blocks while all workers are busy.
func (s *Sorter) Add(ctx context.Context, rec partition.InventoryRecord) error {
	if s.merged {
		return ErrSorterFinished
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.buf = append(s.buf, rec)
	s.records++
	if len(s.buf) >= s.runSize {
		return s.spill()
	}
	return nil
}

func (s *Sorter) spill() error {
	if s.dir == "" {
		if s.tempDir != "" {
			if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
				return fmt.Errorf("failed to create sort directory: %w", err)
			}
		}
		dir, err := os.MkdirTemp(s.tempDir, "partitioner-sort-")
		if err != nil {
			return fmt.Errorf("failed to create sort directory: %w", err)
		}
		s.dir = dir
	}

	records := s.buf
	s.buf = nil
	index := len(s.runs)
	path := filepath.Join(s.dir, fmt.Sprintf("run-%06d.gob.s2", index))
	s.runs = append(s.runs, run{path: path, count: int64(len(records))})

	s.group.Go(func() error {
		partition.SortRecords(records)
		if err := writeRun(path, records); err != nil {
			return fmt.Errorf("run %d: %w", index, err)
		}
		s.logger.Debug("sort run spilled",
			zap.Int("run", index),
			zap.Int("records", len(records)),
		)
		return nil
	})
	return nil
}

// Each sorts everything added so far and calls fn for every record with its
// row number. A Sorter can be drained only once.
func (s *Sorter) Each(ctx context.Context, fn func(partition.NumberedRecord) error) error {
	if s.merged {
		return ErrSorterFinished
	}
	s.merged = true

	if len(s.runs) == 0 {
		return s.emitBuffered(ctx, fn)
	}

	if len(s.buf) > 0 {
		if err := s.spill(); err != nil {
			return err
		}
	}
	if err := s.group.Wait(); err != nil {
		return fmt.Errorf("failed to spill sort runs: %w", err)
	}

	s.logger.Info("merging sort runs",
		zap.Int("runs", len(s.runs)),
		zap.Int64("records", s.records),
	)
	return s.merge(ctx, fn)
}

func (s *Sorter) emitBuffered(ctx context.Context, fn func(partition.NumberedRecord) error) error {
	partition.SortRecords(s.buf)
	numberer := partition.NewNumberer(0)
	for i, rec := range s.buf {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		numbered, err := numberer.Next(rec)
		if err != nil {
			return err
		}
		if err := fn(numbered); err != nil {
			return err
		}
	}
	s.buf = nil
	return nil
}

func (s *Sorter) merge(ctx context.Context, fn func(partition.NumberedRecord) error) error {
	readers := make([]*runReader, 0, len(s.runs))
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	h := make(mergeHeap, 0, len(s.runs))
	for i, r := range s.runs {
		reader, err := openRun(r.path)
		if err != nil {
			return err
		}
		readers = append(readers, reader)

		rec, ok, err := reader.Next()
		if err != nil {
			return err
		}
		if ok {
			h = append(h, mergeItem{rec: rec, run: i})
		}
	}
	heap.Init(&h)

	numberer := partition.NewNumberer(0)
	for h.Len() > 0 {
		if numberer.NextRowNum()%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		top := h[0]
		numbered, err := numberer.Next(top.rec)
		if err != nil {
			return err
		}
		if err := fn(numbered); err != nil {
			return err
		}

		rec, ok, err := readers[top.run].Next()
		if err != nil {
			return err
		}
		if ok {
			h[0] = mergeItem{rec: rec, run: top.run}
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}

	if numberer.NextRowNum() != s.records {
		return fmt.Errorf("merged %d records, expected %d", numberer.NextRowNum(), s.records)
	}
	return nil
}

// Stats reports what has been sorted so far
func (s *Sorter) Stats() partitionapp.SortStats {
	sizes := make([]int64, len(s.runs))
	for i, r := range s.runs {
		sizes[i] = r.count
	}
	return partitionapp.SortStats{
		Records:  s.records,
		Runs:     len(s.runs),
		RunSizes: sizes,
	}
}

// Close waits for pending spills and removes the spill files
func (s *Sorter) Close() error {
	_ = s.group.Wait()
	s.buf = nil
	if s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove sort directory: %w", err)
	}
	s.dir = ""
	return nil
}

type mergeItem struct {
	rec partition.InventoryRecord
	run int
}

// mergeHeap orders run heads by record, then by run index so that equal keys
// keep their input order.
type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := partition.Compare(h[i].rec, h[j].rec); c != 0 {
		return c < 0
	}
	return h[i].run < h[j].run
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
