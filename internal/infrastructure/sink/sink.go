// Package sink writes reconciled partitions to object storage.
package sink

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	partitionapp "github.com/grf/partitioner/internal/application/partition"
	"github.com/grf/partitioner/internal/domain/partition"
)

var _ partitionapp.PartitionSink = (*ObjectSink)(nil)

// encoder turns one partition into the bytes of one object
type encoder interface {
	Extension() string
	ContentType() string
	Compression() string
	Encode(columns []string, records []partition.ReconciledRecord) ([]byte, error)
}

// ObjectSink writes every partition as a single object below the run location:
// <location>/part=<id>/part-<id>.<ext>
type ObjectSink struct {
	storage partitionapp.ObjectStorage
	format  string
	encoder encoder
	logger  *zap.Logger
}

// New creates a sink for format (parquet or csv.gz)
func New(storage partitionapp.ObjectStorage, format string, logger *zap.Logger) (*ObjectSink, error) {
	if storage == nil {
		return nil, fmt.Errorf("sink requires object storage")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var enc encoder
	switch format {
	case partition.FormatParquet:
		enc = parquetEncoder{}
	case partition.FormatCSVGzip:
		enc = csvGzipEncoder{}
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}

	return &ObjectSink{storage: storage, format: format, encoder: enc, logger: logger}, nil
}

func (s *ObjectSink) Format() string      { return s.format }
func (s *ObjectSink) Compression() string { return s.encoder.Compression() }

// ObjectKey returns the key of a partition object
func ObjectKey(location string, partitionID int64, ext string) string {
	return path.Join(location,
		fmt.Sprintf("%s=%d", partition.ColumnPartition, partitionID),
		fmt.Sprintf("part-%d.%s", partitionID, ext),
	)
}

// WritePartition encodes batch and uploads it. Records must all belong to
// batch.PartitionID and be in row number order.
func (s *ObjectSink) WritePartition(ctx context.Context, batch partitionapp.PartitionBatch) (partitionapp.PartitionObject, error) {
	if len(batch.Records) == 0 {
		return partitionapp.PartitionObject{}, fmt.Errorf("partition %d has no records", batch.PartitionID)
	}
	for i, rec := range batch.Records {
		if rec.PartitionID != batch.PartitionID {
			return partitionapp.PartitionObject{}, fmt.Errorf("record %s belongs to partition %d, not %d",
				rec.ArchiveID, rec.PartitionID, batch.PartitionID)
		}
		if i > 0 && rec.RowNum <= batch.Records[i-1].RowNum {
			return partitionapp.PartitionObject{}, fmt.Errorf("partition %d: row %d follows row %d",
				batch.PartitionID, rec.RowNum, batch.Records[i-1].RowNum)
		}
	}

	start := time.Now()
	data, err := s.encoder.Encode(partition.OutputColumns(batch.ExtraColumns), batch.Records)
	if err != nil {
		return partitionapp.PartitionObject{}, fmt.Errorf("failed to encode partition %d: %w", batch.PartitionID, err)
	}

	key := ObjectKey(batch.Location, batch.PartitionID, s.encoder.Extension())
	if err := s.storage.Put(ctx, key, data, s.encoder.ContentType()); err != nil {
		return partitionapp.PartitionObject{}, fmt.Errorf("failed to store partition %d: %w", batch.PartitionID, err)
	}

	obj := partitionapp.PartitionObject{
		PartitionID: batch.PartitionID,
		Key:         key,
		Records:     int64(len(batch.Records)),
		MinRowNum:   batch.Records[0].RowNum,
		MaxRowNum:   batch.Records[len(batch.Records)-1].RowNum,
		Bytes:       int64(len(data)),
	}
	s.logger.Debug("partition written",
		zap.Int64("partition", obj.PartitionID),
		zap.String("key", key),
		zap.Int64("records", obj.Records),
		zap.Int64("bytes", obj.Bytes),
		zap.Duration("took", time.Since(start)),
	)
	return obj, nil
}

// Abort deletes the objects of a failed run
func (s *ObjectSink) Abort(ctx context.Context, objects []partitionapp.PartitionObject) error {
	if len(objects) == 0 {
		return nil
	}
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	if err := s.storage.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to delete %d partition objects: %w", len(keys), err)
	}
	s.logger.Info("partition objects removed", zap.Int("count", len(keys)))
	return nil
}

// formatDate renders the creation date as written to the output table
func formatDate(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
