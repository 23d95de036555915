package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	partitionapp "github.com/grf/partitioner/internal/application/partition"
	"github.com/grf/partitioner/internal/domain/partition"
	"github.com/grf/partitioner/internal/infrastructure/storage"
)

type outputRow struct {
	ArchiveID          string `parquet:"archiveid"`
	ArchiveDescription string `parquet:"archivedescription"`
	CreationDate       string `parquet:"creationdate"`
	Size               int64  `parquet:"size"`
	SHA256TreeHash     string `parquet:"sha256treehash"`
	Origin             string `parquet:"origin"`
	RowNum             int64  `parquet:"row_num"`
}

func testBatch() partitionapp.PartitionBatch {
	created := time.Date(2020, 5, 21, 6, 13, 48, 123000000, time.UTC)
	return partitionapp.PartitionBatch{
		RunID:        "r1",
		Location:     "partitioned/run=r1",
		PartitionID:  2,
		ExtraColumns: []string{"origin"},
		Records: []partition.ReconciledRecord{
			{
				InventoryRecord: partition.InventoryRecord{
					ArchiveID:          "a-1",
					ArchiveDescription: "photos, 2019",
					CreationDate:       created,
					Size:               1024,
					SHA256TreeHash:     "h1",
					Extra:              map[string]string{"origin": "nas"},
				},
				RowNum:      20,
				PartitionID: 2,
			},
			{
				InventoryRecord: partition.InventoryRecord{
					ArchiveID:    "a-2",
					CreationDate: created.Add(time.Second),
				},
				RowNum:      21,
				PartitionID: 2,
			},
		},
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "partitioned/run=x/part=12/part-12.parquet", ObjectKey("partitioned/run=x", 12, "parquet"))
	assert.Equal(t, "out/part=0/part-0.csv.gz", ObjectKey("out/", 0, "csv.gz"))
}

func TestNew_UnsupportedFormat(t *testing.T) {
	_, err := New(storage.NewMemoryStorage(), "orc", nil)
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestObjectSink_Parquet(t *testing.T) {
	store := storage.NewMemoryStorage()
	s, err := New(store, partition.FormatParquet, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "snappy", s.Compression())

	obj, err := s.WritePartition(context.Background(), testBatch())
	require.NoError(t, err)
	assert.Equal(t, "partitioned/run=r1/part=2/part-2.parquet", obj.Key)
	assert.Equal(t, int64(2), obj.Records)
	assert.Equal(t, int64(20), obj.MinRowNum)
	assert.Equal(t, int64(21), obj.MaxRowNum)

	data, ok := store.Get(obj.Key)
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), obj.Bytes)

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), file.NumRows())
	_, hasPart := file.Schema().Lookup(partition.ColumnPartition)
	assert.False(t, hasPart, "partition key lives in the path only")

	rows, err := parquet.Read[outputRow](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, outputRow{
		ArchiveID:          "a-1",
		ArchiveDescription: "photos, 2019",
		CreationDate:       "2020-05-21T06:13:48.123Z",
		Size:               1024,
		SHA256TreeHash:     "h1",
		Origin:             "nas",
		RowNum:             20,
	}, rows[0])
	assert.Equal(t, "a-2", rows[1].ArchiveID)
	assert.Equal(t, "", rows[1].Origin)
	assert.Equal(t, int64(21), rows[1].RowNum)
}

func TestObjectSink_CSVGzip(t *testing.T) {
	store := storage.NewMemoryStorage()
	s, err := New(store, partition.FormatCSVGzip, zaptest.NewLogger(t))
	require.NoError(t, err)

	obj, err := s.WritePartition(context.Background(), testBatch())
	require.NoError(t, err)
	assert.Equal(t, "partitioned/run=r1/part=2/part-2.csv.gz", obj.Key)

	data, _ := store.Get(obj.Key)
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	lines, err := csv.NewReader(zr).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"archiveid", "archivedescription", "creationdate", "size", "sha256treehash", "origin", "row_num"},
		{"a-1", "photos, 2019", "2020-05-21T06:13:48.123Z", "1024", "h1", "nas", "20"},
		{"a-2", "", "2020-05-21T06:13:49.123Z", "0", "", "", "21"},
	}, lines)
}

func TestObjectSink_RejectsInconsistentBatch(t *testing.T) {
	s, err := New(storage.NewMemoryStorage(), partition.FormatCSVGzip, nil)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		batch := testBatch()
		batch.Records = nil
		_, err := s.WritePartition(ctx, batch)
		assert.Error(t, err)
	})

	t.Run("foreign partition", func(t *testing.T) {
		batch := testBatch()
		batch.Records[1].PartitionID = 3
		_, err := s.WritePartition(ctx, batch)
		assert.ErrorContains(t, err, "belongs to partition 3")
	})

	t.Run("unordered rows", func(t *testing.T) {
		batch := testBatch()
		batch.Records[1].RowNum = 20
		_, err := s.WritePartition(ctx, batch)
		assert.ErrorContains(t, err, "follows row")
	})
}

func TestObjectSink_StorageFailure(t *testing.T) {
	store := storage.NewMemoryStorage()
	boom := errors.New("throttled")
	store.FailPut = func(string) error { return boom }

	s, err := New(store, partition.FormatParquet, nil)
	require.NoError(t, err)
	_, err = s.WritePartition(context.Background(), testBatch())
	assert.ErrorIs(t, err, boom)
}

func TestObjectSink_Abort(t *testing.T) {
	store := storage.NewMemoryStorage()
	s, err := New(store, partition.FormatParquet, nil)
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := s.WritePartition(ctx, testBatch())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "inventory/keep.csv", []byte("x"), "text/csv"))

	require.NoError(t, s.Abort(ctx, []partitionapp.PartitionObject{obj}))
	assert.Equal(t, []string{"inventory/keep.csv"}, store.Keys())
	assert.NoError(t, s.Abort(ctx, nil))
}
