package sink

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/grf/partitioner/internal/domain/partition"
)

type parquetEncoder struct{}

func (parquetEncoder) Extension() string   { return "parquet" }
func (parquetEncoder) ContentType() string { return "application/vnd.apache.parquet" }
func (parquetEncoder) Compression() string { return "snappy" }

// outputSchema builds the parquet schema of the output table. Counters are
// int64, everything else is a UTF-8 string.
func outputSchema(columns []string) *parquet.Schema {
	group := make(parquet.Group, len(columns))
	for _, col := range columns {
		switch col {
		case partition.ColumnSize, partition.ColumnRowNum:
			group[col] = parquet.Int(64)
		default:
			group[col] = parquet.String()
		}
	}
	return parquet.NewSchema("partitioned_inventory", group)
}

func (parquetEncoder) Encode(columns []string, records []partition.ReconciledRecord) ([]byte, error) {
	schema := outputSchema(columns)

	// leaf index of every output column; parquet orders group fields by name
	index := make([]int, len(columns))
	for i, col := range columns {
		leaf, ok := schema.Lookup(col)
		if !ok {
			return nil, fmt.Errorf("column %s missing from schema", col)
		}
		index[i] = leaf.ColumnIndex
	}

	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, schema, parquet.Compression(&parquet.Snappy))

	rows := make([]parquet.Row, 0, len(records))
	for _, rec := range records {
		row := make(parquet.Row, len(columns))
		for i, col := range columns {
			row[index[i]] = parquet.ValueOf(columnValue(rec, col)).Level(0, 0, index[i])
		}
		rows = append(rows, row)
	}

	if _, err := w.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// columnValue returns the typed value of col for rec
func columnValue(rec partition.ReconciledRecord, col string) any {
	switch col {
	case partition.ColumnArchiveID:
		return rec.ArchiveID
	case partition.ColumnArchiveDescription:
		return rec.ArchiveDescription
	case partition.ColumnCreationDate:
		return formatDate(rec.CreationDate)
	case partition.ColumnSize:
		return rec.Size
	case partition.ColumnSHA256TreeHash:
		return rec.SHA256TreeHash
	case partition.ColumnRowNum:
		return rec.RowNum
	default:
		return rec.Extra[col]
	}
}
