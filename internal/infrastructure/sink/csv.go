package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/grf/partitioner/internal/domain/partition"
)

type csvGzipEncoder struct{}

func (csvGzipEncoder) Extension() string   { return "csv.gz" }
func (csvGzipEncoder) ContentType() string { return "application/gzip" }
func (csvGzipEncoder) Compression() string { return "gzip" }

// Encode writes a header line followed by one line per record
func (csvGzipEncoder) Encode(columns []string, records []partition.ReconciledRecord) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	w := csv.NewWriter(zw)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	line := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			switch v := columnValue(rec, col).(type) {
			case int64:
				line[i] = strconv.FormatInt(v, 10)
			case string:
				line[i] = v
			}
		}
		if err := w.Write(line); err != nil {
			return nil, fmt.Errorf("failed to write csv row %d: %w", rec.RowNum, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}
