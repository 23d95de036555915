package csvimport

import (
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/grf/partitioner/internal/domain/partition"
)

// InventoryRequiredColumns must be present in an inventory feed header
var InventoryRequiredColumns = []string{
	partition.ColumnArchiveID,
	partition.ColumnArchiveDescription,
	partition.ColumnCreationDate,
}

// FilelistRequiredColumns must be present in a filelist feed header
var FilelistRequiredColumns = []string{
	partition.ColumnArchiveID,
	partition.ColumnOverride,
}

var inventoryKnownColumns = []string{
	partition.ColumnArchiveID,
	partition.ColumnArchiveDescription,
	partition.ColumnCreationDate,
	partition.ColumnSize,
	partition.ColumnSHA256TreeHash,
	// generated by the partitioner, never passed through
	partition.ColumnRowNum,
	partition.ColumnPartition,
}

// ParseCreationDate parses an inventory creation date (RFC3339, optionally with fractional seconds)
func ParseCreationDate(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
}

// InventoryReader decodes inventory CSV rows into inventory records
type InventoryReader struct {
	parser *CSVParser
	source string
	extra  []string
}

// NewInventoryReader parses the header of an inventory object and checks the required columns
func NewInventoryReader(r io.Reader, source string, opts ...ParserOption) (*InventoryReader, error) {
	parser, err := openFeed(r, source, InventoryRequiredColumns, opts...)
	if err != nil {
		return nil, err
	}

	var extra []string
	for _, h := range parser.Headers() {
		if h != "" && !slices.Contains(inventoryKnownColumns, h) && !slices.Contains(extra, h) {
			extra = append(extra, h)
		}
	}

	return &InventoryReader{parser: parser, source: source, extra: extra}, nil
}

// ExtraColumns returns the passthrough columns of this object in header order
func (r *InventoryReader) ExtraColumns() []string {
	return r.extra
}

// Each decodes every non-empty row and hands it to fn.
// Decoding stops at the first malformed row.
func (r *InventoryReader) Each(fn func(partition.InventoryRecord) error) error {
	err := r.parser.Each(func(row *Row) error {
		rec, err := r.decode(row)
		if err != nil {
			return err
		}
		return fn(rec)
	})
	if err != nil {
		return WithSource(err, r.source)
	}
	return nil
}

// Rows returns the number of data rows read so far
func (r *InventoryReader) Rows() int {
	return r.parser.TotalRows()
}

func (r *InventoryReader) decode(row *Row) (partition.InventoryRecord, error) {
	id := strings.TrimSpace(row.Get(partition.ColumnArchiveID))
	if id == "" {
		return partition.InventoryRecord{}, NewRowError(row.LineNumber, partition.ColumnArchiveID,
			ErrCodeImportRequired, "archive id is required")
	}

	rawDate := row.Get(partition.ColumnCreationDate)
	created, err := ParseCreationDate(rawDate)
	if err != nil {
		return partition.InventoryRecord{}, NewRowErrorWithValue(row.LineNumber, partition.ColumnCreationDate,
			ErrCodeImportInvalidType, "creation date must be an RFC3339 timestamp", rawDate)
	}

	var size int64
	if raw := strings.TrimSpace(row.Get(partition.ColumnSize)); raw != "" {
		size, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || size < 0 {
			return partition.InventoryRecord{}, NewRowErrorWithValue(row.LineNumber, partition.ColumnSize,
				ErrCodeImportInvalidValue, "size must be a non-negative integer", raw)
		}
	}

	rec := partition.InventoryRecord{
		ArchiveID:          id,
		ArchiveDescription: row.Get(partition.ColumnArchiveDescription),
		CreationDate:       created,
		Size:               size,
		SHA256TreeHash:     strings.TrimSpace(row.Get(partition.ColumnSHA256TreeHash)),
	}
	if len(r.extra) > 0 {
		rec.Extra = make(map[string]string, len(r.extra))
		for _, col := range r.extra {
			rec.Extra[col] = row.Get(col)
		}
	}
	return rec, nil
}

// OverrideReader decodes filelist CSV rows into override records
type OverrideReader struct {
	parser *CSVParser
	source string
}

// NewOverrideReader parses the header of a filelist object and checks the required columns
func NewOverrideReader(r io.Reader, source string, opts ...ParserOption) (*OverrideReader, error) {
	parser, err := openFeed(r, source, FilelistRequiredColumns, opts...)
	if err != nil {
		return nil, err
	}
	return &OverrideReader{parser: parser, source: source}, nil
}

// Each hands every non-empty row to fn. Blank keys are passed through so the
// index builder can account for them.
func (r *OverrideReader) Each(fn func(partition.OverrideRecord) error) error {
	err := r.parser.Each(func(row *Row) error {
		return fn(partition.OverrideRecord{
			ArchiveID: strings.TrimSpace(row.Get(partition.ColumnArchiveID)),
			Override:  row.Get(partition.ColumnOverride),
			Source:    r.source,
			Line:      row.LineNumber,
		})
	})
	if err != nil {
		return WithSource(err, r.source)
	}
	return nil
}

func openFeed(r io.Reader, source string, required []string, opts ...ParserOption) (*CSVParser, error) {
	parser, err := NewCSVParser(r, opts...)
	if err != nil {
		return nil, WithSource(err, source)
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, WithSource(err, source)
	}
	if missing := parser.ValidateHeaders(required); len(missing) > 0 {
		return nil, &MissingColumnsError{Source: source, Columns: missing}
	}
	return parser, nil
}
