package partition

import (
	"maps"
	"strings"
	"time"
)

// Column names of the inventory and output tables
const (
	ColumnArchiveID          = "archiveid"
	ColumnArchiveDescription = "archivedescription"
	ColumnCreationDate       = "creationdate"
	ColumnSize               = "size"
	ColumnSHA256TreeHash     = "sha256treehash"
	ColumnOverride           = "override"
	ColumnRowNum             = "row_num"
	ColumnPartition          = "part"
)

// InventoryRecord represents one archived item from the vault inventory.
// Size, SHA256TreeHash and Extra are passed through untouched.
type InventoryRecord struct {
	ArchiveID          string
	ArchiveDescription string
	CreationDate       time.Time
	Size               int64
	SHA256TreeHash     string
	Extra              map[string]string
}

// Validate checks the fields the ordering depends on
func (r InventoryRecord) Validate() error {
	if strings.TrimSpace(r.ArchiveID) == "" {
		return newDomainErrorf(ErrCodeInvalidRecord, "inventory record has an empty archive id")
	}
	if r.CreationDate.IsZero() {
		return newDomainErrorf(ErrCodeInvalidRecord, "inventory record %s has no creation date", r.ArchiveID)
	}
	return nil
}

// withDescription returns a copy of the record with a new description
func (r InventoryRecord) withDescription(description string) InventoryRecord {
	out := r
	out.ArchiveDescription = description
	if r.Extra != nil {
		out.Extra = maps.Clone(r.Extra)
	}
	return out
}

// OverrideRecord is a user supplied correction of an archive description.
// Source and Line locate the record in the feed and define its canonical position.
type OverrideRecord struct {
	ArchiveID string
	Override  string
	Source    string
	Line      int
}

// NumberedRecord is an inventory record with its dense row number in the global order
type NumberedRecord struct {
	InventoryRecord
	RowNum int64
}

// ReconciledRecord is the terminal output record: the inventory columns with the
// override applied, the row number and the partition tag.
type ReconciledRecord struct {
	InventoryRecord
	RowNum      int64
	PartitionID int64

	// Overridden reports whether the description came from the override feed.
	// It is not part of the output schema.
	Overridden bool
}

// OutputColumns returns the column names of the partitioned output table.
// extra lists passthrough columns found in the inventory, in source order.
func OutputColumns(extra []string) []string {
	cols := []string{
		ColumnArchiveID,
		ColumnArchiveDescription,
		ColumnCreationDate,
		ColumnSize,
		ColumnSHA256TreeHash,
	}
	cols = append(cols, extra...)
	return append(cols, ColumnRowNum)
}
