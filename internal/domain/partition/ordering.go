package partition

import (
	"slices"
	"strings"
)

// Compare defines the total order records are numbered in: creation date
// ascending, then archive id ascending. Archive ids are unique, so two distinct
// records never compare equal.
func Compare(a, b InventoryRecord) int {
	if c := a.CreationDate.Compare(b.CreationDate); c != 0 {
		return c
	}
	return strings.Compare(a.ArchiveID, b.ArchiveID)
}

// SortRecords sorts records in place under Compare
func SortRecords(records []InventoryRecord) {
	slices.SortStableFunc(records, Compare)
}

// NumberRecords assigns dense zero-based row numbers under Compare.
// The input slice is not modified.
func NumberRecords(records []InventoryRecord) []NumberedRecord {
	sorted := slices.Clone(records)
	SortRecords(sorted)

	out := make([]NumberedRecord, len(sorted))
	for i, r := range sorted {
		out[i] = NumberedRecord{InventoryRecord: r, RowNum: int64(i)}
	}
	return out
}

// RunOffsets returns the first row number of every ordered shard given the
// number of records in each shard (an exclusive prefix sum). Shards must be
// contiguous ranges of the global order.
func RunOffsets(counts []int64) []int64 {
	offsets := make([]int64, len(counts))
	var next int64
	for i, c := range counts {
		offsets[i] = next
		next += c
	}
	return offsets
}

// Numberer hands out row numbers to records that arrive in global order.
// It checks the order as it goes so that a broken upstream sort cannot
// silently produce a wrong partitioning.
type Numberer struct {
	next int64
	last *InventoryRecord
}

// NewNumberer creates a numberer starting at offset
func NewNumberer(offset int64) *Numberer {
	return &Numberer{next: offset}
}

// Next numbers rec. It fails if rec sorts before the previous record.
// Exact key duplicates are numbered in arrival order.
func (n *Numberer) Next(rec InventoryRecord) (NumberedRecord, error) {
	if n.last != nil && Compare(*n.last, rec) > 0 {
		return NumberedRecord{}, newDomainErrorf(ErrCodeInvalidRecord,
			"record %s at row %d is out of order (previous %s)",
			rec.ArchiveID, n.next, n.last.ArchiveID)
	}
	n.last = &rec
	out := NumberedRecord{InventoryRecord: rec, RowNum: n.next}
	n.next++
	return out, nil
}

// NextRowNum returns the row number the next record will receive
func (n *Numberer) NextRowNum() int64 {
	return n.next
}
