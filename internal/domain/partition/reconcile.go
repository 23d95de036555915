package partition

import "strings"

// Reconcile turns a numbered record into its output form.
//
// The partition id is PartitionPlan.PartitionOf(RowNum). The description is
// replaced only when lookup holds an override for the archive id whose trimmed
// value is not empty. The input record is never modified. partitionSize must
// be positive; ComputePartitionSize guarantees it, so anything else is a
// programming error.
func Reconcile(rec NumberedRecord, lookup OverrideLookup, partitionSize int64) ReconciledRecord {
	if partitionSize <= 0 {
		panic(ErrDegeneratePartition)
	}

	out := ReconciledRecord{
		InventoryRecord: rec.InventoryRecord,
		RowNum:          rec.RowNum,
		PartitionID:     PartitionPlan{Size: partitionSize}.PartitionOf(rec.RowNum),
	}

	if lookup == nil {
		return out
	}
	if override, ok := lookup.Lookup(rec.ArchiveID); ok && strings.TrimSpace(override) != "" {
		out.InventoryRecord = rec.withDescription(override)
		out.Overridden = true
	}
	return out
}
