package partition

import "math"

// DefaultPartitionSize is the number of records per partition when the vault is
// large enough to keep every processing day busy.
const DefaultPartitionSize int64 = 10000

// MinPartitionsPerDay is the minimum parallelism target: every estimated
// processing day should receive at least this many partitions.
const MinPartitionsPerDay int64 = 8

// PlanInput holds the aggregate sizing parameters of a run
type PlanInput struct {
	ArchiveCount int64 // number of records in the inventory
	VaultSize    int64 // total size of the vault in bytes
	DailyQuota   int64 // bytes that can be retrieved per day
	DefaultSize  int64 // partition size used when no shrinking is needed
}

// Validate rejects inputs that would produce a degenerate plan
func (in PlanInput) Validate() error {
	switch {
	case in.DailyQuota <= 0:
		return newDomainErrorf(ErrCodeInvalidPlanInput, "daily quota must be positive, got %d", in.DailyQuota)
	case in.ArchiveCount < 0:
		return newDomainErrorf(ErrCodeInvalidPlanInput, "archive count cannot be negative, got %d", in.ArchiveCount)
	case in.VaultSize < 0:
		return newDomainErrorf(ErrCodeInvalidPlanInput, "vault size cannot be negative, got %d", in.VaultSize)
	case in.DefaultSize <= 0:
		return newDomainErrorf(ErrCodeInvalidPlanInput, "default partition size must be positive, got %d", in.DefaultSize)
	}
	return nil
}

// PartitionPlan is the partition size computed once per run and applied to every record
type PartitionPlan struct {
	Size int64 // records per partition, always >= 1
	Days int64 // estimated processing days, always >= 1
}

// PartitionCount returns how many partitions n records produce under the plan
func (p PartitionPlan) PartitionCount(n int64) int64 {
	if n <= 0 || p.Size <= 0 {
		return 0
	}
	return ceilDiv(n, p.Size)
}

// PartitionOf returns the partition a row number belongs to
func (p PartitionPlan) PartitionOf(rowNum int64) int64 {
	return rowNum / p.Size
}

// ComputePartitionSize decides how many records belong in each partition.
//
// The vault is expected to take days = ceil(VaultSize/DailyQuota) days to
// retrieve. When the default size already yields at least MinPartitionsPerDay
// partitions per day the default is kept; otherwise the size shrinks to
// ceil(ArchiveCount/8/days). A vault size of zero counts as one day and a
// computed size of zero (empty inventory) is clamped to one.
func ComputePartitionSize(in PlanInput) (PartitionPlan, error) {
	if err := in.Validate(); err != nil {
		return PartitionPlan{}, err
	}

	days := max(ceilDiv(in.VaultSize, in.DailyQuota), 1)

	if defaultIsEnough(days, in.DefaultSize, in.ArchiveCount) {
		return PartitionPlan{Size: in.DefaultSize, Days: days}, nil
	}

	// ceil(ceil(a/8)/days) == ceil(a/(8*days)) and cannot overflow
	size := ceilDiv(ceilDiv(in.ArchiveCount, MinPartitionsPerDay), days)
	return PartitionPlan{Size: max(size, 1), Days: days}, nil
}

// defaultIsEnough reports days*8*defaultSize < archiveCount without overflowing
func defaultIsEnough(days, defaultSize, archiveCount int64) bool {
	if archiveCount <= 0 || defaultSize > math.MaxInt64/MinPartitionsPerDay {
		return false
	}
	perDay := MinPartitionsPerDay * defaultSize
	return days <= (archiveCount-1)/perDay
}

// ceilDiv returns ceil(a/b) for a >= 0, b > 0
func ceilDiv(a, b int64) int64 {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
