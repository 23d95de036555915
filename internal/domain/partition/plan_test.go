package partition

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePartitionSize(t *testing.T) {
	t.Run("large archive count keeps the default size", func(t *testing.T) {
		plan, err := ComputePartitionSize(PlanInput{
			ArchiveCount: 1_000_000,
			VaultSize:    50_000_000,
			DailyQuota:   10_000_000,
			DefaultSize:  DefaultPartitionSize,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), plan.Days)
		assert.Equal(t, int64(10000), plan.Size)
	})

	t.Run("small archive count shrinks the size", func(t *testing.T) {
		plan, err := ComputePartitionSize(PlanInput{
			ArchiveCount: 1000,
			VaultSize:    50_000_000,
			DailyQuota:   10_000_000,
			DefaultSize:  DefaultPartitionSize,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), plan.Days)
		assert.Equal(t, int64(25), plan.Size)
	})

	t.Run("partial day rounds up", func(t *testing.T) {
		plan, err := ComputePartitionSize(PlanInput{
			ArchiveCount: 100,
			VaultSize:    10_000_001,
			DailyQuota:   10_000_000,
			DefaultSize:  DefaultPartitionSize,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), plan.Days)
		assert.Equal(t, int64(7), plan.Size) // ceil(100/16)
	})

	t.Run("zero vault size counts as one day", func(t *testing.T) {
		plan, err := ComputePartitionSize(PlanInput{
			ArchiveCount: 800,
			VaultSize:    0,
			DailyQuota:   1,
			DefaultSize:  DefaultPartitionSize,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), plan.Days)
		assert.Equal(t, int64(100), plan.Size)
	})

	t.Run("empty inventory is clamped to one", func(t *testing.T) {
		plan, err := ComputePartitionSize(PlanInput{
			ArchiveCount: 0,
			VaultSize:    0,
			DailyQuota:   10,
			DefaultSize:  DefaultPartitionSize,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), plan.Size)
	})

	t.Run("boundary equal to threshold shrinks", func(t *testing.T) {
		// 1 day * 8 * 10 = 80, not < 80
		plan, err := ComputePartitionSize(PlanInput{
			ArchiveCount: 80,
			VaultSize:    5,
			DailyQuota:   10,
			DefaultSize:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(10), plan.Size)

		plan, err = ComputePartitionSize(PlanInput{
			ArchiveCount: 81,
			VaultSize:    5,
			DailyQuota:   10,
			DefaultSize:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(10), plan.Size)
	})

	t.Run("huge values do not overflow", func(t *testing.T) {
		plan, err := ComputePartitionSize(PlanInput{
			ArchiveCount: math.MaxInt64,
			VaultSize:    math.MaxInt64,
			DailyQuota:   1,
			DefaultSize:  DefaultPartitionSize,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), plan.Days)
		assert.Equal(t, int64(1), plan.Size)
	})
}

func TestComputePartitionSize_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input PlanInput
	}{
		{"zero daily quota", PlanInput{ArchiveCount: 1, VaultSize: 1, DailyQuota: 0, DefaultSize: 1}},
		{"negative daily quota", PlanInput{ArchiveCount: 1, VaultSize: 1, DailyQuota: -5, DefaultSize: 1}},
		{"negative archive count", PlanInput{ArchiveCount: -1, VaultSize: 1, DailyQuota: 1, DefaultSize: 1}},
		{"negative vault size", PlanInput{ArchiveCount: 1, VaultSize: -1, DailyQuota: 1, DefaultSize: 1}},
		{"zero default size", PlanInput{ArchiveCount: 1, VaultSize: 1, DailyQuota: 1, DefaultSize: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputePartitionSize(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPlanInput))

			var domainErr *DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, ErrCodeInvalidPlanInput, domainErr.Code)
		})
	}
}

func TestComputePartitionSize_Properties(t *testing.T) {
	quotas := []int64{1, 7, 1_000, 10_000_000}
	vaults := []int64{0, 1, 999, 50_000_000, 1 << 40}
	counts := []int64{0, 1, 7, 8, 9, 1000, 79_999, 80_000, 80_001, 1_000_000}
	defaults := []int64{1, 3, 10000}

	for _, q := range quotas {
		for _, v := range vaults {
			for _, a := range counts {
				for _, d := range defaults {
					in := PlanInput{ArchiveCount: a, VaultSize: v, DailyQuota: q, DefaultSize: d}
					plan, err := ComputePartitionSize(in)
					require.NoError(t, err)
					require.Positive(t, plan.Size, "input %+v", in)
					require.GreaterOrEqual(t, plan.Days, int64(1))

					days := plan.Days
					if days*8*d >= a {
						want := int64(math.Ceil(float64(a) / 8 / float64(days)))
						want = max(want, 1)
						require.Equal(t, want, plan.Size, "input %+v", in)
						require.LessOrEqual(t, plan.Size, d, "input %+v", in)
					} else {
						require.Equal(t, d, plan.Size, "input %+v", in)
					}
				}
			}
		}
	}
}

func TestPartitionPlan(t *testing.T) {
	plan := PartitionPlan{Size: 3, Days: 1}

	t.Run("PartitionOf groups consecutive rows", func(t *testing.T) {
		for row, want := range []int64{0, 0, 0, 1, 1, 1, 2} {
			assert.Equal(t, want, plan.PartitionOf(int64(row)))
		}
	})

	t.Run("PartitionCount rounds up", func(t *testing.T) {
		assert.Equal(t, int64(0), plan.PartitionCount(0))
		assert.Equal(t, int64(1), plan.PartitionCount(3))
		assert.Equal(t, int64(2), plan.PartitionCount(4))
	})
}
