package analysis

import (
	"errors"
	"testing"

	"github.com/brojonat/ptoken/service/costs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	table := costs.Default()
	params := DefaultFeeParams()

	t.Run("thousand transfers", func(t *testing.T) {
		p, err := Project(table, "Transfer", 1000, 1000, params)
		require.NoError(t, err)

		assert.Equal(t, uint64(4_645_000), p.LegacyCU)
		assert.Equal(t, uint64(155_000), p.OptimizedCU)
		assertDecimal(t, "96.66307858", p.CUReductionPercent)
		assertDecimal(t, "0.000004645", p.LegacyPriorityFeeSOL)
		assertDecimal(t, "0.000000155", p.OptimizedPriorityFeeSOL)
		assertDecimal(t, "0.00000449", p.SavingsSOL)
	})

	t.Run("zero price", func(t *testing.T) {
		p, err := Project(table, "MintTo", 10, 0, params)
		require.NoError(t, err)
		assert.True(t, p.SavingsSOL.IsZero())
		assert.True(t, p.CUReductionPercent.IsPositive())
	})

	t.Run("zero cost instruction", func(t *testing.T) {
		p, err := Project(table, "SyncNative", 5, 1000, params)
		require.NoError(t, err)
		assert.Zero(t, p.LegacyCU)
		assert.True(t, p.CUReductionPercent.IsZero())
	})

	t.Run("unknown instruction", func(t *testing.T) {
		_, err := Project(table, "Swap", 1, 1000, params)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownInstruction))
		assert.Equal(t, "unknown_instruction", Kind(err))
	})

	t.Run("zero count", func(t *testing.T) {
		_, err := Project(table, "Transfer", 0, 1000, params)
		assert.EqualError(t, err, "count must be at least 1")
	})

	t.Run("count too large", func(t *testing.T) {
		_, err := Project(table, "Transfer", MaxProjectionCount+1, 1000, params)
		assert.Error(t, err)
	})
}
