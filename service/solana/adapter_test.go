package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRandomEndpoint(t *testing.T) {
	t.Run("single endpoint", func(t *testing.T) {
		endpoints := []string{"https://api.devnet.solana.com"}

		selected, err := SelectRandomEndpoint(endpoints)
		require.NoError(t, err)
		assert.Equal(t, endpoints[0], selected)
	})

	t.Run("empty pool", func(t *testing.T) {
		_, err := SelectRandomEndpoint(nil)
		assert.ErrorContains(t, err, "no RPC endpoints configured")
	})

	t.Run("spreads load across the pool", func(t *testing.T) {
		endpoints := []string{
			"https://api.mainnet-beta.solana.com",
			"https://mainnet.helius-rpc.com",
			"https://solana-mainnet.g.alchemy.com",
		}

		// Probabilistic: 50 draws from 3 endpoints all landing on one is ~1e-23.
		seen := make(map[string]bool)
		for range 50 {
			selected, err := SelectRandomEndpoint(endpoints)
			require.NoError(t, err)
			assert.Contains(t, endpoints, selected)
			seen[selected] = true
		}
		assert.GreaterOrEqual(t, len(seen), 2)
	})
}
