package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetwork(t *testing.T) {
	tests := []struct {
		in      string
		want    Network
		wantErr string
	}{
		{in: "mainnet", want: NetworkMainnet},
		{in: "mainnet-beta", want: NetworkMainnet},
		{in: "devnet", want: NetworkDevnet},
		{in: "", wantErr: "network is required"},
		{in: "testnet", wantErr: `invalid network "testnet": must be 'mainnet' or 'devnet'`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNetwork(tt.in)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateSignature(t *testing.T) {
	assert.Equal(t, "5j7s6NiJ...tRW5Dia7", TruncateSignature(testSignature))
	assert.Equal(t, "short", TruncateSignature("short"))
	assert.Equal(t, "0123456789abcdef", TruncateSignature("0123456789abcdef"))
	assert.Equal(t, "01234567...9abcdefg", TruncateSignature("0123456789abcdefg"))
}

func TestResultJSON(t *testing.T) {
	r := Result{
		Signature:         "abc",
		PercentageSavings: decimal.RequireFromString("96.6630825"),
		Generic:           true,
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "96.6630825", raw["percentage_savings"])
	assert.Equal(t, true, raw["generic"])
	assert.NotContains(t, raw, "instruction_breakdown")
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "input_invalid", Kind(ErrInputInvalid))
	assert.Equal(t, "not_found", Kind(fmt.Errorf("failed to fetch transaction: %w", ErrNotFound)))
	assert.Equal(t, "metadata_unavailable", Kind(ErrMetadataUnavailable))
	assert.Equal(t, "execution_failed", Kind(fmt.Errorf("%w: boom", ErrExecutionFailed)))
	assert.Equal(t, "compute_data_unavailable", Kind(ErrComputeDataUnavailable))
	assert.Equal(t, "not_token_program_transaction", Kind(ErrNotTokenProgramTransaction))
	assert.Equal(t, "unknown_instruction", Kind(ErrUnknownInstruction))
	assert.Equal(t, "internal", Kind(errors.New("dial tcp: timeout")))
}

func TestIsAnalysisError(t *testing.T) {
	assert.False(t, IsAnalysisError(nil))
	assert.False(t, IsAnalysisError(errors.New("rpc unavailable")))
	assert.True(t, IsAnalysisError(fmt.Errorf("wrapped: %w", ErrComputeDataUnavailable)))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, ErrNotFound.Error(), UserMessage(fmt.Errorf("x: %w", ErrNotFound)))
	assert.Equal(t, "failed to analyze transaction", UserMessage(errors.New("socket closed")))
}

func TestMessageForKind(t *testing.T) {
	assert.Equal(t, ErrComputeDataUnavailable.Error(), MessageForKind(Kind(ErrComputeDataUnavailable)))
	assert.Equal(t, "failed to analyze transaction", MessageForKind("internal"))
}
