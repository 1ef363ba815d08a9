package analysis

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenProgram   = TokenProgramID
	ataProgram     = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	systemProgram  = "11111111111111111111111111111111"
	computeBudget  = "ComputeBudget111111111111111111111111111111"
	jupiterProgram = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	testSignature  = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
)

func invoke(program string, depth int) string {
	return "Program " + program + " invoke [" + string(rune('0'+depth)) + "]"
}

func success(program string) string {
	return "Program " + program + " success"
}

func failed(program string) string {
	return "Program " + program + " failed: custom program error: 0x1"
}

func instruction(name string) string {
	return "Program log: Instruction: " + name
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	w, err := decimal.NewFromString(want)
	require.NoError(t, err)
	assert.True(t, w.Equal(got), "want %s, got %s", want, got.String())
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func stringPtr(s string) *string {
	return &s
}
