package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/brojonat/ptoken/service/costs"
	"github.com/brojonat/ptoken/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchTransaction(ctx context.Context, signature string, network Network) (*TransactionRecord, error) {
	args := m.Called(ctx, signature, network)
	if rec := args.Get(0); rec != nil {
		return rec.(*TransactionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func transferRecord() *TransactionRecord {
	return &TransactionRecord{
		Signature: testSignature,
		Meta: &TransactionMeta{
			ComputeUnitsConsumed: uint64Ptr(4645),
			Fee:                  6000,
			LogMessages: []string{
				invoke(tokenProgram, 1),
				instruction("Transfer"),
				"Program " + tokenProgram + " consumed 4645 of 200000 compute units",
				success(tokenProgram),
			},
		},
	}
}

func newTestAnalyzer(f Fetcher) *Analyzer {
	return NewAnalyzer(f, nil, DefaultFeeParams(), nil, nil)
}

func TestAnalyzerAnalyzeRecord(t *testing.T) {
	a := newTestAnalyzer(nil)

	t.Run("single transfer", func(t *testing.T) {
		result, err := a.AnalyzeRecord(transferRecord())
		require.NoError(t, err)

		assert.Equal(t, "5j7s6NiJ...tRW5Dia7", result.Signature)
		assert.Equal(t, uint64(215285), result.PriorityFeePerCU)
		assert.Equal(t, uint64(4645), result.TotalCU)
		assert.Equal(t, "Transfer", result.InstructionType)
		assert.Equal(t, uint64(4645), result.LegacyCU)
		assert.Equal(t, uint64(155), result.OptimizedCU)
		assertDecimal(t, "0.000001", result.TotalPriorityFeeSOL)
		assertDecimal(t, "0.000000033369175", result.OptimizedPriorityFeeSOL)
		assertDecimal(t, "0.000000966630825", result.AbsoluteSavingsSOL)
		assertDecimal(t, "96.6630825", result.PercentageSavings)
		assert.False(t, result.Generic)
		assert.Len(t, result.Breakdown, 1)
	})

	t.Run("create account and transfer", func(t *testing.T) {
		record := &TransactionRecord{
			Signature: testSignature,
			Meta: &TransactionMeta{
				ComputeUnitsConsumed: uint64Ptr(50000),
				Fee:                  25000,
				LogMessages:          ataCreateAndTransferLogs(),
			},
		}
		result, err := a.AnalyzeRecord(record)
		require.NoError(t, err)

		assert.Equal(t, uint64(10441), result.LegacyCU)
		assert.Equal(t, uint64(476), result.OptimizedCU)
		assert.Equal(t, uint64(400000), result.PriorityFeePerCU)
		assert.Equal(t, "GetAccountDataSize", result.InstructionType)
		assertDecimal(t, "0.0000198096", result.AbsoluteSavingsSOL)
		assertDecimal(t, "99.048", result.PercentageSavings)
		assert.Len(t, result.Breakdown, 4)
	})

	t.Run("generic fallback from loaded addresses", func(t *testing.T) {
		record := &TransactionRecord{
			Signature: testSignature,
			Meta: &TransactionMeta{
				ComputeUnitsConsumed: uint64Ptr(1000),
				Fee:                  5000,
				LoadedAddresses: LoadedAddresses{
					Writable: []string{tokenProgram},
				},
			},
		}
		result, err := a.AnalyzeRecord(record)
		require.NoError(t, err)

		assert.True(t, result.Generic)
		assert.Equal(t, GenericInstructionType, result.InstructionType)
		assert.Equal(t, uint64(4645), result.LegacyCU)
		assert.Equal(t, uint64(155), result.OptimizedCU)
		assert.Zero(t, result.PriorityFeePerCU)
		assert.True(t, result.TotalPriorityFeeSOL.IsZero())
		// (1000 - 155) / 1000: the consumed CU is the baseline.
		assertDecimal(t, "84.5", result.PercentageSavings)
		assert.Empty(t, result.Breakdown)
	})

	t.Run("generic fallback below optimized cost clamps to zero", func(t *testing.T) {
		record := &TransactionRecord{
			Meta: &TransactionMeta{
				ComputeUnitsConsumed: uint64Ptr(100),
				Fee:                  5000,
				LoadedAddresses: LoadedAddresses{
					Writable: []string{tokenProgram},
				},
			},
		}
		result, err := a.AnalyzeRecord(record)
		require.NoError(t, err)
		assert.True(t, result.Generic)
		assert.True(t, result.PercentageSavings.IsZero())
	})

	t.Run("generic fallback from readonly address", func(t *testing.T) {
		record := &TransactionRecord{
			Meta: &TransactionMeta{
				ComputeUnitsConsumed: uint64Ptr(1000),
				Fee:                  5000,
				LoadedAddresses: LoadedAddresses{
					Readonly: []string{systemProgram, tokenProgram},
				},
			},
		}
		result, err := a.AnalyzeRecord(record)
		require.NoError(t, err)
		assert.True(t, result.Generic)
	})

	t.Run("generic fallback when token program logs no known instruction", func(t *testing.T) {
		record := &TransactionRecord{
			Meta: &TransactionMeta{
				ComputeUnitsConsumed: uint64Ptr(3000),
				Fee:                  8000,
				LogMessages: []string{
					invoke(tokenProgram, 1),
					instruction("WithdrawExcessLamports"),
					success(tokenProgram),
				},
			},
		}
		result, err := a.AnalyzeRecord(record)
		require.NoError(t, err)
		assert.True(t, result.Generic)
		assert.Equal(t, uint64(1000000), result.PriorityFeePerCU)
	})

	t.Run("token instruction text from another program is not attributed", func(t *testing.T) {
		record := &TransactionRecord{
			Meta: &TransactionMeta{
				ComputeUnitsConsumed: uint64Ptr(1000),
				Fee:                  5000,
				LogMessages: []string{
					invoke(jupiterProgram, 1),
					instruction("Transfer"),
					success(jupiterProgram),
				},
			},
		}
		_, err := a.AnalyzeRecord(record)
		assert.ErrorIs(t, err, ErrNotTokenProgramTransaction)
	})
}

func TestAnalyzerValidationGates(t *testing.T) {
	a := newTestAnalyzer(nil)

	tests := []struct {
		name   string
		record *TransactionRecord
		want   error
	}{
		{
			name:   "nil record",
			record: nil,
			want:   ErrNotFound,
		},
		{
			name:   "missing metadata",
			record: &TransactionRecord{Signature: testSignature},
			want:   ErrMetadataUnavailable,
		},
		{
			name: "failed execution is checked before logs",
			record: &TransactionRecord{Meta: &TransactionMeta{
				Err:                  stringPtr(`map[InstructionError:[0 map[Custom:1]]]`),
				ComputeUnitsConsumed: uint64Ptr(4645),
				Fee:                  6000,
				LogMessages:          transferRecord().Meta.LogMessages,
			}},
			want: ErrExecutionFailed,
		},
		{
			name: "failed execution is checked before compute units",
			record: &TransactionRecord{Meta: &TransactionMeta{
				Err: stringPtr("InsufficientFundsForFee"),
			}},
			want: ErrExecutionFailed,
		},
		{
			name: "missing compute units",
			record: &TransactionRecord{Meta: &TransactionMeta{
				Fee:         6000,
				LogMessages: transferRecord().Meta.LogMessages,
			}},
			want: ErrComputeDataUnavailable,
		},
		{
			name: "no token program involvement",
			record: &TransactionRecord{Meta: &TransactionMeta{
				ComputeUnitsConsumed: uint64Ptr(150),
				Fee:                  5000,
				LogMessages: []string{
					invoke(systemProgram, 1),
					success(systemProgram),
				},
			}},
			want: ErrNotTokenProgramTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.AnalyzeRecord(tt.record)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAnalyzerZeroComputeUnitsIsPresent(t *testing.T) {
	a := newTestAnalyzer(nil)
	record := transferRecord()
	record.Meta.ComputeUnitsConsumed = uint64Ptr(0)

	result, err := a.AnalyzeRecord(record)
	require.NoError(t, err)
	assert.Zero(t, result.PriorityFeePerCU)
	assert.Zero(t, result.TotalCU)
}

func TestAnalyzerIsIdempotent(t *testing.T) {
	a := newTestAnalyzer(nil)

	first, err := a.AnalyzeRecord(transferRecord())
	require.NoError(t, err)
	second, err := a.AnalyzeRecord(transferRecord())
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(b1), string(b2))
}

func TestAnalyzerAnalyze(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches and analyzes", func(t *testing.T) {
		f := new(mockFetcher)
		record := transferRecord()
		record.Signature = ""
		f.On("FetchTransaction", ctx, testSignature, NetworkMainnet).Return(record, nil)

		result, err := newTestAnalyzer(f).Analyze(ctx, "  "+testSignature+"\n", NetworkMainnet)
		require.NoError(t, err)
		assert.Equal(t, "5j7s6NiJ...tRW5Dia7", result.Signature)
		assert.Empty(t, record.Signature, "fetched record must not be mutated")
		f.AssertExpectations(t)
	})

	t.Run("blank signature does not fetch", func(t *testing.T) {
		f := new(mockFetcher)
		_, err := newTestAnalyzer(f).Analyze(ctx, "   ", NetworkMainnet)
		assert.ErrorIs(t, err, ErrInputInvalid)
		f.AssertNotCalled(t, "FetchTransaction", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		f := new(mockFetcher)
		f.On("FetchTransaction", ctx, testSignature, NetworkDevnet).Return(nil, ErrNotFound)

		_, err := newTestAnalyzer(f).Analyze(ctx, testSignature, NetworkDevnet)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "not_found", Kind(err))
	})

	t.Run("nil record without error", func(t *testing.T) {
		f := new(mockFetcher)
		f.On("FetchTransaction", ctx, testSignature, NetworkMainnet).Return(nil, nil)

		_, err := newTestAnalyzer(f).Analyze(ctx, testSignature, NetworkMainnet)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("transport failure", func(t *testing.T) {
		f := new(mockFetcher)
		f.On("FetchTransaction", ctx, testSignature, NetworkMainnet).
			Return(nil, fmt.Errorf("connection refused"))

		_, err := newTestAnalyzer(f).Analyze(ctx, testSignature, NetworkMainnet)
		require.Error(t, err)
		assert.Equal(t, "internal", Kind(err))
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAnalyzerRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	f := new(mockFetcher)
	f.On("FetchTransaction", ctx, testSignature, NetworkMainnet).Return(transferRecord(), nil)

	a := NewAnalyzer(f, costs.Default(), DefaultFeeParams(), m, nil)
	_, err := a.Analyze(ctx, testSignature, NetworkMainnet)
	require.NoError(t, err)

	_, err = a.Analyze(ctx, "", NetworkMainnet)
	require.True(t, errors.Is(err, ErrInputInvalid))

	families, err := reg.Gather()
	require.NoError(t, err)

	outcomes := map[string]float64{}
	detected := map[string]float64{}
	for _, mf := range families {
		switch mf.GetName() {
		case "analyses_total":
			for _, metric := range mf.GetMetric() {
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == "outcome" {
						outcomes[lp.GetValue()] += metric.GetCounter().GetValue()
					}
				}
			}
		case "instructions_detected_total":
			for _, metric := range mf.GetMetric() {
				detected[metric.GetLabel()[0].GetValue()] += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, outcomes["ok"])
	assert.Equal(t, 1.0, outcomes["input_invalid"])
	assert.Equal(t, 1.0, detected["Transfer"])
}

func TestNewAnalyzerDefaults(t *testing.T) {
	a := NewAnalyzer(nil, nil, DefaultFeeParams(), nil, nil)
	assert.Equal(t, costs.Default(), a.Table())
	assert.Equal(t, DefaultFeeParams(), a.FeeParams())
}
