package temporal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/db"
	natspkg "github.com/brojonat/ptoken/service/nats"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"
)

const (
	sigA = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
	sigB = "4xW2cP8rVKgbKiBcCqXbrKCYY4wLs5tbQwFhZ1c1AWgKdvqEFv4TrEVj2EvQB2Rbr6j5wJ1Cd9nC3d7H9xfvqwsu"
	sigC = "3AsdoALgZFuq2oUVWrDYhg2pNeaLJKPLf8hU2mQ6U8qJxeJ6hsrPVpMn9ma39DtfYCrDQSvngWRP8NnTpEhezJpE"
)

// Mock Analyzer
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, signature string, network analysis.Network) (*analysis.Result, error) {
	args := m.Called(ctx, signature, network)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.Result), args.Error(1)
}

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) RecordAnalysis(ctx context.Context, signature string, network analysis.Network, result *analysis.Result) (*db.Analysis, error) {
	args := m.Called(ctx, signature, network, result)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Analysis), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resultFor(signature string, legacy, optimized uint64, savings string) *analysis.Result {
	return &analysis.Result{
		Signature:          analysis.TruncateSignature(signature),
		InstructionType:    "Transfer",
		LegacyCU:           legacy,
		OptimizedCU:        optimized,
		AbsoluteSavingsSOL: decimal.RequireFromString(savings),
		PercentageSavings:  decimal.RequireFromString("96.6630825"),
	}
}

func TestAnalyzeTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		analyzer := new(MockAnalyzer)
		want := resultFor(sigA, 4645, 155, "0.000000966630825")
		analyzer.On("Analyze", mock.Anything, sigA, analysis.NetworkMainnet).Return(want, nil)

		acts := NewActivities(analyzer, nil, nil, nil, testLogger())
		got, err := acts.AnalyzeTransaction(ctx, AnalyzeTransactionInput{Signature: sigA, Network: "mainnet"})
		require.NoError(t, err)
		assert.Equal(t, want, got)
		analyzer.AssertExpectations(t)
	})

	t.Run("analysis failure is not retryable", func(t *testing.T) {
		analyzer := new(MockAnalyzer)
		analyzer.On("Analyze", mock.Anything, sigA, analysis.NetworkDevnet).
			Return(nil, fmt.Errorf("failed to fetch transaction: %w", analysis.ErrNotFound))

		acts := NewActivities(analyzer, nil, nil, nil, testLogger())
		_, err := acts.AnalyzeTransaction(ctx, AnalyzeTransactionInput{Signature: sigA, Network: "devnet"})
		require.Error(t, err)

		var appErr *temporalsdk.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "not_found", appErr.Type())
		assert.True(t, appErr.NonRetryable())
	})

	t.Run("transport failure stays retryable", func(t *testing.T) {
		analyzer := new(MockAnalyzer)
		analyzer.On("Analyze", mock.Anything, sigA, analysis.NetworkMainnet).
			Return(nil, errors.New("connection refused"))

		acts := NewActivities(analyzer, nil, nil, nil, testLogger())
		_, err := acts.AnalyzeTransaction(ctx, AnalyzeTransactionInput{Signature: sigA, Network: "mainnet"})
		require.Error(t, err)

		var appErr *temporalsdk.ApplicationError
		assert.False(t, errors.As(err, &appErr))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("invalid network", func(t *testing.T) {
		analyzer := new(MockAnalyzer)
		acts := NewActivities(analyzer, nil, nil, nil, testLogger())
		_, err := acts.AnalyzeTransaction(ctx, AnalyzeTransactionInput{Signature: sigA, Network: "testnet"})

		var appErr *temporalsdk.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.True(t, appErr.NonRetryable())
		analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRecordAnalysisActivity(t *testing.T) {
	ctx := context.Background()
	result := resultFor(sigA, 4645, 155, "0.000000966630825")

	t.Run("persists", func(t *testing.T) {
		store := new(MockStore)
		store.On("RecordAnalysis", mock.Anything, sigA, analysis.NetworkMainnet, result).
			Return(&db.Analysis{ID: 1, Signature: sigA, Network: "mainnet", Result: result}, nil)

		acts := NewActivities(new(MockAnalyzer), store, nil, nil, testLogger())
		require.NoError(t, acts.RecordAnalysis(ctx, RecordAnalysisInput{Signature: sigA, Network: "mainnet", Result: result}))
		store.AssertExpectations(t)
	})

	t.Run("store error is returned", func(t *testing.T) {
		store := new(MockStore)
		store.On("RecordAnalysis", mock.Anything, sigA, analysis.NetworkMainnet, result).
			Return(nil, errors.New("db down"))

		acts := NewActivities(new(MockAnalyzer), store, nil, nil, testLogger())
		err := acts.RecordAnalysis(ctx, RecordAnalysisInput{Signature: sigA, Network: "mainnet", Result: result})
		assert.ErrorContains(t, err, "db down")
	})

	t.Run("no store configured", func(t *testing.T) {
		acts := NewActivities(new(MockAnalyzer), nil, nil, nil, testLogger())
		assert.NoError(t, acts.RecordAnalysis(ctx, RecordAnalysisInput{Signature: sigA, Network: "mainnet", Result: result}))
	})
}

func TestPublishAnalysisActivity(t *testing.T) {
	ctx := context.Background()
	result := resultFor(sigA, 4645, 155, "0.000000966630825")

	t.Run("publishes event", func(t *testing.T) {
		pub := natspkg.NewMockPublisher()
		acts := NewActivities(new(MockAnalyzer), nil, pub, nil, testLogger())

		require.NoError(t, acts.PublishAnalysis(ctx, RecordAnalysisInput{Signature: sigA, Network: "devnet", Result: result}))

		events := pub.GetPublishedEventsForNetwork("devnet")
		require.Len(t, events, 1)
		assert.Equal(t, sigA, events[0].Signature)
		assert.Equal(t, "Transfer", events[0].DisplayInstruction)
		assert.Equal(t, "analyses.devnet", events[0].Subject())
	})

	t.Run("publish failure is swallowed", func(t *testing.T) {
		pub := natspkg.NewMockPublisher()
		pub.SetPublishError(errors.New("nats unavailable"))
		acts := NewActivities(new(MockAnalyzer), nil, pub, nil, testLogger())

		assert.NoError(t, acts.PublishAnalysis(ctx, RecordAnalysisInput{Signature: sigA, Network: "devnet", Result: result}))
		assert.Empty(t, pub.GetPublishedEvents())
	})
}
