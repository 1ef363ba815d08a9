package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/db"
	"github.com/brojonat/ptoken/service/metrics"
	natspkg "github.com/brojonat/ptoken/service/nats"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// AnalyzeTransactionInput contains the parameters for the AnalyzeTransaction activity.
type AnalyzeTransactionInput struct {
	Signature string `json:"signature"`
	Network   string `json:"network"`
}

// RecordAnalysisInput contains the parameters for the RecordAnalysis and
// PublishAnalysis activities.
type RecordAnalysisInput struct {
	Signature string           `json:"signature"`
	Network   string           `json:"network"`
	Result    *analysis.Result `json:"result"`
}

// RecordBatchMetricsInput summarizes a finished batch for metrics.
type RecordBatchMetricsInput struct {
	Network         string  `json:"network"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// AnalyzerInterface defines the analysis operation needed by activities.
// This allows for easy mocking in tests.
type AnalyzerInterface interface {
	Analyze(ctx context.Context, signature string, network analysis.Network) (*analysis.Result, error)
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	RecordAnalysis(ctx context.Context, signature string, network analysis.Network, result *analysis.Result) (*db.Analysis, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishAnalysis(ctx context.Context, event *natspkg.AnalysisEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Store and publisher are optional; without them the matching activities
// succeed without doing anything.
type Activities struct {
	analyzer  AnalyzerInterface
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	analyzer AnalyzerInterface,
	store StoreInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		analyzer:  analyzer,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// AnalyzeTransaction fetches and analyzes one transaction. Analysis failures
// are returned as non-retryable application errors whose type is the
// failure kind; transport failures stay retryable.
func (a *Activities) AnalyzeTransaction(ctx context.Context, input AnalyzeTransactionInput) (*analysis.Result, error) {
	start := time.Now()
	defer a.recordDuration("AnalyzeTransaction", start)

	network, err := analysis.ParseNetwork(input.Network)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), analysis.Kind(analysis.ErrInputInvalid), nil)
	}

	a.logger.DebugContext(ctx, "analyzing transaction",
		"signature", input.Signature,
		"network", network,
	)

	result, err := a.analyzer.Analyze(ctx, input.Signature, network)
	if err != nil {
		if analysis.IsAnalysisError(err) {
			a.logger.InfoContext(ctx, "transaction cannot be analyzed",
				"signature", input.Signature,
				"network", network,
				"kind", analysis.Kind(err),
			)
			return nil, temporalsdk.NewNonRetryableApplicationError(analysis.UserMessage(err), analysis.Kind(err), nil)
		}
		a.logger.WarnContext(ctx, "failed to analyze transaction",
			"signature", input.Signature,
			"network", network,
			"error", err,
		)
		return nil, fmt.Errorf("failed to analyze transaction: %w", err)
	}

	return result, nil
}

// RecordAnalysis persists a successful analysis.
func (a *Activities) RecordAnalysis(ctx context.Context, input RecordAnalysisInput) error {
	if a.store == nil {
		return nil
	}
	start := time.Now()
	defer a.recordDuration("RecordAnalysis", start)

	network, err := analysis.ParseNetwork(input.Network)
	if err != nil {
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), analysis.Kind(analysis.ErrInputInvalid), nil)
	}

	if _, err := a.store.RecordAnalysis(ctx, input.Signature, network, input.Result); err != nil {
		a.logger.ErrorContext(ctx, "failed to record analysis",
			"signature", input.Signature,
			"error", err,
		)
		return fmt.Errorf("failed to record analysis: %w", err)
	}
	return nil
}

// PublishAnalysis publishes an analysis event. Publish failures are logged
// and swallowed so they never fail a batch.
func (a *Activities) PublishAnalysis(ctx context.Context, input RecordAnalysisInput) error {
	if a.publisher == nil || input.Result == nil {
		return nil
	}
	start := time.Now()
	defer a.recordDuration("PublishAnalysis", start)

	event := natspkg.NewAnalysisEvent(input.Signature, analysis.Network(input.Network), input.Result)
	if err := a.publisher.PublishAnalysis(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "failed to publish analysis event",
			"signature", input.Signature,
			"network", input.Network,
			"error", err,
		)
	}
	return nil
}

// RecordBatchMetrics records the outcome of a finished batch.
func (a *Activities) RecordBatchMetrics(ctx context.Context, input RecordBatchMetricsInput) error {
	if a.metrics == nil {
		return nil
	}
	status := "success"
	if input.Succeeded == 0 && input.Failed > 0 {
		status = "error"
	}
	a.metrics.RecordBatchWorkflow(input.Network, status, input.DurationSeconds)
	a.metrics.RecordBatchSignatures(input.Network, "ok", input.Succeeded)
	a.metrics.RecordBatchSignatures(input.Network, "failed", input.Failed)
	return nil
}

func (a *Activities) recordDuration(activity string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
	}
}
