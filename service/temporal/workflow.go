package temporal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/shopspring/decimal"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// MaxBatchSize bounds the number of signatures in one batch.
const MaxBatchSize = 100

// Outcome statuses of a single signature in a batch.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// BatchAnalysisInput contains the input parameters for a batch analysis.
type BatchAnalysisInput struct {
	Network    string   `json:"network"`
	Signatures []string `json:"signatures"`
}

// SignatureOutcome is the result of analyzing one signature of a batch.
type SignatureOutcome struct {
	Signature string           `json:"signature"`
	Status    string           `json:"status"`
	Result    *analysis.Result `json:"result,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// BatchAnalysisResult contains per-signature outcomes and totals over the
// successful ones.
type BatchAnalysisResult struct {
	Network                 string             `json:"network"`
	Outcomes                []SignatureOutcome `json:"outcomes"`
	Succeeded               int                `json:"succeeded"`
	Failed                  int                `json:"failed"`
	TotalLegacyCU           uint64             `json:"total_legacy_cu"`
	TotalOptimizedCU        uint64             `json:"total_optimized_cu"`
	TotalAbsoluteSavingsSOL decimal.Decimal    `json:"total_absolute_savings_sol"`
	StartedAt               time.Time          `json:"started_at"`
	CompletedAt             time.Time          `json:"completed_at"`
}

// Validate checks a batch input before a workflow is started for it.
func (in BatchAnalysisInput) Validate() error {
	if _, err := analysis.ParseNetwork(in.Network); err != nil {
		return err
	}
	if len(UniqueSignatures(in.Signatures)) == 0 {
		return fmt.Errorf("at least one signature is required")
	}
	if len(in.Signatures) > MaxBatchSize {
		return fmt.Errorf("batch cannot contain more than %d signatures", MaxBatchSize)
	}
	return nil
}

// UniqueSignatures trims signatures and drops blanks and repeats, keeping
// first occurrence order.
func UniqueSignatures(signatures []string) []string {
	seen := make(map[string]struct{}, len(signatures))
	out := make([]string, 0, len(signatures))
	for _, s := range signatures {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// BatchAnalysisWorkflow analyzes a set of signatures on one network.
//
// The workflow performs these steps:
// 1. Analyze every unique signature concurrently (AnalyzeTransaction activity)
// 2. Persist and publish each success (RecordAnalysis, PublishAnalysis)
// 3. Return per-signature outcomes and totals
//
// A signature that cannot be analyzed is reported in its outcome and never
// fails the workflow.
func BatchAnalysisWorkflow(ctx workflow.Context, input BatchAnalysisInput) (*BatchAnalysisResult, error) {
	logger := workflow.GetLogger(ctx)
	signatures := UniqueSignatures(input.Signatures)
	logger.Info("BatchAnalysisWorkflow started",
		"network", input.Network,
		"signatures", len(signatures),
	)

	result := &BatchAnalysisResult{
		Network:                 input.Network,
		Outcomes:                make([]SignatureOutcome, 0, len(signatures)),
		TotalAbsoluteSavingsSOL: decimal.Zero,
		StartedAt:               workflow.Now(ctx),
	}

	analyzeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	futures := make([]workflow.Future, len(signatures))
	for i, sig := range signatures {
		futures[i] = workflow.ExecuteActivity(analyzeCtx, a.AnalyzeTransaction, AnalyzeTransactionInput{
			Signature: sig,
			Network:   input.Network,
		})
	}

	for i, sig := range signatures {
		var res *analysis.Result
		if err := futures[i].Get(ctx, &res); err != nil {
			kind, msg := failureFromError(err)
			logger.Info("signature could not be analyzed",
				"signature", sig,
				"kind", kind,
			)
			result.Outcomes = append(result.Outcomes, SignatureOutcome{
				Signature: sig,
				Status:    OutcomeFailed,
				ErrorKind: kind,
				Error:     msg,
			})
			result.Failed++
			continue
		}

		result.Outcomes = append(result.Outcomes, SignatureOutcome{
			Signature: sig,
			Status:    OutcomeOK,
			Result:    res,
		})
		result.Succeeded++
		result.TotalLegacyCU += res.LegacyCU
		result.TotalOptimizedCU += res.OptimizedCU
		result.TotalAbsoluteSavingsSOL = result.TotalAbsoluteSavingsSOL.Add(res.AbsoluteSavingsSOL)
	}

	sideCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	for _, outcome := range result.Outcomes {
		if outcome.Status != OutcomeOK {
			continue
		}
		in := RecordAnalysisInput{
			Signature: outcome.Signature,
			Network:   input.Network,
			Result:    outcome.Result,
		}
		if err := workflow.ExecuteActivity(sideCtx, a.RecordAnalysis, in).Get(ctx, nil); err != nil {
			// History is best effort; the analysis itself succeeded.
			logger.Warn("failed to record analysis", "signature", outcome.Signature, "error", err)
		}
		if err := workflow.ExecuteActivity(sideCtx, a.PublishAnalysis, in).Get(ctx, nil); err != nil {
			logger.Warn("failed to publish analysis", "signature", outcome.Signature, "error", err)
		}
	}

	result.CompletedAt = workflow.Now(ctx)

	metricsIn := RecordBatchMetricsInput{
		Network:         input.Network,
		Succeeded:       result.Succeeded,
		Failed:          result.Failed,
		DurationSeconds: result.CompletedAt.Sub(result.StartedAt).Seconds(),
	}
	if err := workflow.ExecuteActivity(sideCtx, a.RecordBatchMetrics, metricsIn).Get(ctx, nil); err != nil {
		logger.Warn("failed to record batch metrics", "error", err)
	}

	logger.Info("BatchAnalysisWorkflow completed",
		"network", input.Network,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	return result, nil
}

// failureFromError recovers the failure kind and user message from an
// activity error.
func failureFromError(err error) (string, string) {
	var appErr *temporalsdk.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" && appErr.NonRetryable() {
		return appErr.Type(), analysis.MessageForKind(appErr.Type())
	}
	return "internal", analysis.MessageForKind("internal")
}
