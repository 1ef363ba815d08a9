package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/ptoken/service/costs"
	"github.com/brojonat/ptoken/service/metrics"
)

// Fetcher retrieves a transaction by signature. Implementations return an
// error wrapping ErrNotFound when the node has no such transaction.
type Fetcher interface {
	FetchTransaction(ctx context.Context, signature string, network Network) (*TransactionRecord, error)
}

// Analyzer runs the fetch -> interpret -> aggregate -> compute pipeline.
// It holds no per-request state and is safe for concurrent use.
type Analyzer struct {
	fetcher Fetcher
	table   costs.Table
	params  FeeParams
	target  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAnalyzer creates an Analyzer for the SPL Token program.
// If metrics is nil, no metrics will be recorded.
func NewAnalyzer(fetcher Fetcher, table costs.Table, params FeeParams, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	if table == nil {
		table = costs.Default()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{
		fetcher: fetcher,
		table:   table,
		params:  params,
		target:  TokenProgramID,
		metrics: m,
		logger:  logger,
	}
}

// Table returns the cost table the analyzer prices against.
func (a *Analyzer) Table() costs.Table {
	return a.table
}

// FeeParams returns the fee constants the analyzer uses.
func (a *Analyzer) FeeParams() FeeParams {
	return a.params
}

// Analyze fetches the transaction identified by signature on network and
// estimates its p-token savings. The context only bounds the fetch.
func (a *Analyzer) Analyze(ctx context.Context, signature string, network Network) (*Result, error) {
	start := time.Now()
	result, err := a.analyze(ctx, signature, network)
	if a.metrics != nil {
		a.metrics.RecordAnalysis(string(network), Kind(err), time.Since(start).Seconds())
		if err == nil {
			a.metrics.RecordSavingsPercent(string(network), result.PercentageSavings.InexactFloat64())
		}
	}
	return result, err
}

func (a *Analyzer) analyze(ctx context.Context, signature string, network Network) (*Result, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, ErrInputInvalid
	}

	a.logger.DebugContext(ctx, "fetching transaction",
		"signature", signature,
		"network", network,
	)

	record, err := a.fetcher.FetchTransaction(ctx, signature, network)
	if err != nil {
		a.logger.DebugContext(ctx, "failed to fetch transaction",
			"signature", signature,
			"network", network,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if record == nil {
		return nil, ErrNotFound
	}
	if record.Signature == "" {
		withSig := *record
		withSig.Signature = signature
		record = &withSig
	}

	return a.AnalyzeRecord(record)
}

// AnalyzeRecord estimates savings for an already fetched transaction.
// It performs no I/O.
//
// A reported ComputeUnitsConsumed of 0 counts as present: the analysis
// proceeds with a priority fee per CU of 0. Only an absent value yields
// ErrComputeDataUnavailable.
func (a *Analyzer) AnalyzeRecord(record *TransactionRecord) (*Result, error) {
	if record == nil {
		return nil, ErrNotFound
	}
	meta := record.Meta
	if meta == nil {
		return nil, ErrMetadataUnavailable
	}
	if meta.Err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionFailed, *meta.Err)
	}
	if meta.ComputeUnitsConsumed == nil {
		return nil, ErrComputeDataUnavailable
	}
	if !a.involvesTarget(meta) {
		return nil, ErrNotTokenProgramTransaction
	}

	occurrences := Interpret(meta.LogMessages, a.target, a.table)
	a.logger.Debug("interpreted transaction logs",
		"signature", record.Signature,
		"log_lines", len(meta.LogMessages),
		"occurrences", len(occurrences),
	)

	totals, ok := Aggregate(occurrences, a.table)
	if !ok {
		// Only the loaded-address signal matched, or the logs were cut
		// before any instruction line. Price a single representative
		// instruction instead of failing.
		a.logger.Info("no attributable instructions, using generic estimate",
			"signature", record.Signature,
			"instruction", costs.GenericInstruction,
		)
		if a.metrics != nil {
			a.metrics.RecordGenericFallback()
		}
		return a.genericResult(record.Signature, meta), nil
	}

	if a.metrics != nil {
		for _, occ := range occurrences {
			a.metrics.RecordInstructionDetected(occ.Instruction)
		}
	}

	savings := ComputeSavings(SavingsInput{
		TotalCUConsumed: *meta.ComputeUnitsConsumed,
		TotalFeePaid:    meta.Fee,
		LegacyCU:        totals.LegacyCU,
		OptimizedCU:     totals.OptimizedCU,
	}, a.params)

	result := newResult(record.Signature, *meta.ComputeUnitsConsumed, savings)
	result.InstructionType = totals.DisplayName
	result.LegacyCU = totals.LegacyCU
	result.OptimizedCU = totals.OptimizedCU
	result.Breakdown = totals.Breakdown
	return result, nil
}

func (a *Analyzer) genericResult(signature string, meta *TransactionMeta) *Result {
	entry, _ := a.table.Lookup(costs.GenericInstruction)

	// Without attributed instructions the whole transaction is the legacy
	// baseline, so a fee-free transaction compares its consumed CU against
	// one optimized instruction.
	savings := ComputeSavings(SavingsInput{
		TotalCUConsumed: *meta.ComputeUnitsConsumed,
		TotalFeePaid:    meta.Fee,
		LegacyCU:        *meta.ComputeUnitsConsumed,
		OptimizedCU:     entry.OptimizedCU,
	}, a.params)

	result := newResult(signature, *meta.ComputeUnitsConsumed, savings)
	result.InstructionType = GenericInstructionType
	result.LegacyCU = entry.LegacyCU
	result.OptimizedCU = entry.OptimizedCU
	result.Generic = true
	return result
}

// involvesTarget combines two independent signals: the program ID appearing
// anywhere in the logs, or in the loaded address sets. Some nodes omit logs
// for old or version-0 transactions, so either alone is enough.
func (a *Analyzer) involvesTarget(meta *TransactionMeta) bool {
	for _, line := range meta.LogMessages {
		if strings.Contains(line, a.target) {
			return true
		}
	}
	for _, addr := range meta.LoadedAddresses.Writable {
		if addr == a.target {
			return true
		}
	}
	for _, addr := range meta.LoadedAddresses.Readonly {
		if addr == a.target {
			return true
		}
	}
	return false
}

func newResult(signature string, totalCU uint64, s Savings) *Result {
	return &Result{
		Signature:               TruncateSignature(signature),
		PriorityFeePerCU:        s.PriorityFeePerCU,
		TotalCU:                 totalCU,
		TotalPriorityFeeSOL:     s.TotalPriorityFeeSOL,
		OptimizedPriorityFeeSOL: s.OptimizedPriorityFeeSOL,
		AbsoluteSavingsSOL:      s.AbsoluteSavingsSOL,
		PercentageSavings:       s.PercentageSavings,
	}
}
