package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/shopspring/decimal"
)

// AnalysisEvent is published to the subject "analyses.{network}" after every
// successful analysis.
type AnalysisEvent struct {
	Signature          string          `json:"signature"` // full, untruncated
	Network            string          `json:"network"`
	DisplayInstruction string          `json:"display_instruction"`
	Generic            bool            `json:"generic"`
	CUConsumed         uint64          `json:"cu_consumed"`
	LegacyCU           uint64          `json:"legacy_cu"`
	OptimizedCU        uint64          `json:"optimized_cu"`
	AbsoluteSavingsSOL decimal.Decimal `json:"absolute_savings_sol"`
	PercentageSavings  decimal.Decimal `json:"percentage_savings"`
	AnalyzedAt         time.Time       `json:"analyzed_at"`
}

// NewAnalysisEvent builds the event for a result computed for signature.
func NewAnalysisEvent(signature string, network analysis.Network, result *analysis.Result) *AnalysisEvent {
	return &AnalysisEvent{
		Signature:          signature,
		Network:            string(network),
		DisplayInstruction: result.InstructionType,
		Generic:            result.Generic,
		CUConsumed:         result.TotalCU,
		LegacyCU:           result.LegacyCU,
		OptimizedCU:        result.OptimizedCU,
		AbsoluteSavingsSOL: result.AbsoluteSavingsSOL,
		PercentageSavings:  result.PercentageSavings,
		AnalyzedAt:         time.Now().UTC(),
	}
}

// Subject returns the subject the event is published on.
func (e *AnalysisEvent) Subject() string {
	return SubjectForNetwork(e.Network)
}

// SubjectForNetwork returns the subject for one network, or the wildcard
// subject covering all networks when network is empty.
func SubjectForNetwork(network string) string {
	if network == "" {
		return StreamSubjects
	}
	return fmt.Sprintf("%s.%s", subjectPrefix, network)
}
