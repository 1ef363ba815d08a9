package analysis

import (
	"fmt"

	"github.com/brojonat/ptoken/service/costs"
	"github.com/shopspring/decimal"
)

// MaxProjectionCount bounds the transaction count of a projection so CU
// totals stay well inside uint64.
const MaxProjectionCount = 1_000_000_000_000

// Projection is the cost of executing one instruction count times under
// each implementation at a fixed priority fee price.
type Projection struct {
	Instruction             string          `json:"instruction"`
	Count                   uint64          `json:"count"`
	PriorityFeePerCU        uint64          `json:"priority_fee_per_cu"`
	LegacyCU                uint64          `json:"legacy_cu"`
	OptimizedCU             uint64          `json:"optimized_cu"`
	CUReductionPercent      decimal.Decimal `json:"cu_reduction_percent"`
	LegacyPriorityFeeSOL    decimal.Decimal `json:"legacy_priority_fee_sol"`
	OptimizedPriorityFeeSOL decimal.Decimal `json:"optimized_priority_fee_sol"`
	SavingsSOL              decimal.Decimal `json:"savings_sol"`
}

// Project estimates the savings of count executions of instruction.
// priorityFeePerCU is in micro-lamports.
func Project(table costs.Table, instruction string, count, priorityFeePerCU uint64, params FeeParams) (*Projection, error) {
	entry, ok := table.Lookup(instruction)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, instruction)
	}
	if count == 0 {
		return nil, fmt.Errorf("count must be at least 1")
	}
	if count > MaxProjectionCount {
		return nil, fmt.Errorf("count cannot exceed %d", uint64(MaxProjectionCount))
	}

	p := &Projection{
		Instruction:      instruction,
		Count:            count,
		PriorityFeePerCU: priorityFeePerCU,
		LegacyCU:         entry.LegacyCU * count,
		OptimizedCU:      entry.OptimizedCU * count,
	}

	p.CUReductionPercent = decimal.Zero
	if p.LegacyCU > 0 {
		delta := fromUint64(p.LegacyCU).Sub(fromUint64(p.OptimizedCU))
		p.CUReductionPercent = delta.Mul(decimal.NewFromInt(100)).DivRound(fromUint64(p.LegacyCU), percentPrecision)
	}

	p.LegacyPriorityFeeSOL = lamportsToSOL(feeForCU(p.LegacyCU, priorityFeePerCU), params)
	p.OptimizedPriorityFeeSOL = lamportsToSOL(feeForCU(p.OptimizedCU, priorityFeePerCU), params)
	p.SavingsSOL = p.LegacyPriorityFeeSOL.Sub(p.OptimizedPriorityFeeSOL)

	return p, nil
}
