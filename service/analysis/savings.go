package analysis

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// microLamportsPerLamport is the fixed-point scale of PriorityFeePerCU.
const microLamportsPerLamport = 1_000_000

// solPrecision bounds division when converting lamports to SOL.
const solPrecision = 18

// percentPrecision is the number of decimal places kept in percentages.
const percentPrecision = 8

// FeeParams are the externally configured fee constants.
type FeeParams struct {
	BaseFee        uint64 // lamports charged per transaction regardless of CU
	LamportsPerSOL uint64
}

// DefaultFeeParams returns the mainnet base fee and SOL denomination.
func DefaultFeeParams() FeeParams {
	return FeeParams{
		BaseFee:        5000,
		LamportsPerSOL: 1_000_000_000,
	}
}

// SavingsInput is the CU and fee data the calculator works from.
type SavingsInput struct {
	TotalCUConsumed uint64
	TotalFeePaid    uint64 // lamports, base fee included
	LegacyCU        uint64
	OptimizedCU     uint64
}

// Savings is the fee impact of running the optimized instructions.
type Savings struct {
	PriorityFee             uint64 // lamports
	PriorityFeePerCU        uint64 // micro-lamports per CU, floored
	TotalPriorityFeeSOL     decimal.Decimal
	OptimizedPriorityFeeSOL decimal.Decimal
	AbsoluteSavingsSOL      decimal.Decimal // negative if the table prices optimized above legacy
	PercentageSavings       decimal.Decimal // always >= 0
}

// ComputeSavings converts a CU delta into a priority fee delta.
func ComputeSavings(in SavingsInput, params FeeParams) Savings {
	var s Savings

	if in.TotalFeePaid > params.BaseFee {
		s.PriorityFee = in.TotalFeePaid - params.BaseFee
	}

	if in.TotalCUConsumed > 0 {
		// Integer division floors for non-negative operands.
		perCU := new(big.Int).SetUint64(s.PriorityFee)
		perCU.Mul(perCU, big.NewInt(microLamportsPerLamport))
		perCU.Quo(perCU, new(big.Int).SetUint64(in.TotalCUConsumed))
		s.PriorityFeePerCU = perCU.Uint64()
	}

	s.TotalPriorityFeeSOL = lamportsToSOL(fromUint64(s.PriorityFee), params)
	s.OptimizedPriorityFeeSOL = lamportsToSOL(feeForCU(in.OptimizedCU, s.PriorityFeePerCU), params)
	s.AbsoluteSavingsSOL = s.TotalPriorityFeeSOL.Sub(s.OptimizedPriorityFeeSOL)

	hundred := decimal.NewFromInt(100)
	switch {
	case s.TotalPriorityFeeSOL.IsPositive():
		s.PercentageSavings = decimal.Max(decimal.Zero, s.AbsoluteSavingsSOL).
			Mul(hundred).
			DivRound(s.TotalPriorityFeeSOL, percentPrecision)
	case in.LegacyCU > 0:
		// No priority fee was paid, so the fee ratio is undefined. Fall back
		// to the CU reduction.
		delta := fromUint64(in.LegacyCU).Sub(fromUint64(in.OptimizedCU))
		s.PercentageSavings = decimal.Max(decimal.Zero, delta).
			Mul(hundred).
			DivRound(fromUint64(in.LegacyCU), percentPrecision)
	default:
		s.PercentageSavings = decimal.Zero
	}

	return s
}

// feeForCU returns the priority fee in lamports for cu units at perCU
// micro-lamports each. The result is not rounded.
func feeForCU(cu, perCU uint64) decimal.Decimal {
	return fromUint64(cu).Mul(fromUint64(perCU)).DivRound(decimal.NewFromInt(microLamportsPerLamport), 6)
}

func lamportsToSOL(lamports decimal.Decimal, params FeeParams) decimal.Decimal {
	if params.LamportsPerSOL == 0 {
		return lamports
	}
	return lamports.DivRound(fromUint64(params.LamportsPerSOL), solPrecision)
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
