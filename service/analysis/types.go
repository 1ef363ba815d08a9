package analysis

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TokenProgramID is the SPL Token program whose instructions are priced
// against the p-token implementation.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// GenericInstructionType is the display label used when the token program
// is detected but no instruction logs could be attributed.
const GenericInstructionType = "SPL Token Operation"

// Network selects the RPC endpoint family used to fetch a transaction.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
)

// ParseNetwork accepts "mainnet", "mainnet-beta" and "devnet".
func ParseNetwork(s string) (Network, error) {
	switch s {
	case "mainnet", "mainnet-beta":
		return NetworkMainnet, nil
	case "devnet":
		return NetworkDevnet, nil
	case "":
		return "", fmt.Errorf("network is required")
	default:
		return "", fmt.Errorf("invalid network %q: must be 'mainnet' or 'devnet'", s)
	}
}

// TransactionRecord is the subset of a fetched transaction the engine reads.
// It is independent of the RPC response format.
type TransactionRecord struct {
	Signature string
	Meta      *TransactionMeta // nil when the node returned no execution metadata
}

// TransactionMeta holds execution metadata for a transaction.
type TransactionMeta struct {
	ComputeUnitsConsumed *uint64 // nil when the node did not report it
	Fee                  uint64  // lamports
	Err                  *string // nil if the transaction succeeded
	LogMessages          []string
	LoadedAddresses      LoadedAddresses
}

// LoadedAddresses are the address-lookup-table accounts of a versioned transaction.
type LoadedAddresses struct {
	Writable []string
	Readonly []string
}

// Occurrence is one instruction log line attributed to the target program.
type Occurrence struct {
	Instruction string `json:"instruction"`
	Ordinal     int    `json:"ordinal"` // index of the log line
}

// InstructionCost is one row of a per-instruction breakdown.
type InstructionCost struct {
	Name        string `json:"name"`
	LegacyCU    uint64 `json:"legacy_cu"`
	OptimizedCU uint64 `json:"optimized_cu"`
}

// Result is the savings estimate for one transaction.
type Result struct {
	Signature               string            `json:"signature"`           // first8...last8
	PriorityFeePerCU        uint64            `json:"priority_fee_per_cu"` // micro-lamports
	TotalCU                 uint64            `json:"total_cu"`
	TotalPriorityFeeSOL     decimal.Decimal   `json:"total_priority_fee_sol"`
	InstructionType         string            `json:"instruction_type"`
	LegacyCU                uint64            `json:"legacy_cu"`
	OptimizedCU             uint64            `json:"optimized_cu"`
	OptimizedPriorityFeeSOL decimal.Decimal   `json:"optimized_priority_fee_sol"`
	AbsoluteSavingsSOL      decimal.Decimal   `json:"absolute_savings_sol"`
	PercentageSavings       decimal.Decimal   `json:"percentage_savings"`
	Generic                 bool              `json:"generic"`
	Breakdown               []InstructionCost `json:"instruction_breakdown,omitempty"`
}

// TruncateSignature shortens a signature to first8...last8 for display.
// Signatures of 16 characters or fewer are returned unchanged rather than
// sliced into overlapping halves.
func TruncateSignature(signature string) string {
	if len(signature) <= 16 {
		return signature
	}
	return signature[:8] + "..." + signature[len(signature)-8:]
}
