package solana

import (
	"fmt"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// recordFromResult converts an RPC transaction response into the engine's
// transaction record. Only execution metadata is read; the transaction
// message itself is never decoded.
func recordFromResult(signature string, result *rpc.GetTransactionResult) *analysis.TransactionRecord {
	record := &analysis.TransactionRecord{Signature: signature}
	if result == nil || result.Meta == nil {
		return record
	}

	meta := result.Meta
	record.Meta = &analysis.TransactionMeta{
		Fee:         meta.Fee,
		LogMessages: meta.LogMessages,
		LoadedAddresses: analysis.LoadedAddresses{
			Writable: publicKeyStrings(meta.LoadedAddresses.Writable),
			Readonly: publicKeyStrings(meta.LoadedAddresses.ReadOnly),
		},
	}

	if meta.ComputeUnitsConsumed != nil {
		cu := *meta.ComputeUnitsConsumed
		record.Meta.ComputeUnitsConsumed = &cu
	}

	if meta.Err != nil {
		errMsg := fmt.Sprintf("%v", meta.Err)
		record.Meta.Err = &errMsg
	}

	return record
}

func publicKeyStrings(keys solana.PublicKeySlice) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}
