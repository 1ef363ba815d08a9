package analysis

import "errors"

// Analysis failures. Each is terminal for the request that produced it and
// carries a message suitable for showing to the user.
var (
	ErrInputInvalid               = errors.New("please enter a transaction signature")
	ErrNotFound                   = errors.New("transaction not found: ensure the signature is correct and the right network is selected")
	ErrMetadataUnavailable        = errors.New("transaction metadata not available: this can happen with very old transactions")
	ErrExecutionFailed            = errors.New("this transaction failed and cannot be analyzed for compute savings")
	ErrComputeDataUnavailable     = errors.New("compute unit data is not available for this transaction")
	ErrNotTokenProgramTransaction = errors.New("this transaction doesn't contain SPL Token operations: p-token savings only apply to SPL Token transactions")
	ErrUnknownInstruction         = errors.New("unknown instruction")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInputInvalid, "input_invalid"},
	{ErrNotFound, "not_found"},
	{ErrMetadataUnavailable, "metadata_unavailable"},
	{ErrExecutionFailed, "execution_failed"},
	{ErrComputeDataUnavailable, "compute_data_unavailable"},
	{ErrNotTokenProgramTransaction, "not_token_program_transaction"},
	{ErrUnknownInstruction, "unknown_instruction"},
}

// Kind returns a stable label for err: "ok" for nil, one of the taxonomy
// labels for analysis failures, and "internal" for anything else.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// IsAnalysisError reports whether err belongs to the analysis taxonomy.
// Such errors will not succeed on retry.
func IsAnalysisError(err error) bool {
	k := Kind(err)
	return k != "ok" && k != "internal"
}

// UserMessage returns the message to show for err. Analysis failures map to
// their fixed message; anything else gets a generic one.
func UserMessage(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err.Error()
		}
	}
	return "failed to analyze transaction"
}

// MessageForKind returns the user message for a label produced by Kind.
// It is used where only the label survives, such as across a workflow
// boundary.
func MessageForKind(kind string) string {
	for _, k := range kinds {
		if k.kind == kind {
			return k.err.Error()
		}
	}
	return "failed to analyze transaction"
}
