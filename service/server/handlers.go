package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/costs"
	"github.com/brojonat/ptoken/service/db"
	natspkg "github.com/brojonat/ptoken/service/nats"
	"github.com/brojonat/ptoken/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a full batch of signatures
	maxSignatureLength = 128     // Solana signatures are 87-88 chars, give buffer
	defaultNetwork     = "mainnet"
)

var (
	// Valid signature characters: base58 (no 0, O, I, l)
	validSignatureRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleAnalyze returns a handler that analyzes one transaction.
// POST /api/v1/analyze {"signature": "...", "network": "mainnet"}
// Successful analyses are recorded and published when those are configured;
// failures to do so are logged and do not affect the response.
func handleAnalyze(analyzer Analyzer, store HistoryStore, publisher natspkg.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Signature string `json:"signature"`
			Network   string `json:"network"` // "mainnet" or "devnet", default mainnet
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		signature := strings.TrimSpace(req.Signature)
		if err := validateSignature(signature); err != nil {
			logger.DebugContext(r.Context(), "invalid signature", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		network, err := parseNetwork(req.Network)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := analyzer.Analyze(r.Context(), signature, network)
		if err != nil {
			status := statusForError(err)
			if status == http.StatusInternalServerError {
				logger.ErrorContext(r.Context(), "failed to analyze transaction",
					"signature", signature,
					"network", network,
					"error", err,
				)
			} else {
				logger.InfoContext(r.Context(), "transaction cannot be analyzed",
					"signature", signature,
					"network", network,
					"kind", analysis.Kind(err),
				)
			}
			writeError(w, analysis.UserMessage(err), status)
			return
		}

		if store != nil {
			if _, err := store.RecordAnalysis(r.Context(), signature, network, result); err != nil {
				logger.ErrorContext(r.Context(), "failed to record analysis", "signature", signature, "error", err)
			}
		}
		if publisher != nil {
			if err := publisher.PublishAnalysis(r.Context(), natspkg.NewAnalysisEvent(signature, network, result)); err != nil {
				logger.WarnContext(r.Context(), "failed to publish analysis event", "signature", signature, "error", err)
			}
		}

		logger.InfoContext(r.Context(), "transaction analyzed",
			"signature", result.Signature,
			"network", network,
			"instruction", result.InstructionType,
			"generic", result.Generic,
		)
		writeJSON(w, result, http.StatusOK)
	})
}

// handleListAnalyses returns a handler that lists recent analyses.
// GET /api/v1/analyses?limit=N&network=NETWORK
func handleListAnalyses(store HistoryStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		limit := int32(db.DefaultHistoryLimit)
		if limitStr := query.Get("limit"); limitStr != "" {
			var parsedLimit int
			if _, err := fmt.Sscanf(limitStr, "%d", &parsedLimit); err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedLimit < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if parsedLimit > db.MaxHistoryLimit {
				writeError(w, fmt.Sprintf("limit cannot exceed %d", db.MaxHistoryLimit), http.StatusBadRequest)
				return
			}
			limit = int32(parsedLimit)
		}

		network := query.Get("network")
		if network != "" {
			parsed, err := analysis.ParseNetwork(network)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			network = string(parsed)
		}

		analyses, err := store.ListRecentAnalyses(r.Context(), db.ListAnalysesParams{
			Network: network,
			Limit:   limit,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list analyses", "network", network, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.DebugContext(r.Context(), "analyses listed", "network", network, "count", len(analyses))

		resp := make([]analysisResponse, len(analyses))
		for i, a := range analyses {
			resp[i] = analysisToResponse(a)
		}

		writeJSON(w, map[string]interface{}{
			"analyses": resp,
			"count":    len(resp),
			"limit":    limit,
		}, http.StatusOK)
	})
}

// costEntryResponse is one row of the cost table listing.
type costEntryResponse struct {
	Instruction string `json:"instruction"`
	LegacyCU    uint64 `json:"legacy_cu"`
	OptimizedCU uint64 `json:"optimized_cu"`
	Supported   bool   `json:"supported"`
}

// handleCosts returns a handler that lists the cost table in name order.
// GET /api/v1/costs
func handleCosts(table costs.Table) http.Handler {
	names := table.Names()
	resp := make([]costEntryResponse, len(names))
	for i, name := range names {
		e := table[name]
		resp[i] = costEntryResponse{
			Instruction: name,
			LegacyCU:    e.LegacyCU,
			OptimizedCU: e.OptimizedCU,
			Supported:   e.Supported,
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"instructions": resp,
			"count":        len(resp),
		}, http.StatusOK)
	})
}

// handleProjection returns a handler that projects savings for repeated
// executions of one instruction.
// GET /api/v1/projection?instruction=Transfer&count=1000&price=50000
func handleProjection(table costs.Table, params analysis.FeeParams, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		instruction := query.Get("instruction")
		if instruction == "" {
			writeError(w, "instruction is required", http.StatusBadRequest)
			return
		}

		countStr := query.Get("count")
		if countStr == "" {
			writeError(w, "count is required", http.StatusBadRequest)
			return
		}
		count, err := strconv.ParseUint(countStr, 10, 64)
		if err != nil || count == 0 {
			writeError(w, "invalid count parameter: must be a positive integer", http.StatusBadRequest)
			return
		}

		var price uint64
		if priceStr := query.Get("price"); priceStr != "" {
			price, err = strconv.ParseUint(priceStr, 10, 64)
			if err != nil {
				writeError(w, "invalid price parameter: must be a non-negative integer (micro-lamports per CU)", http.StatusBadRequest)
				return
			}
		}

		projection, err := analysis.Project(table, instruction, count, price, params)
		if err != nil {
			logger.DebugContext(r.Context(), "projection rejected", "instruction", instruction, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, projection, http.StatusOK)
	})
}

// handleStartBatch returns a handler that starts a batch analysis workflow.
// POST /api/v1/batches {"network": "mainnet", "signatures": ["..."]}
func handleStartBatch(batches temporal.BatchRunner, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Network    string   `json:"network"`
			Signatures []string `json:"signatures"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		network, err := parseNetwork(req.Network)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		for _, sig := range req.Signatures {
			sig = strings.TrimSpace(sig)
			if sig == "" {
				continue
			}
			if err := validateSignature(sig); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		input := temporal.BatchAnalysisInput{
			Network:    string(network),
			Signatures: req.Signatures,
		}
		if err := input.Validate(); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		workflowID, err := batches.StartBatchAnalysis(r.Context(), input)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to start batch", "network", network, "error", err)
			writeError(w, "failed to start batch analysis", http.StatusInternalServerError)
			return
		}

		logger.InfoContext(r.Context(), "batch analysis started",
			"workflow_id", workflowID,
			"network", network,
			"signatures", len(req.Signatures),
		)

		writeJSON(w, map[string]interface{}{
			"workflow_id": workflowID,
			"status":      temporal.BatchRunning,
			"status_url":  fmt.Sprintf("/api/v1/batches/%s", workflowID),
		}, http.StatusAccepted)
	})
}

// handleGetBatch returns a handler that reports a batch's status and result.
// GET /api/v1/batches/{workflow_id}
func handleGetBatch(batches temporal.BatchRunner, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workflowID := r.PathValue("workflow_id")
		if workflowID == "" {
			writeError(w, "workflow_id is required", http.StatusBadRequest)
			return
		}

		status, err := batches.GetBatchResult(r.Context(), workflowID)
		if err != nil {
			if errors.Is(err, temporal.ErrBatchNotFound) {
				writeError(w, "batch not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get batch", "workflow_id", workflowID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, status, http.StatusOK)
	})
}

// analysisResponse is the JSON response format for a stored analysis.
type analysisResponse struct {
	ID        int64            `json:"id"`
	Signature string           `json:"signature"`
	Network   string           `json:"network"`
	Result    *analysis.Result `json:"result"`
	CreatedAt time.Time        `json:"created_at"`
}

// analysisToResponse converts a stored Analysis to a response format.
func analysisToResponse(a *db.Analysis) analysisResponse {
	return analysisResponse{
		ID:        a.ID,
		Signature: a.Signature,
		Network:   a.Network,
		Result:    a.Result,
		CreatedAt: a.CreatedAt,
	}
}

// decodeBody decodes a JSON request body into dst, writing a 400 response
// and returning false when that fails.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *slog.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.DebugContext(r.Context(), "failed to decode request", "error", err)
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// statusForError maps an analysis error to an HTTP status.
func statusForError(err error) int {
	switch analysis.Kind(err) {
	case "input_invalid":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "internal":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateSignature validates a transaction signature for format.
func validateSignature(signature string) error {
	if signature == "" {
		return analysis.ErrInputInvalid
	}

	if len(signature) > maxSignatureLength {
		return errorf("signature too long: maximum length is %d characters", maxSignatureLength)
	}

	for _, r := range signature {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in signature: control characters not allowed")
		}
	}

	if !validSignatureRegex.MatchString(signature) {
		return errorf("invalid signature format: must contain only valid base58 characters")
	}

	return nil
}

// parseNetwork validates a network parameter, defaulting to mainnet.
func parseNetwork(network string) (analysis.Network, error) {
	if network == "" {
		network = defaultNetwork
	}
	return analysis.ParseNetwork(network)
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
