package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/shopspring/decimal"
)

// StoredAnalysis is one entry of the analysis history.
type StoredAnalysis struct {
	ID        int64            `json:"id"`
	Signature string           `json:"signature"`
	Network   string           `json:"network"`
	Result    *analysis.Result `json:"result"`
	CreatedAt time.Time        `json:"created_at"`
}

// CostEntry is one row of the server's cost table.
type CostEntry struct {
	Instruction string `json:"instruction"`
	LegacyCU    uint64 `json:"legacy_cu"`
	OptimizedCU uint64 `json:"optimized_cu"`
	Supported   bool   `json:"supported"`
}

// BatchOutcome is the result of one signature of a batch.
type BatchOutcome struct {
	Signature string           `json:"signature"`
	Status    string           `json:"status"` // ok, failed
	Result    *analysis.Result `json:"result,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// BatchResult is the output of a completed batch.
type BatchResult struct {
	Network                 string          `json:"network"`
	Outcomes                []BatchOutcome  `json:"outcomes"`
	Succeeded               int             `json:"succeeded"`
	Failed                  int             `json:"failed"`
	TotalLegacyCU           uint64          `json:"total_legacy_cu"`
	TotalOptimizedCU        uint64          `json:"total_optimized_cu"`
	TotalAbsoluteSavingsSOL decimal.Decimal `json:"total_absolute_savings_sol"`
	StartedAt               time.Time       `json:"started_at"`
	CompletedAt             time.Time       `json:"completed_at"`
}

// Batch is the status of a batch analysis.
type Batch struct {
	WorkflowID string       `json:"workflow_id"`
	Status     string       `json:"status"` // running, completed, failed, ...
	Result     *BatchResult `json:"result,omitempty"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the ptoken analysis service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new analysis service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Analyze asks the server to analyze one transaction.
func (c *Client) Analyze(ctx context.Context, signature, network string) (*analysis.Result, error) {
	var result analysis.Result
	err := c.do(ctx, http.MethodPost, "/api/v1/analyze", map[string]string{
		"signature": signature,
		"network":   network,
	}, http.StatusOK, &result)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("transaction analyzed", "signature", result.Signature, "network", network)
	return &result, nil
}

// History lists the most recent analyses, newest first. An empty network
// lists all networks; limit <= 0 uses the server default.
func (c *Client) History(ctx context.Context, network string, limit int) ([]*StoredAnalysis, error) {
	q := url.Values{}
	if network != "" {
		q.Set("network", network)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/analyses"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Analyses []*StoredAnalysis `json:"analyses"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Analyses, nil
}

// Costs returns the server's cost table sorted by instruction name.
func (c *Client) Costs(ctx context.Context) ([]CostEntry, error) {
	var resp struct {
		Instructions []CostEntry `json:"instructions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/costs", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Instructions, nil
}

// Projection projects the savings of count executions of instruction at a
// priority fee of price micro-lamports per CU.
func (c *Client) Projection(ctx context.Context, instruction string, count, price uint64) (*analysis.Projection, error) {
	q := url.Values{}
	q.Set("instruction", instruction)
	q.Set("count", strconv.FormatUint(count, 10))
	q.Set("price", strconv.FormatUint(price, 10))

	var p analysis.Projection
	if err := c.do(ctx, http.MethodGet, "/api/v1/projection?"+q.Encode(), nil, http.StatusOK, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// StartBatch starts a batch analysis and returns its workflow ID.
func (c *Client) StartBatch(ctx context.Context, network string, signatures []string) (string, error) {
	var resp struct {
		WorkflowID string `json:"workflow_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/batches", map[string]interface{}{
		"network":    network,
		"signatures": signatures,
	}, http.StatusAccepted, &resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug("batch started", "workflow_id", resp.WorkflowID, "signatures", len(signatures))
	return resp.WorkflowID, nil
}

// GetBatch returns the status of a batch and its result once completed.
func (c *Client) GetBatch(ctx context.Context, workflowID string) (*Batch, error) {
	var b Batch
	if err := c.do(ctx, http.MethodGet, "/api/v1/batches/"+url.PathEscape(workflowID), nil, http.StatusOK, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// do sends a request with an optional JSON body and decodes a JSON response
// when the status matches want.
func (c *Client) do(ctx context.Context, method, path string, reqBody interface{}, want int, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
