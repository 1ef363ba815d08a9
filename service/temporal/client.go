package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// ErrBatchNotFound is returned when no workflow exists for a batch ID.
var ErrBatchNotFound = errors.New("batch not found")

// Batch statuses reported by GetBatchResult.
const (
	BatchRunning    = "running"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
	BatchCanceled   = "canceled"
	BatchTerminated = "terminated"
	BatchTimedOut   = "timed_out"
	BatchUnknown    = "unknown"
)

// BatchStatus is the state of a batch workflow. Result is set once the
// batch has completed.
type BatchStatus struct {
	WorkflowID string               `json:"workflow_id"`
	Status     string               `json:"status"`
	Result     *BatchAnalysisResult `json:"result,omitempty"`
}

// BatchRunner starts and inspects batch analyses.
// This allows for easy mocking in tests.
type BatchRunner interface {
	StartBatchAnalysis(ctx context.Context, input BatchAnalysisInput) (string, error)
	GetBatchResult(ctx context.Context, workflowID string) (*BatchStatus, error)
}

// Client starts and inspects batch analysis workflows.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return NewClientFromSDK(c, taskQueue, logger), nil
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(c client.Client, taskQueue string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}
}

// StartBatchAnalysis validates input and starts a BatchAnalysisWorkflow.
// It returns the workflow ID used to look the batch up later.
func (c *Client) StartBatchAnalysis(ctx context.Context, input BatchAnalysisInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", err
	}
	input.Signatures = UniqueSignatures(input.Signatures)

	id := fmt.Sprintf("batch-analysis-%s-%s", input.Network, uuid.NewString())
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		Memo: map[string]interface{}{
			"network":    input.Network,
			"signatures": len(input.Signatures),
			"created_by": "ptoken",
		},
	}, BatchAnalysisWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start batch analysis",
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start batch analysis: %w", err)
	}

	c.logger.Info("batch analysis started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"network", input.Network,
		"signatures", len(input.Signatures),
	)

	return run.GetID(), nil
}

// GetBatchResult reports the status of a batch and, once completed, its result.
func (c *Client) GetBatchResult(ctx context.Context, workflowID string) (*BatchStatus, error) {
	desc, err := c.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to describe batch %q: %w", workflowID, err)
	}

	status := &BatchStatus{
		WorkflowID: workflowID,
		Status:     batchStatus(desc.GetWorkflowExecutionInfo().GetStatus()),
	}
	if status.Status != BatchCompleted {
		return status, nil
	}

	var result BatchAnalysisResult
	if err := c.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to get batch result %q: %w", workflowID, err)
	}
	status.Result = &result
	return status, nil
}

func batchStatus(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return BatchRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return BatchCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		return BatchFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return BatchCanceled
	case enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return BatchTerminated
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return BatchTimedOut
	default:
		return BatchUnknown
	}
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
