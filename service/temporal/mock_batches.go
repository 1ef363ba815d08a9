package temporal

import (
	"context"
	"fmt"
	"sync"
)

// MockBatchRunner is an in-memory BatchRunner for testing.
type MockBatchRunner struct {
	mu       sync.Mutex
	batches  map[string]*BatchStatus
	inputs   map[string]BatchAnalysisInput
	next     int
	startErr error
}

// NewMockBatchRunner creates a new MockBatchRunner.
func NewMockBatchRunner() *MockBatchRunner {
	return &MockBatchRunner{
		batches: make(map[string]*BatchStatus),
		inputs:  make(map[string]BatchAnalysisInput),
	}
}

// StartBatchAnalysis validates input and records a running batch.
func (m *MockBatchRunner) StartBatchAnalysis(ctx context.Context, input BatchAnalysisInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", err
	}
	if m.startErr != nil {
		return "", m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	id := fmt.Sprintf("batch-analysis-%s-%d", input.Network, m.next)
	input.Signatures = UniqueSignatures(input.Signatures)
	m.inputs[id] = input
	m.batches[id] = &BatchStatus{WorkflowID: id, Status: BatchRunning}
	return id, nil
}

// GetBatchResult returns the recorded status or ErrBatchNotFound.
func (m *MockBatchRunner) GetBatchResult(ctx context.Context, workflowID string) (*BatchStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.batches[workflowID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	copied := *status
	return &copied, nil
}

// Complete marks a batch completed with result.
func (m *MockBatchRunner) Complete(workflowID string, result *BatchAnalysisResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[workflowID] = &BatchStatus{WorkflowID: workflowID, Status: BatchCompleted, Result: result}
}

// Input returns the input a batch was started with.
func (m *MockBatchRunner) Input(workflowID string) (BatchAnalysisInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.inputs[workflowID]
	return in, ok
}

// SetStartError makes StartBatchAnalysis return err after validation.
func (m *MockBatchRunner) SetStartError(err error) {
	m.startErr = err
}
