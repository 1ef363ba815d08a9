package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*AnalysisEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*AnalysisEvent, 0),
	}
}

// PublishAnalysis records the event and returns any configured error.
func (m *MockPublisher) PublishAnalysis(ctx context.Context, event *AnalysisEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns a copy of all published events.
func (m *MockPublisher) GetPublishedEvents() []*AnalysisEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*AnalysisEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsForNetwork returns events published for one network.
func (m *MockPublisher) GetPublishedEventsForNetwork(network string) []*AnalysisEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*AnalysisEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Network == network {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishAnalysis.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
