package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics; a nil
// *Metrics means "don't record".
type Metrics struct {
	// Analysis Metrics
	analysesTotal             *prometheus.CounterVec
	analysisDuration          *prometheus.HistogramVec
	instructionsDetectedTotal *prometheus.CounterVec
	genericFallbackTotal      prometheus.Counter
	analysisSavingsPercent    *prometheus.HistogramVec
	batchWorkflowDuration     *prometheus.HistogramVec
	batchSignaturesTotal      *prometheus.CounterVec
	analysisActivityDuration  *prometheus.HistogramVec

	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Analysis Metrics
		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyses_total",
				Help: "Total number of transaction analyses by network and outcome",
			},
			[]string{"network", "outcome"},
		),
		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_duration_seconds",
				Help:    "Duration of transaction analyses including the RPC fetch",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"network"},
		),
		instructionsDetectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "instructions_detected_total",
				Help: "Total number of token program instructions attributed from logs",
			},
			[]string{"instruction"},
		),
		genericFallbackTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_generic_fallback_total",
				Help: "Total number of analyses priced with the generic single-instruction estimate",
			},
		),
		analysisSavingsPercent: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_savings_percent",
				Help:    "Estimated percentage savings per analyzed transaction",
				Buckets: []float64{0, 10, 25, 50, 75, 90, 95, 99, 100},
			},
			[]string{"network"},
		),
		batchWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batch_workflow_duration_seconds",
				Help:    "Duration of batch analysis workflow executions in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"network", "status"},
		),
		batchSignaturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_signatures_total",
				Help: "Total number of signatures processed by batch analyses",
			},
			[]string{"network", "outcome"},
		),
		analysisActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_activity_duration_seconds",
				Help:    "Duration of batch analysis activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Analysis metric helpers

// RecordAnalysis records one analysis request and how it ended.
func (m *Metrics) RecordAnalysis(network, outcome string, duration float64) {
	m.analysesTotal.WithLabelValues(network, outcome).Inc()
	m.analysisDuration.WithLabelValues(network).Observe(duration)
}

// RecordInstructionDetected records one attributed instruction occurrence.
func (m *Metrics) RecordInstructionDetected(instruction string) {
	m.instructionsDetectedTotal.WithLabelValues(instruction).Inc()
}

// RecordGenericFallback records an analysis priced with the generic estimate.
func (m *Metrics) RecordGenericFallback() {
	m.genericFallbackTotal.Inc()
}

// RecordSavingsPercent records the estimated savings of a successful analysis.
func (m *Metrics) RecordSavingsPercent(network string, percent float64) {
	m.analysisSavingsPercent.WithLabelValues(network).Observe(percent)
}

// RecordBatchWorkflow records a batch workflow execution.
func (m *Metrics) RecordBatchWorkflow(network, status string, duration float64) {
	m.batchWorkflowDuration.WithLabelValues(network, status).Observe(duration)
}

// RecordBatchSignatures records signatures processed by a batch.
func (m *Metrics) RecordBatchSignatures(network, outcome string, count int) {
	m.batchSignaturesTotal.WithLabelValues(network, outcome).Add(float64(count))
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.analysisActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
