package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct is passed
// to all components that need to record metrics. All recorder methods are
// nil-safe so wiring metrics stays optional.
type Metrics struct {
	// Relay protocol metrics
	relayCallsTotal   *prometheus.CounterVec
	relayCallDuration *prometheus.HistogramVec
	relayCredits      prometheus.Gauge

	// Compile metrics
	compilesTotal   *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec

	// Submission metrics
	submissionsTotal *prometheus.CounterVec

	// Horizon metrics
	horizonCallsTotal   *prometheus.CounterVec
	horizonCallDuration *prometheus.HistogramVec

	// Workflow metrics
	submitWorkflowDuration *prometheus.HistogramVec
	submitActivityDuration *prometheus.HistogramVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
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
		relayCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_calls_total",
				Help: "Total number of relay protocol calls by operation and outcome",
			},
			[]string{"op", "status"},
		),
		relayCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_call_duration_seconds",
				Help:    "Duration of relay protocol calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"op"},
		),
		relayCredits: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_credits_remaining",
				Help: "Last observed prepaid credit balance reported by the relay",
			},
		),
		compilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intent_compiles_total",
				Help: "Total number of intent compilations by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		compileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intent_compile_duration_seconds",
				Help:    "Duration of intent compilation in seconds, including the account load",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"kind"},
		),
		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "submissions_total",
				Help: "Total number of orchestrated submissions by intent kind and result kind",
			},
			[]string{"kind", "result"},
		),
		horizonCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_calls_total",
				Help: "Total number of Horizon account/fee lookups by method and status",
			},
			[]string{"method", "status"},
		),
		horizonCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "horizon_call_duration_seconds",
				Help:    "Duration of Horizon lookups in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"method"},
		),
		submitWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "submit_workflow_duration_seconds",
				Help:    "Duration of submit workflow executions in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 30.0, 60.0, 120.0},
			},
			[]string{"status"},
		),
		submitActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "submit_activity_duration_seconds",
				Help:    "Duration of submit workflow activities in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1.0, 5.0, 15.0, 30.0},
			},
			[]string{"activity"},
		),
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
				Help: "Total number of database operations by type and status",
			},
			[]string{"operation", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 30.0},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by handler, method, and status class",
			},
			[]string{"handler", "method", "status"},
		),
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

// Relay metric helpers

// RecordRelayCall records one relay protocol call with duration. Status is
// either the HTTP status code or a transport-level error kind.
func (m *Metrics) RecordRelayCall(op, status string, duration float64) {
	if m == nil {
		return
	}
	m.relayCallsTotal.WithLabelValues(op, status).Inc()
	m.relayCallDuration.WithLabelValues(op).Observe(duration)
}

// SetRelayCredits records the balance last reported by the relay.
func (m *Metrics) SetRelayCredits(credits float64) {
	if m == nil {
		return
	}
	m.relayCredits.Set(credits)
}

// Compile metric helpers

// RecordCompile records an intent compilation attempt.
func (m *Metrics) RecordCompile(kind, status string, duration float64) {
	if m == nil {
		return
	}
	m.compilesTotal.WithLabelValues(kind, status).Inc()
	m.compileDuration.WithLabelValues(kind).Observe(duration)
}

// RecordSubmission records one orchestrated submission outcome.
func (m *Metrics) RecordSubmission(kind, result string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(kind, result).Inc()
}

// Horizon metric helpers

// RecordHorizonCall records a Horizon lookup with duration.
func (m *Metrics) RecordHorizonCall(method, status string, duration float64) {
	if m == nil {
		return
	}
	m.horizonCallsTotal.WithLabelValues(method, status).Inc()
	m.horizonCallDuration.WithLabelValues(method).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records submit workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	if m == nil {
		return
	}
	m.submitWorkflowDuration.WithLabelValues(status).Observe(duration)
}

// RecordActivityDuration records submit activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	if m == nil {
		return
	}
	m.submitActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
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
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
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
