package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nis_portal_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"path", "method", "status"},
	)

	// ActiveConnections tracks active connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nis_portal_active_connections",
			Help: "Number of active connections",
		},
	)

	// DatabaseOperations tracks database operations
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nis_portal_database_operations_total",
			Help: "Number of database operations",
		},
		[]string{"operation", "status"},
	)

	// RequestsCreated counts benefit requests by target country code
	RequestsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nis_portal_requests_created_total",
			Help: "Number of benefit requests created",
		},
		[]string{"target_country"},
	)

	// StatusTransitions counts successful status updates by new status
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nis_portal_status_transitions_total",
			Help: "Number of request status updates",
		},
		[]string{"status"},
	)

	// AuditFailures counts audit entries that could not be written
	AuditFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nis_portal_audit_failures_total",
			Help: "Number of audit entries dropped after a write failure",
		},
		[]string{"action_type"},
	)

	// DocumentsUploaded counts stored documents
	DocumentsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nis_portal_documents_uploaded_total",
			Help: "Number of uploaded documents",
		},
		[]string{"status"},
	)

	// LoginAttempts counts login outcomes (success, invalid, throttled)
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nis_portal_login_attempts_total",
			Help: "Number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AccessLogQueueDepth tracks pending access log entries
	AccessLogQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nis_portal_access_log_queue_depth",
			Help: "Number of access log entries waiting to be written",
		},
	)
)
