// Package telemetry provides application-level observability for CaseFlow.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<CFW_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns the Prometheus text exposition
// format and is intended to be scraped every 15–60 seconds. It is NOT served
// by the Gin router and is therefore never subject to the API middleware
// chain.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authorization decision counters (allow/deny, by action)
//   - Audit pipeline counters and queue depth gauge
//   - Change history record counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/cases/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as entity identifiers.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}. The
// path label holds the Gin route template, NOT the raw URL.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and
// exponential-ish buckets from 5 ms to 30 s.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authorization metrics.
//
// AuthzDecisionsTotal is a CounterVec with labels {decision, action} where
// decision is "allow" or "deny" and action is "read" or the write action name.
// A rising deny rate on a single action is the usual first signal of a
// misconfigured grant set.
//
// Example PromQL queries:
//   - Deny ratio:  sum(rate(authz_decisions_total{decision="deny"}[5m])) / sum(rate(authz_decisions_total[5m]))
var AuthzDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authz_decisions_total",
		Help: "Total number of authorization decisions, by decision and action.",
	},
	[]string{"decision", "action"},
)

// Audit pipeline metrics.
//
// AuditRecordsTotal is a CounterVec with label {outcome}: "stored" for
// persisted action records, "failed" for store errors, and "dropped" for
// entries discarded because the async queue was full. The dropped series is
// the one to alert on — every increment is a lost audit record.
//
// AuditQueueDepth is a Gauge tracking the current length of the async audit
// delivery queue.
var (
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit records processed, by outcome (stored, failed, dropped).",
		},
		[]string{"outcome"},
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_queue_depth",
			Help: "Current number of audit entries waiting in the async delivery queue.",
		},
	)
)

// ChangeRecordsTotal is a CounterVec with label {kind} ("create", "update",
// "delete") incremented once per entity change recorded in the history store.
//
// Example PromQL queries:
//   - Change volume by kind:  sum by (kind) (rate(change_records_total[1h]))
var ChangeRecordsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "change_records_total",
		Help: "Total number of entity change records written, by change kind.",
	},
	[]string{"kind"},
)

// RetentionSweepsTotal is a plain Counter incremented once per completed
// retention sweep; RetentionRecordsExpiredTotal counts the change records each
// sweep soft-deleted.
var (
	RetentionSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_sweeps_total",
			Help: "Total number of completed change-history retention sweeps.",
		},
	)

	RetentionRecordsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_records_expired_total",
			Help: "Total number of change records soft-deleted by the retention job.",
		},
	)
)

// DBOpenConnections is a Gauge tracking the number of open connections held by
// the sql.DB pool. It is sampled every 30 seconds by StartDBStatsCollector
// rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates the
// DBOpenConnections gauge. The goroutine exits cleanly when the database
// becomes unreachable (db.Ping fails), which happens automatically when the
// application shuts down and defers db.Close().
//
// Call this once, immediately after the database connection succeeds in
// main.go.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
