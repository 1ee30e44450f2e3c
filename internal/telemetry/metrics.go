// Package telemetry provides application-level observability for the platform backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<ARA_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds. It is not served by the Gin router, so
// the public API never exposes it.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not
//     raw URL, and by division subdomain)
//   - Session validation, cache and reaper counters
//   - Sign-in and identity provider webhook counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/organizations/:id/members)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as organization or invitation ids.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/aragroup/ara-platform/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.SessionValidationsTotal.WithLabelValues("valid").Inc()
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/aragroup/ara-platform/internal/safego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status, division}.
// division is the resolved division subdomain, or "none" on the apex host.
// The path label holds the Gin route template (e.g. /api/organizations/:id/invitations),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//   - Traffic per division:              sum by (division) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, status code and division.",
		},
		[]string{"method", "path", "status", "division"},
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

// Session metrics, recorded by internal/sessions.
//
// SessionValidationsTotal is a CounterVec with label {result}: "valid", "not_found",
// "expired" or "error". A rising expired share usually means clients keep stale
// cookies after the 30 day lifetime.
//
// Example PromQL queries:
//   - Validation rate by result:  sum by (result) (rate(session_validations_total[5m]))
//
// SessionCacheRequestsTotal is a CounterVec with label {result}: "hit", "miss" or
// "error". Only recorded when the Redis session cache is enabled.
//
// Example PromQL queries:
//   - Hit ratio:  sum(rate(session_cache_requests_total{result="hit"}[5m])) / sum(rate(session_cache_requests_total[5m]))
//
// SessionsReapedTotal is a plain Counter incremented by the session reaper with the
// number of expired rows deleted per sweep.
var (
	SessionValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_validations_total",
			Help: "Total number of session token validations, by result.",
		},
		[]string{"result"},
	)

	SessionCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_requests_total",
			Help: "Total number of session cache lookups, by result.",
		},
		[]string{"result"},
	)

	SessionsReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_reaped_total",
			Help: "Total number of expired sessions deleted by the session reaper.",
		},
	)
)

// Identity metrics, recorded by the OAuth callback and webhook handlers.
//
// SignInsTotal is a CounterVec with label {result}: "success", "provider_error",
// "no_code", "exchange_failed" or "error".
//
// Example PromQL queries:
//   - Failed sign-ins:  sum by (result) (rate(sign_ins_total{result!="success"}[15m]))
//
// WebhookEventsTotal is a CounterVec with labels {event, outcome}. outcome is
// "applied", "ignored", "rejected" (signature failure) or "failed". The event label
// is "unknown" for rejected deliveries since their body is never parsed, and for
// events outside the handled set to bound cardinality.
//
// Example PromQL queries:
//   - Rejected deliveries:  rate(webhook_events_total{outcome="rejected"}[1h])
var (
	SignInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sign_ins_total",
			Help: "Total number of OAuth callback completions, by result.",
		},
		[]string{"result"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of identity provider webhook deliveries, by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)
)

// DBOpenConnections is a Gauge holding the open connections of the sql.DB pool,
// sampled by StartDBStatsCollector.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <ARA_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// dbStatsInterval is how often StartDBStatsCollector samples the pool.
const dbStatsInterval = 30 * time.Second

// StartDBStatsCollector samples the connection pool into DBOpenConnections
// every 30 seconds until ctx is cancelled or the database stops answering pings.
//
//	telemetry.StartDBStatsCollector(ctx, database)
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sampleDBStats(ctx, db); err != nil {
					slog.Warn("db stats collector stopped", "error", err)
					return
				}
			}
		}
	})
}

func sampleDBStats(ctx context.Context, db *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}
	DBOpenConnections.Set(float64(db.Stats().OpenConnections))
	return nil
}
