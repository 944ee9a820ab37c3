package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine-wide Prometheus collectors. Registered once at init through
// promauto; components record through the helper functions so call
// sites stay one line.
var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opswatch_rule_evaluations_total",
			Help: "Rule evaluations by outcome",
		},
		[]string{"outcome"},
	)

	rulesDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opswatch_rules_degraded",
			Help: "Rules currently in degraded evaluation",
		},
	)

	alertsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opswatch_alerts_open",
			Help: "Alerts currently firing or acknowledged",
		},
	)

	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opswatch_alerts_total",
			Help: "Alert lifecycle transitions",
		},
		[]string{"transition"},
	)

	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opswatch_escalations_total",
			Help: "Escalation level transitions by trigger",
		},
		[]string{"trigger"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opswatch_notifications_total",
			Help: "Notification deliveries by final status",
		},
		[]string{"status"},
	)

	remediationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opswatch_remediations_total",
			Help: "Remediation tasks by final outcome",
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opswatch_http_requests_total",
			Help: "HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opswatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordEvaluation counts one rule evaluation outcome:
// "ok", "violation" or "fetch_error".
func RecordEvaluation(outcome string) {
	evaluationsTotal.WithLabelValues(outcome).Inc()
}

// SetDegradedRules publishes the current degraded rule count.
func SetDegradedRules(n int) {
	rulesDegraded.Set(float64(n))
}

// AlertOpened counts a newly opened alert.
func AlertOpened() {
	alertsTotal.WithLabelValues("opened").Inc()
	alertsOpen.Inc()
}

// AlertClosed counts an acknowledged-then-resolved or resolved alert.
func AlertClosed() {
	alertsTotal.WithLabelValues("closed").Inc()
	alertsOpen.Dec()
}

// RecordEscalation counts one escalation, trigger "system" or "manual".
func RecordEscalation(trigger string) {
	escalationsTotal.WithLabelValues(trigger).Inc()
}

// RecordNotification counts one delivery reaching a final status:
// "sent", "failed" or "suppressed".
func RecordNotification(status string) {
	notificationsTotal.WithLabelValues(status).Inc()
}

// RecordRemediation counts one task outcome: "success", "failed" or
// "rejected".
func RecordRemediation(outcome string) {
	remediationsTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest feeds the HTTP middleware collectors.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
