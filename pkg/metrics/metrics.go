// Package metrics wraps VictoriaMetrics counters used across the pipeline.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

const prefix = "sportsdigest_"

// name renders a metric name with labels inline, the way VictoriaMetrics expects.
// labels are key/value pairs.
func name(base string, labels ...string) string {
	if len(labels) < 2 {
		return prefix + base
	}
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(base)
	sb.WriteByte('{')
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(labels[i])
		sb.WriteString(`="`)
		sb.WriteString(strings.ReplaceAll(labels[i+1], `"`, `'`))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

// RecordAPIRequest counts an outbound API call by source and outcome
// (ok, rate_limited, remote_error, unreachable, budget_exhausted).
func RecordAPIRequest(source, outcome string) {
	metrics.GetOrCreateCounter(name("api_requests_total", "source", source, "outcome", outcome)).Inc()
}

// RecordSaved counts persisted items by kind (article, fixture) and sport.
func RecordSaved(kind, sport string, n int) {
	if n <= 0 {
		return
	}
	metrics.GetOrCreateCounter(name("items_saved_total", "kind", kind, "sport", sport)).Add(n)
}

// RecordDelivery counts newsletter delivery outcomes.
func RecordDelivery(status string) {
	metrics.GetOrCreateCounter(name("deliveries_total", "status", status)).Inc()
}

// RecordJob counts a job run and its duration.
func RecordJob(job, status string, started time.Time) {
	metrics.GetOrCreateCounter(name("job_runs_total", "job", job, "status", status)).Inc()
	metrics.GetOrCreateHistogram(name("job_duration_seconds", "job", job)).UpdateDuration(started)
}

// Handler exposes all registered metrics in Prometheus text format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(w, true)
	})
}
