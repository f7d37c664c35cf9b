// ABOUTME: Prometheus collectors for workflow runs and Momence API traffic
// ABOUTME: Collectors register on init and are exposed by the serve command
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "latecancel"

var (
	apiRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "momence",
		Name:      "requests_total",
		Help:      "Momence API calls grouped by operation and result.",
	}, []string{"op", "result"})

	apiRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "momence",
		Name:      "retries_total",
		Help:      "Retried Momence API attempts per operation.",
	}, []string{"op"})

	apiLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "momence",
		Name:      "request_duration_seconds",
		Help:      "Latency of single Momence API attempts.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	memberOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "member_outcomes_total",
		Help:      "Member cancellation outcomes by status.",
	}, []string{"status"})

	bookingsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "bookings_cancelled_total",
		Help:      "Bookings successfully cancelled.",
	})

	lateCancellations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "late_cancellations_total",
		Help:      "Late cancellation report rows by reconciliation result.",
	}, []string{"result"})

	tagAssignments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "tag_assignments_total",
		Help:      "Late cancellation tag assignments by result.",
	}, []string{"result"})

	runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "runs_total",
		Help:      "Workflow runs by final status.",
	}, []string{"status"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "run_duration_seconds",
		Help:      "Wall time of complete workflow runs.",
		Buckets:   []float64{5, 10, 30, 60, 120, 300, 600},
	})

	lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful run.",
	})
)

func init() {
	prometheus.MustRegister(
		apiRequests, apiRetries, apiLatency,
		memberOutcomes, bookingsCancelled, lateCancellations, tagAssignments,
		runs, runDuration, lastSuccess,
	)
}

// ObserveAPICall records one attempt against a Momence operation.
func ObserveAPICall(op, result string, elapsed time.Duration) {
	apiRequests.WithLabelValues(op, result).Inc()
	apiLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordRetry counts a retried attempt.
func RecordRetry(op string) {
	apiRetries.WithLabelValues(op).Inc()
}

// RecordMemberOutcome counts a member outcome and its cancelled bookings.
func RecordMemberOutcome(status string, cancelled int) {
	memberOutcomes.WithLabelValues(status).Inc()
	if cancelled > 0 {
		bookingsCancelled.Add(float64(cancelled))
	}
}

// RecordLateCancellations counts reconciled report rows.
func RecordLateCancellations(inserted, duplicates, rejected int) {
	lateCancellations.WithLabelValues("inserted").Add(float64(inserted))
	lateCancellations.WithLabelValues("duplicate").Add(float64(duplicates))
	lateCancellations.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordTagAssignment counts a tag assignment result.
func RecordTagAssignment(success bool) {
	if success {
		tagAssignments.WithLabelValues("success").Inc()
		return
	}
	tagAssignments.WithLabelValues("failure").Inc()
}

// RecordRun counts a finished run and its duration.
func RecordRun(success bool, elapsed time.Duration, finished time.Time) {
	runDuration.Observe(elapsed.Seconds())
	if success {
		runs.WithLabelValues("succeeded").Inc()
		lastSuccess.Set(float64(finished.Unix()))
		return
	}
	runs.WithLabelValues("failed").Inc()
}
