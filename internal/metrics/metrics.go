// Package metrics provides Prometheus metrics for newsdesk.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsdesk"

var (
	// ArticlesTotal counts ingested articles by resolution outcome.
	ArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Total number of articles processed by outcome",
		},
		[]string{"outcome"},
	)

	// SpamRejectionsTotal counts filter rejections by rule.
	SpamRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spam_rejections_total",
			Help:      "Total number of articles rejected by the promotional filter",
		},
		[]string{"rule"},
	)

	// ConflictsTotal counts optimistic concurrency conflicts.
	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Total number of story version conflicts",
		},
		[]string{"mutator", "result"},
	)

	// StatusTransitionsTotal counts persisted status changes.
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Total number of story status transitions",
		},
		[]string{"from", "to"},
	)

	// SummariesTotal counts summarization attempts by path and result.
	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Total number of summarization attempts",
		},
		[]string{"path", "result"},
	)

	// SummaryDuration measures immediate summarization latency.
	SummaryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "immediate_summary_duration_seconds",
			Help:      "Duration of immediate summarization calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// BatchJobsTotal counts batch job state changes.
	BatchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_jobs_total",
			Help:      "Total number of batch job state changes",
		},
		[]string{"status"},
	)

	// BatchSize observes the number of stories per batch submission.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Distribution of stories per batch submission",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// NotificationsTotal counts breaking notifications by result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaking_notifications_total",
			Help:      "Total number of breaking notification attempts",
		},
		[]string{"result"},
	)
)

// RecordArticle records the resolution outcome of one article.
func RecordArticle(outcome string) {
	ArticlesTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection records a promotional filter rejection.
func RecordRejection(rule string) {
	SpamRejectionsTotal.WithLabelValues(rule).Inc()
}

// RecordConflict records a version conflict; result is "retried" or "exhausted".
func RecordConflict(mutator, result string) {
	ConflictsTotal.WithLabelValues(mutator, result).Inc()
}

// RecordTransition records a persisted status change.
func RecordTransition(from, to string) {
	StatusTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordSummary records a summarization attempt.
func RecordSummary(path, result string) {
	SummariesTotal.WithLabelValues(path, result).Inc()
}

// RecordBatchJob records a batch job reaching status.
func RecordBatchJob(status string) {
	BatchJobsTotal.WithLabelValues(status).Inc()
}

// RecordNotification records a breaking notification attempt.
func RecordNotification(result string) {
	NotificationsTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
