// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Classification sources.
const (
	SourceLearned = "learned"
	SourceKeyword = "keyword"
	SourceDefault = "default"
)

var (
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_classifications_total",
			Help: "Total number of classified notifications",
		},
		[]string{"category", "source"},
	)

	ClassifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classifier_classify_duration_seconds",
			Help:    "Classification latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~80ms
		},
	)

	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_feedback_total",
			Help: "Total number of feedback events applied",
		},
		[]string{"actual_category"},
	)

	PatternPersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_pattern_persist_errors_total",
			Help: "Learned pattern persistence failures",
		},
		[]string{"operation"}, // load, save, delete
	)

	StreamMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_stream_messages_total",
			Help: "Stream messages handled by the worker",
		},
		[]string{"stream", "status"}, // processed, failed, dead_lettered
	)
)

// Stream message outcomes.
const (
	StreamStatusProcessed    = "processed"
	StreamStatusFailed       = "failed"
	StreamStatusDeadLettered = "dead_lettered"
)

// RecordClassification records a classification outcome and its latency.
func RecordClassification(category, source string, duration time.Duration) {
	ClassificationsTotal.WithLabelValues(category, source).Inc()
	ClassifyDuration.Observe(duration.Seconds())
}

// RecordFeedback counts an applied feedback event.
func RecordFeedback(actualCategory string) {
	FeedbackTotal.WithLabelValues(actualCategory).Inc()
}

// RecordPersistError counts a failed load/save/delete against the pattern cache.
func RecordPersistError(operation string) {
	PatternPersistErrors.WithLabelValues(operation).Inc()
}

// RecordStreamMessage counts a stream message outcome.
func RecordStreamMessage(stream, status string) {
	StreamMessagesTotal.WithLabelValues(stream, status).Inc()
}
