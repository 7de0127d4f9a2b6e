package out

import (
	"context"
	"time"
)

// ClassifyJob asks the worker to classify one notification.
type ClassifyJob struct {
	NotificationID string `json:"notification_id"`
	AppName        string `json:"app_name"`
	Title          string `json:"title"`
	Body           string `json:"body"`
}

// FeedbackJob carries a user correction. Categories stay raw strings until the worker parses them.
type FeedbackJob struct {
	AppName           string     `json:"app_name"`
	Title             string     `json:"title"`
	Body              string     `json:"body"`
	PredictedCategory string     `json:"predicted_category"`
	ActualCategory    string     `json:"actual_category"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
}

// ClassifiedEvent is published after an asynchronous classification.
type ClassifiedEvent struct {
	NotificationID  string    `json:"notification_id"`
	Category        string    `json:"category"`
	Confidence      float64   `json:"confidence"`
	Reasoning       string    `json:"reasoning"`
	MatchedKeywords []string  `json:"matched_keywords"`
	ClassifiedAt    time.Time `json:"classified_at"`
}

// ClassificationPublisher delivers classification results downstream.
type ClassificationPublisher interface {
	PublishClassified(ctx context.Context, event *ClassifiedEvent) error
}
