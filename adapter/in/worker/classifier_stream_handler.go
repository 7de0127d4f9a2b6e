// Package worker turns stream messages into classifier service calls.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"classifier_server/adapter/out/messaging"
	"classifier_server/core/domain"
	"classifier_server/core/port/in"
	"classifier_server/core/port/out"
	"classifier_server/pkg/logger"
)

// ErrUnknownStream is returned for messages from a stream the handler does not serve.
var ErrUnknownStream = errors.New("unknown stream")

// StreamHandler implements messaging.JobHandler for the classifier streams.
type StreamHandler struct {
	service   in.ClassifierService
	publisher out.ClassificationPublisher
	log       *logger.Logger
	now       func() time.Time
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(service in.ClassifierService, publisher out.ClassificationPublisher, log *logger.Logger) *StreamHandler {
	if log == nil {
		log = logger.Default()
	}
	return &StreamHandler{
		service:   service,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Streams lists the streams this handler consumes.
func (h *StreamHandler) Streams() []string {
	return []string{messaging.StreamClassify, messaging.StreamFeedback}
}

// Handle dispatches one stream message. A returned error leaves the message pending for retry.
func (h *StreamHandler) Handle(ctx context.Context, stream string, data []byte) error {
	ctx = context.WithValue(ctx, logger.RequestIDKey, uuid.NewString())

	switch stream {
	case messaging.StreamClassify:
		return h.handleClassify(ctx, data)
	case messaging.StreamFeedback:
		return h.handleFeedback(ctx, data)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}
}

func (h *StreamHandler) handleClassify(ctx context.Context, data []byte) error {
	var job out.ClassifyJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("decode classify job: %w", err)
	}

	result := h.service.Classify(ctx, job.AppName, job.Title, job.Body)

	event := &out.ClassifiedEvent{
		NotificationID:  job.NotificationID,
		Category:        result.Category.String(),
		Confidence:      result.Confidence,
		Reasoning:       result.Reasoning,
		MatchedKeywords: result.MatchedKeywords,
		ClassifiedAt:    h.now().UTC(),
	}

	if h.publisher == nil {
		return nil
	}
	if err := h.publisher.PublishClassified(ctx, event); err != nil {
		return fmt.Errorf("publish classified %s: %w", job.NotificationID, err)
	}

	h.log.WithContext(ctx).Debug("Classified notification %s as %s", job.NotificationID, result.Category)
	return nil
}

func (h *StreamHandler) handleFeedback(ctx context.Context, data []byte) error {
	var job out.FeedbackJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("decode feedback job: %w", err)
	}

	event, err := toFeedbackEvent(&job, h.now())
	if err != nil {
		// Retrying cannot fix an unknown category
		h.log.WithContext(ctx).WithError(err).Warn("Dropping feedback for %q", job.AppName)
		return nil
	}

	h.service.LearnFromFeedback(ctx, event)
	return nil
}

func toFeedbackEvent(job *out.FeedbackJob, now time.Time) (*domain.FeedbackEvent, error) {
	predicted, err := domain.ParseCategory(job.PredictedCategory)
	if err != nil {
		return nil, err
	}
	actual, err := domain.ParseCategory(job.ActualCategory)
	if err != nil {
		return nil, err
	}

	event := &domain.FeedbackEvent{
		AppName:           job.AppName,
		Title:             job.Title,
		Body:              job.Body,
		PredictedCategory: predicted,
		ActualCategory:    actual,
		Timestamp:         now,
	}
	if job.Timestamp != nil {
		event.Timestamp = *job.Timestamp
	}
	return event, nil
}

var _ messaging.JobHandler = (*StreamHandler)(nil)
