package in

import (
	"context"

	"classifier_server/core/domain"
)

// ClassifierService is the boundary exposed to the HTTP layer and the stream worker.
// None of its methods fail because of persistence problems.
type ClassifierService interface {
	Classify(ctx context.Context, appName, title, body string) *domain.ClassificationResult
	LearnFromFeedback(ctx context.Context, feedback *domain.FeedbackEvent)
	GetCategoryStats() map[domain.Category]*domain.CategoryStats
	ResetLearnedPatterns(ctx context.Context)
}
