package classification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"classifier_server/core/domain"
	"classifier_server/pkg/logger"
	"classifier_server/pkg/metrics"
)

// =============================================================================
// Classification Engine
// =============================================================================

const (
	defaultConfidence = 0.5
	minConfidence     = 0.5
	maxConfidence     = 0.95

	maxReasoningKeywords = 3
)

const noMatchReasoning = "No specific patterns matched, defaulting to Personal"

// Classifier composes the keyword rule table with the learned pattern store.
// It implements in.ClassifierService.
type Classifier struct {
	rules *KeywordTable
	store *LearnedPatternStore
	log   *logger.Logger
}

// NewClassifier creates a classifier over store. A nil store learns in memory only.
func NewClassifier(store *LearnedPatternStore, log *logger.Logger) *Classifier {
	if store == nil {
		store = NewLearnedPatternStore(nil, nil)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Classifier{
		rules: defaultKeywordTable,
		store: store,
		log:   log,
	}
}

// Store returns the learned pattern store.
func (c *Classifier) Store() *LearnedPatternStore {
	return c.store
}

// LoadLearnedPatterns restores persisted patterns. Failures leave the affected
// categories empty and are only logged.
func (c *Classifier) LoadLearnedPatterns(ctx context.Context) {
	if err := c.store.Load(ctx); err != nil {
		metrics.RecordPersistError("load")
		c.log.WithContext(ctx).WithError(err).Warn("Failed to load learned patterns")
		return
	}
	if c.store.Persistent() {
		c.log.WithContext(ctx).Info("Loaded learned patterns")
	}
}

// categoryScore is one category's keyword score.
type categoryScore struct {
	category domain.Category
	score    float64
	matches  []string
}

// normalize lowercases and trims the app name and the "title body" content.
func normalize(appName, title, body string) (string, string) {
	return strings.ToLower(strings.TrimSpace(appName)),
		strings.TrimSpace(strings.ToLower(title + " " + body))
}

// Classify assigns a category to a notification. It never fails.
func (c *Classifier) Classify(ctx context.Context, appName, title, body string) *domain.ClassificationResult {
	start := time.Now()
	app, content := normalize(appName, title, body)

	// Learned patterns take priority over keyword scoring
	if match, ok := c.store.Lookup(app, content); ok {
		metrics.RecordClassification(string(match.Category), metrics.SourceLearned, time.Since(start))
		return &domain.ClassificationResult{
			Category:        match.Category,
			Confidence:      match.Confidence,
			Reasoning:       fmt.Sprintf("Learned from user feedback: %s → %s", match.Token, match.Category),
			MatchedKeywords: []string{match.Token},
		}
	}

	scores := c.scoreAll(app, content)
	best, second := scores[0], scores[1]

	if best.score == 0 {
		metrics.RecordClassification(string(domain.CategoryPersonal), metrics.SourceDefault, time.Since(start))
		return &domain.ClassificationResult{
			Category:        domain.CategoryPersonal,
			Confidence:      defaultConfidence,
			Reasoning:       noMatchReasoning,
			MatchedKeywords: []string{},
		}
	}

	confidence := clamp((best.score-second.score)/max(best.score, 1.0), minConfidence, maxConfidence)

	metrics.RecordClassification(string(best.category), metrics.SourceKeyword, time.Since(start))
	c.log.WithContext(ctx).Debug("Classified %q as %s (score %.1f vs %.1f)", app, best.category, best.score, second.score)

	return &domain.ClassificationResult{
		Category:        best.category,
		Confidence:      confidence,
		Reasoning:       buildReasoning(best.category, best.matches, app),
		MatchedKeywords: best.matches,
	}
}

// scoreAll scores every profile and ranks them by score, descending.
// Equal scores keep category order.
func (c *Classifier) scoreAll(app, content string) []categoryScore {
	profiles := c.rules.Profiles()
	scores := make([]categoryScore, len(profiles))
	for i, p := range profiles {
		score, matches := p.Score(app, content)
		scores[i] = categoryScore{category: p.Category, score: score, matches: matches}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})
	return scores
}

// buildReasoning describes which kinds of rules matched.
func buildReasoning(category domain.Category, matches []string, appName string) string {
	var apps, keywords, patterns []string
	for _, m := range matches {
		switch {
		case strings.HasPrefix(m, matchPrefixApp):
			apps = append(apps, strings.TrimPrefix(m, matchPrefixApp))
		case strings.HasPrefix(m, matchPrefixKeyword):
			keywords = append(keywords, strings.TrimPrefix(m, matchPrefixKeyword))
		case strings.HasPrefix(m, matchPrefixPattern):
			patterns = append(patterns, strings.TrimPrefix(m, matchPrefixPattern))
		}
	}

	var reasons []string
	if len(apps) > 0 {
		reasons = append(reasons, fmt.Sprintf("app '%s' matches %s apps", appName, category.Lower()))
	}
	if len(keywords) > 0 {
		if len(keywords) > maxReasoningKeywords {
			keywords = keywords[:maxReasoningKeywords]
		}
		reasons = append(reasons, fmt.Sprintf("contains %s keywords: %s", category.Lower(), strings.Join(keywords, ", ")))
	}
	if len(patterns) > 0 {
		reasons = append(reasons, fmt.Sprintf("matches %s patterns", category.Lower()))
	}

	if len(reasons) == 0 {
		return fmt.Sprintf("Classified as %s based on general patterns", category)
	}
	return fmt.Sprintf("Classified as %s: %s", category, strings.Join(reasons, "; "))
}

// LearnFromFeedback applies a user correction. Persistence failures are logged, not returned.
func (c *Classifier) LearnFromFeedback(ctx context.Context, feedback *domain.FeedbackEvent) {
	if feedback == nil {
		return
	}
	app, content := normalize(feedback.AppName, feedback.Title, feedback.Body)
	log := c.log.WithContext(ctx)

	err := c.store.ApplyFeedback(ctx, app, content, feedback.ActualCategory)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidCategory):
		log.WithError(err).Warn("Ignoring feedback with invalid category")
		return
	default:
		metrics.RecordPersistError("save")
		log.WithError(err).Warn("Failed to save learned patterns")
	}

	metrics.RecordFeedback(string(feedback.ActualCategory))
	log.WithFields(map[string]any{
		"predicted": string(feedback.PredictedCategory),
		"actual":    string(feedback.ActualCategory),
	}).Info("Learned from feedback: %s → %s", app, feedback.ActualCategory)
}

// GetCategoryStats reports what has been learned per category.
func (c *Classifier) GetCategoryStats() map[domain.Category]*domain.CategoryStats {
	return c.store.Stats()
}

// ResetLearnedPatterns clears learned patterns in memory and in the cache.
func (c *Classifier) ResetLearnedPatterns(ctx context.Context) {
	log := c.log.WithContext(ctx)
	if err := c.store.Reset(ctx); err != nil {
		metrics.RecordPersistError("delete")
		log.WithError(err).Warn("Failed to reset learned patterns")
	}
	log.Info("Reset all learned patterns")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
