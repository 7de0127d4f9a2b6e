package domain

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ClassificationResult is produced fresh for every classify call.
type ClassificationResult struct {
	Category        Category `json:"category"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// FeedbackEvent is a user correction. Only its effect on learned patterns outlives the call.
type FeedbackEvent struct {
	AppName           string
	Title             string
	Body              string
	PredictedCategory Category
	ActualCategory    Category
	Timestamp         time.Time
}

// PatternScore is a learned token with its confidence.
// It encodes as a [token, confidence] pair.
type PatternScore struct {
	Token      string
	Confidence float64
}

func (p PatternScore) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Token, p.Confidence})
}

func (p *PatternScore) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("pattern score: expected [token, confidence], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.Token); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &p.Confidence)
}

// CategoryStats summarizes what has been learned for one category.
type CategoryStats struct {
	LearnedApps            int            `json:"learned_apps"`
	LearnedContentPatterns int            `json:"learned_content_patterns"`
	TopApps                []PatternScore `json:"top_apps"`
	TopContentPatterns     []PatternScore `json:"top_content_patterns"`
}
