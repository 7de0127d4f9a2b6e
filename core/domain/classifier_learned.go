package domain

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Pattern tracks
const (
	TrackApps    = "apps"
	TrackContent = "content"
)

// TokenConfidences maps learned tokens to confidence values and remembers
// insertion order, which drives lookup order and stats tie-breaking.
// The zero value is ready to use.
type TokenConfidences struct {
	order  []string
	values map[string]float64
}

// Get returns the confidence for token.
func (t *TokenConfidences) Get(token string) (float64, bool) {
	v, ok := t.values[token]
	return v, ok
}

// Set stores a confidence. New tokens are appended to the iteration order.
func (t *TokenConfidences) Set(token string, confidence float64) {
	if t.values == nil {
		t.values = make(map[string]float64)
	}
	if _, ok := t.values[token]; !ok {
		t.order = append(t.order, token)
	}
	t.values[token] = confidence
}

// Len returns the number of learned tokens.
func (t *TokenConfidences) Len() int {
	return len(t.order)
}

// Entries returns a copy of all tokens in insertion order.
func (t *TokenConfidences) Entries() []PatternScore {
	out := make([]PatternScore, len(t.order))
	for i, token := range t.order {
		out[i] = PatternScore{Token: token, Confidence: t.values[token]}
	}
	return out
}

// Each calls fn in insertion order until fn returns false.
func (t *TokenConfidences) Each(fn func(token string, confidence float64) bool) {
	for _, token := range t.order {
		if !fn(token, t.values[token]) {
			return
		}
	}
}

// Clone returns an independent copy.
func (t *TokenConfidences) Clone() TokenConfidences {
	var c TokenConfidences
	t.Each(func(token string, confidence float64) bool {
		c.Set(token, confidence)
		return true
	})
	return c
}

// MergeMax folds other into t keeping the higher confidence per token.
// Tokens t does not have are appended in other's order.
func (t *TokenConfidences) MergeMax(other *TokenConfidences) {
	other.Each(func(token string, confidence float64) bool {
		if current, ok := t.Get(token); !ok || confidence > current {
			t.Set(token, confidence)
		}
		return true
	})
}

// Clamp forces every value into [lo, hi].
func (t *TokenConfidences) Clamp(lo, hi float64) {
	for token, v := range t.values {
		switch {
		case v < lo:
			t.values[token] = lo
		case v > hi:
			t.values[token] = hi
		}
	}
}

type tokenEntry struct {
	Token      string  `json:"token"`
	Confidence float64 `json:"confidence"`
}

// MarshalJSON encodes the table as an ordered list of {token, confidence}.
func (t TokenConfidences) MarshalJSON() ([]byte, error) {
	entries := make([]tokenEntry, len(t.order))
	for i, token := range t.order {
		entries[i] = tokenEntry{Token: token, Confidence: t.values[token]}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON accepts the ordered list form and the legacy {token: confidence}
// object form. Object keys are read in document order.
func (t *TokenConfidences) UnmarshalJSON(data []byte) error {
	*t = TokenConfidences{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '[':
		var entries []tokenEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			t.Set(e.Token, e.Confidence)
		}
	case '{':
		return t.decodeObject(trimmed)
	default:
		return fmt.Errorf("token confidences: unexpected json %q", trimmed[:1])
	}
	return nil
}

func (t *TokenConfidences) decodeObject(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil { // {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		token, ok := tok.(string)
		if !ok {
			return fmt.Errorf("token confidences: unexpected key %v", tok)
		}
		var confidence float64
		if err := dec.Decode(&confidence); err != nil {
			return fmt.Errorf("token confidences: %s: %w", token, err)
		}
		t.Set(token, confidence)
	}
	_, err := dec.Token() // }
	return err
}

// LearnedPatterns holds the learned apps and content tokens for one category.
type LearnedPatterns struct {
	Apps    TokenConfidences `json:"apps"`
	Content TokenConfidences `json:"content"`
}

// NewLearnedPatterns returns an empty pattern set.
func NewLearnedPatterns() *LearnedPatterns {
	return &LearnedPatterns{}
}

// Clone returns an independent copy.
func (p *LearnedPatterns) Clone() *LearnedPatterns {
	return &LearnedPatterns{Apps: p.Apps.Clone(), Content: p.Content.Clone()}
}

// MergeMax folds other into p track by track.
func (p *LearnedPatterns) MergeMax(other *LearnedPatterns) {
	p.Apps.MergeMax(&other.Apps)
	p.Content.MergeMax(&other.Content)
}
