package classification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"classifier_server/core/domain"
	"classifier_server/core/port/out"
)

// =============================================================================
// Learned Pattern Store
// =============================================================================

const (
	// learnedOverrideThreshold: a learned token overrides keyword scoring above this.
	learnedOverrideThreshold = 0.7

	initialConfidence = 0.5

	appConfidenceStep     = 0.1
	appConfidenceCeiling  = 0.95
	contentConfidenceStep = 0.05
	contentConfidenceCeil = 0.90

	// Feedback learns from at most this many content tokens.
	maxFeedbackTokens = 5
	minTokenRunes     = 3 // extracted tokens
	minLearnedRunes   = 4 // tokens actually stored

	topAppsLimit    = 5
	topContentLimit = 10

	epochKeySuffix = "epoch"
)

// ErrPersistence wraps every pattern cache failure returned by the store.
var ErrPersistence = errors.New("learned pattern persistence failed")

// wordRun matches maximal runs of word characters (letters, digits, underscore).
var wordRun = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// LearnedMatch is a learned-pattern hit that overrides keyword scoring.
type LearnedMatch struct {
	Category   domain.Category
	Confidence float64
	Token      string
	Track      string // domain.TrackApps or domain.TrackContent
}

// LearnedStoreConfig configures persistence of learned patterns.
type LearnedStoreConfig struct {
	KeyPrefix string        // Default: "learned_patterns:"
	TTL       time.Duration // Default: 30 days, refreshed on every save
	Logger    zerolog.Logger
}

// DefaultLearnedStoreConfig returns the default configuration.
func DefaultLearnedStoreConfig() *LearnedStoreConfig {
	return &LearnedStoreConfig{
		KeyPrefix: "learned_patterns:",
		TTL:       30 * 24 * time.Hour,
		Logger:    zerolog.Nop(),
	}
}

// LearnedPatternStore holds per-category learned tokens.
//
// mu guards patterns and epoch. persistMu serializes every mutation together with
// its cache round trip, so saves land in mutation order; it is always taken before mu.
//
// Several processes may share one cache. Each save reads the stored payloads, folds
// them into the local table (highest confidence per token), applies the feedback on
// top and writes the result back. A reset bumps the epoch key so other processes drop
// their stale tables instead of writing them back.
type LearnedPatternStore struct {
	mu        sync.RWMutex
	persistMu sync.Mutex
	patterns  map[domain.Category]*domain.LearnedPatterns
	epoch     int64 // last reset generation seen in the cache

	cache     out.PatternCache // nil: in-memory only
	keyPrefix string
	ttl       time.Duration
	log       zerolog.Logger
}

// NewLearnedPatternStore creates an empty store. Call Load to restore persisted patterns.
func NewLearnedPatternStore(cache out.PatternCache, cfg *LearnedStoreConfig) *LearnedPatternStore {
	def := DefaultLearnedStoreConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}

	return &LearnedPatternStore{
		patterns:  emptyPatternTable(),
		cache:     cache,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		log:       cfg.Logger,
	}
}

func emptyPatternTable() map[domain.Category]*domain.LearnedPatterns {
	table := make(map[domain.Category]*domain.LearnedPatterns, len(domain.Categories))
	for _, c := range domain.Categories {
		table[c] = domain.NewLearnedPatterns()
	}
	return table
}

func cloneTable(table map[domain.Category]*domain.LearnedPatterns) map[domain.Category]*domain.LearnedPatterns {
	out := make(map[domain.Category]*domain.LearnedPatterns, len(table))
	for c, p := range table {
		out[c] = p.Clone()
	}
	return out
}

// Key returns the cache key for category.
func (s *LearnedPatternStore) Key(category domain.Category) string {
	return s.keyPrefix + string(category)
}

// EpochKey returns the cache key holding the reset generation.
func (s *LearnedPatternStore) EpochKey() string {
	return s.keyPrefix + epochKeySuffix
}

func (s *LearnedPatternStore) keys() []string {
	keys := make([]string, 0, len(domain.Categories)+1)
	for _, c := range domain.Categories {
		keys = append(keys, s.Key(c))
	}
	return append(keys, s.EpochKey())
}

// Persistent reports whether a cache is attached.
func (s *LearnedPatternStore) Persistent() bool {
	return s.cache != nil
}

// Load restores patterns from the cache. Missing keys leave a category empty;
// unreadable or corrupt keys also leave it empty and are reported in the returned error.
func (s *LearnedPatternStore) Load(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	loaded := emptyPatternTable()
	var errs []error

	for _, category := range domain.Categories {
		key := s.Key(category)
		data, err := s.cache.Get(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: load %s: %v", ErrPersistence, key, err))
			continue
		}
		if len(data) == 0 {
			continue
		}

		patterns, err := decodePatterns(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: decode %s: %v", ErrPersistence, key, err))
			continue
		}
		loaded[category] = patterns

		s.log.Debug().
			Str("key", key).
			Int("apps", patterns.Apps.Len()).
			Int("content", patterns.Content.Len()).
			Msg("loaded learned patterns")
	}

	var epoch int64
	if data, err := s.cache.Get(ctx, s.EpochKey()); err != nil {
		errs = append(errs, fmt.Errorf("%w: load %s: %v", ErrPersistence, s.EpochKey(), err))
	} else {
		epoch = parseEpoch(data)
	}

	s.mu.Lock()
	s.patterns = loaded
	s.epoch = epoch
	s.mu.Unlock()

	return errors.Join(errs...)
}

func decodePatterns(data []byte) (*domain.LearnedPatterns, error) {
	patterns := domain.NewLearnedPatterns()
	if err := json.Unmarshal(data, patterns); err != nil {
		return nil, err
	}
	patterns.Apps.Clamp(0, appConfidenceCeiling)
	patterns.Content.Clamp(0, contentConfidenceCeil)
	return patterns, nil
}

func parseEpoch(data []byte) int64 {
	if len(data) == 0 {
		return 0
	}
	epoch, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return epoch
}

// Lookup returns the first learned override in category order.
// Within a category an exact app match is checked before content substrings.
// appName and content must already be normalized.
func (s *LearnedPatternStore) Lookup(appName, content string) (*LearnedMatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, category := range domain.Categories {
		patterns := s.patterns[category]

		if conf, ok := patterns.Apps.Get(appName); ok && conf > learnedOverrideThreshold {
			return &LearnedMatch{Category: category, Confidence: conf, Token: appName, Track: domain.TrackApps}, true
		}

		var hit *LearnedMatch
		patterns.Content.Each(func(token string, conf float64) bool {
			if conf > learnedOverrideThreshold && strings.Contains(content, token) {
				hit = &LearnedMatch{Category: category, Confidence: conf, Token: token, Track: domain.TrackContent}
				return false
			}
			return true
		})
		if hit != nil {
			return hit, true
		}
	}

	return nil, false
}

// ApplyFeedback raises confidence for appName and the leading content tokens under category,
// then persists all categories. The in-memory update is kept even when the returned
// persistence error is non-nil, and is folded into the cache by the next successful save.
func (s *LearnedPatternStore) ApplyFeedback(ctx context.Context, appName, content string, category domain.Category) error {
	if !category.IsValid() {
		return &domain.InvalidCategoryError{Value: string(category)}
	}
	tokens := ExtractContentTokens(content)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.cache == nil {
		s.mu.Lock()
		applyFeedback(s.patterns[category], appName, tokens)
		s.mu.Unlock()
		return nil
	}

	s.mu.RLock()
	local := cloneTable(s.patterns)
	localEpoch := s.epoch
	s.mu.RUnlock()

	var (
		merged      map[domain.Category]*domain.LearnedPatterns
		mergedEpoch int64
	)
	err := s.update(ctx, func(current map[string][]byte) (map[string][]byte, error) {
		merged, mergedEpoch = s.mergeRemote(current, local, localEpoch)
		applyFeedback(merged[category], appName, tokens)
		return s.encode(merged, mergedEpoch)
	})
	if err != nil {
		s.mu.Lock()
		applyFeedback(s.patterns[category], appName, tokens)
		s.mu.Unlock()
		return fmt.Errorf("%w: save: %v", ErrPersistence, err)
	}

	s.mu.Lock()
	s.patterns = merged
	s.epoch = mergedEpoch
	s.mu.Unlock()
	return nil
}

// mergeRemote builds the table a save starts from: the stored payloads with the local
// table folded in. When another process reset the store since this one last synced,
// the local table is stale and only the stored payloads count.
func (s *LearnedPatternStore) mergeRemote(current map[string][]byte, local map[domain.Category]*domain.LearnedPatterns, localEpoch int64) (map[domain.Category]*domain.LearnedPatterns, int64) {
	remoteEpoch := parseEpoch(current[s.EpochKey()])
	table := emptyPatternTable()

	for _, category := range domain.Categories {
		key := s.Key(category)
		if data := current[key]; len(data) > 0 {
			remote, err := decodePatterns(data)
			if err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("overwriting corrupt learned patterns")
			} else {
				table[category] = remote
			}
		}
		if remoteEpoch == localEpoch {
			table[category].MergeMax(local[category])
		}
	}

	if remoteEpoch != localEpoch {
		s.log.Info().
			Int64("local_epoch", localEpoch).
			Int64("remote_epoch", remoteEpoch).
			Msg("learned patterns were reset elsewhere, dropping local table")
	}
	return table, remoteEpoch
}

func applyFeedback(patterns *domain.LearnedPatterns, appName string, tokens []string) {
	if appName != "" {
		current, ok := patterns.Apps.Get(appName)
		if !ok {
			current = initialConfidence
		}
		patterns.Apps.Set(appName, minFloat(appConfidenceCeiling, current+appConfidenceStep))
	}

	for _, token := range tokens {
		current, ok := patterns.Content.Get(token)
		if !ok {
			current = initialConfidence
		}
		patterns.Content.Set(token, minFloat(contentConfidenceCeil, current+contentConfidenceStep))
	}
}

// ExtractContentTokens returns the tokens feedback learns from: the first five
// word runs of at least three characters, keeping only those longer than three.
func ExtractContentTokens(content string) []string {
	var candidates []string
	for _, run := range wordRun.FindAllString(content, -1) {
		if utf8.RuneCountInString(run) >= minTokenRunes {
			candidates = append(candidates, run)
			if len(candidates) == maxFeedbackTokens {
				break
			}
		}
	}

	tokens := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if utf8.RuneCountInString(c) >= minLearnedRunes {
			tokens = append(tokens, c)
		}
	}
	return tokens
}

// Reset clears every learned pattern, deletes the persisted keys and bumps the epoch
// so other processes sharing the cache discard what they hold.
func (s *LearnedPatternStore) Reset(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.patterns = emptyPatternTable()
	s.mu.Unlock()

	if s.cache == nil {
		return nil
	}

	var epoch int64
	err := s.update(ctx, func(current map[string][]byte) (map[string][]byte, error) {
		epoch = parseEpoch(current[s.EpochKey()]) + 1
		next := map[string][]byte{s.EpochKey(): []byte(strconv.FormatInt(epoch, 10))}
		for _, category := range domain.Categories {
			next[s.Key(category)] = nil
		}
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("%w: reset: %v", ErrPersistence, err)
	}

	s.mu.Lock()
	s.epoch = epoch
	s.mu.Unlock()
	return nil
}

// Stats reports counts and the highest-confidence tokens per category.
// Ties keep insertion order (stable sort).
func (s *LearnedPatternStore) Stats() map[domain.Category]*domain.CategoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[domain.Category]*domain.CategoryStats, len(domain.Categories))
	for _, category := range domain.Categories {
		patterns := s.patterns[category]
		stats[category] = &domain.CategoryStats{
			LearnedApps:            patterns.Apps.Len(),
			LearnedContentPatterns: patterns.Content.Len(),
			TopApps:                topPatterns(&patterns.Apps, topAppsLimit),
			TopContentPatterns:     topPatterns(&patterns.Content, topContentLimit),
		}
	}
	return stats
}

func topPatterns(t *domain.TokenConfidences, limit int) []domain.PatternScore {
	entries := t.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Confidence > entries[j].Confidence
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// encode serializes every category plus the epoch.
func (s *LearnedPatternStore) encode(table map[domain.Category]*domain.LearnedPatterns, epoch int64) (map[string][]byte, error) {
	payloads := make(map[string][]byte, len(domain.Categories)+1)
	for _, category := range domain.Categories {
		data, err := json.Marshal(table[category])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", category, err)
		}
		payloads[s.Key(category)] = data
	}
	payloads[s.EpochKey()] = []byte(strconv.FormatInt(epoch, 10))
	return payloads, nil
}

// update runs fn over every store key. Caches implementing out.PatternUpdater do it
// atomically; plain caches get a read then write, which is only safe for one process.
// Caller holds persistMu.
func (s *LearnedPatternStore) update(ctx context.Context, fn func(map[string][]byte) (map[string][]byte, error)) error {
	keys := s.keys()
	if u, ok := s.cache.(out.PatternUpdater); ok {
		return u.Update(ctx, keys, s.ttl, fn)
	}

	current := make(map[string][]byte, len(keys))
	for _, key := range keys {
		data, err := s.cache.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		current[key] = data
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	var errs []error
	for _, key := range keys {
		value, ok := next[key]
		switch {
		case !ok:
			continue
		case value == nil:
			err = s.cache.Delete(ctx, key)
		default:
			err = s.cache.SetWithTTL(ctx, key, value, s.ttl)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
