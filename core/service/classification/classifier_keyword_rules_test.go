package classification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classifier_server/core/domain"
)

func TestDefaultKeywordTable_Order(t *testing.T) {
	table := NewDefaultKeywordTable()

	profiles := table.Profiles()
	require.Len(t, profiles, len(domain.Categories))
	for i, c := range domain.Categories {
		assert.Equal(t, c, profiles[i].Category)
		assert.Same(t, profiles[i], table.Profile(c))
	}
	assert.Nil(t, table.Profile("Other"))

	assert.Empty(t, table.Profile(domain.CategoryWork).Patterns())
	assert.Empty(t, table.Profile(domain.CategoryPersonal).Domains)
	assert.Len(t, table.Profile(domain.CategoryJunk).Patterns(), 7)
}

func TestKeywordProfile_Score(t *testing.T) {
	table := NewDefaultKeywordTable()

	tests := []struct {
		name        string
		category    domain.Category
		appName     string
		content     string
		wantScore   float64
		wantMatches []string
	}{
		{
			name:      "work app and keywords in list order",
			category:  domain.CategoryWork,
			appName:   "slack",
			content:   "team meeting standup after lunch",
			wantScore: 6,
			wantMatches: []string{
				"app:slack", "keyword:meeting", "keyword:team", "keyword:standup",
			},
		},
		{
			name:        "personal keyword",
			category:    domain.CategoryPersonal,
			appName:     "slack",
			content:     "team meeting standup after lunch",
			wantScore:   1,
			wantMatches: []string{"keyword:lunch"},
		},
		{
			name:        "app names match as substrings",
			category:    domain.CategoryPersonal,
			appName:     "banking",
			content:     "",
			wantScore:   6,
			wantMatches: []string{"app:banking", "app:bank"},
		},
		{
			name:      "junk patterns follow keywords",
			category:  domain.CategoryJunk,
			appName:   "shopping app",
			content:   "50% off sale! limited time offer",
			wantScore: 11,
			wantMatches: []string{
				"app:shopping",
				"keyword:sale", "keyword:offer", "keyword:limited time", "keyword:% off",
				`pattern:\d+%\s*off`, `pattern:limited\s+time`,
			},
		},
		{
			name:        "domains score last",
			category:    domain.CategoryWork,
			appName:     "",
			content:     "contact admin@company.com",
			wantScore:   1.5,
			wantMatches: []string{"domain:company.com"},
		},
		{
			name:      "nothing matches",
			category:  domain.CategoryJunk,
			appName:   "",
			content:   "",
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, matches := table.Profile(tt.category).Score(tt.appName, tt.content)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantMatches, matches)
		})
	}
}

func TestKeywordProfile_PatternsIgnoreCase(t *testing.T) {
	junk := NewDefaultKeywordTable().Profile(domain.CategoryJunk)

	score, matches := junk.Score("", "ACT   NOW")
	assert.Equal(t, patternMatchWeight, score)
	assert.Equal(t, []string{`pattern:act\s+now`}, matches)

	score, matches = junk.Score("", "only $19.99 today")
	assert.Equal(t, patternMatchWeight, score)
	assert.Equal(t, []string{`pattern:\$\d+\.\d{2}`}, matches)
}
