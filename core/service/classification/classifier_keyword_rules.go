// Package classification implements keyword-based notification classification
// with learning from user feedback.
//
// Classification order:
//
//	1. Learned patterns (user feedback)  → priority override, first hit wins
//	2. Keyword rule table                → score every category, highest wins
//	3. Nothing matched                   → Personal at 0.5
package classification

import (
	"regexp"
	"strings"

	"classifier_server/core/domain"
)

// =============================================================================
// Keyword Rule Table
// =============================================================================

// Match weights
const (
	appMatchWeight     = 3.0
	keywordMatchWeight = 1.0
	patternMatchWeight = 2.0
	domainMatchWeight  = 1.5
)

// Match tag prefixes recorded in matched keywords.
const (
	matchPrefixApp     = "app:"
	matchPrefixKeyword = "keyword:"
	matchPrefixPattern = "pattern:"
	matchPrefixDomain  = "domain:"
)

// keywordPattern keeps the source text for match tags next to the compiled regex.
type keywordPattern struct {
	source string
	re     *regexp.Regexp
}

// KeywordProfile is the static rule set of one category. Immutable after construction.
type KeywordProfile struct {
	Category domain.Category
	Apps     []string
	Content  []string
	Domains  []string
	patterns []keywordPattern
}

// Patterns returns the regex sources in match order.
func (p *KeywordProfile) Patterns() []string {
	out := make([]string, len(p.patterns))
	for i, kp := range p.patterns {
		out[i] = kp.source
	}
	return out
}

// Score accumulates every app, content, pattern and domain match.
// appName and content must already be lowercased.
func (p *KeywordProfile) Score(appName, content string) (float64, []string) {
	var score float64
	var matches []string

	// App names (substring of the app name)
	for _, app := range p.Apps {
		if strings.Contains(appName, app) {
			score += appMatchWeight
			matches = append(matches, matchPrefixApp+app)
		}
	}

	// Content keywords
	for _, keyword := range p.Content {
		if strings.Contains(content, keyword) {
			score += keywordMatchWeight
			matches = append(matches, matchPrefixKeyword+keyword)
		}
	}

	// Regex patterns (case-insensitive, unanchored)
	for _, kp := range p.patterns {
		if kp.re.MatchString(content) {
			score += patternMatchWeight
			matches = append(matches, matchPrefixPattern+kp.source)
		}
	}

	// Domains
	for _, d := range p.Domains {
		if strings.Contains(content, d) {
			score += domainMatchWeight
			matches = append(matches, matchPrefixDomain+d)
		}
	}

	return score, matches
}

// KeywordTable holds one profile per category in domain.Categories order.
type KeywordTable struct {
	profiles []*KeywordProfile
}

// Profiles returns the profiles in category order.
func (t *KeywordTable) Profiles() []*KeywordProfile {
	return t.profiles
}

// Profile returns the profile for category, or nil.
func (t *KeywordTable) Profile(category domain.Category) *KeywordProfile {
	for _, p := range t.profiles {
		if p.Category == category {
			return p
		}
	}
	return nil
}

func compilePatterns(sources ...string) []keywordPattern {
	out := make([]keywordPattern, len(sources))
	for i, src := range sources {
		out[i] = keywordPattern{source: src, re: regexp.MustCompile("(?i)" + src)}
	}
	return out
}

// defaultKeywordTable is built once at package init and shared read-only.
var defaultKeywordTable = NewDefaultKeywordTable()

// NewDefaultKeywordTable builds the built-in Work / Personal / Junk profiles.
func NewDefaultKeywordTable() *KeywordTable {
	work := &KeywordProfile{
		Category: domain.CategoryWork,
		Apps: []string{
			"slack", "teams", "microsoft teams", "outlook", "gmail", "email",
			"zoom", "webex", "skype", "calendar", "jira", "confluence",
			"trello", "asana", "notion", "monday", "salesforce", "hubspot",
			"office", "excel", "word", "powerpoint", "sharepoint",
			"linkedin", "workday", "bamboohr", "zendesk", "freshdesk",
		},
		Content: []string{
			"meeting", "conference", "deadline", "project", "task",
			"client", "customer", "report", "presentation", "document",
			"schedule", "appointment", "colleague", "team", "manager",
			"office", "work", "business", "professional", "corporate",
			"invoice", "contract", "proposal", "budget", "quarterly",
			"standup", "scrum", "sprint", "deployment", "release",
			"urgent", "asap", "priority", "escalation", "incident",
		},
		Domains: []string{
			"company.com", "corp.com", "enterprise.com", "business.com",
			"work.com", "office.com", "team.com",
		},
	}

	personal := &KeywordProfile{
		Category: domain.CategoryPersonal,
		Apps: []string{
			"whatsapp", "telegram", "signal", "messenger", "imessage",
			"instagram", "facebook", "twitter", "snapchat", "tiktok",
			"youtube", "spotify", "netflix", "amazon", "uber", "lyft",
			"maps", "weather", "news", "reddit", "discord", "twitch",
			"banking", "bank", "paypal", "venmo", "cashapp", "zelle",
			"fitness", "health", "calendar", "photos", "camera",
		},
		Content: []string{
			"friend", "family", "mom", "dad", "brother", "sister",
			"birthday", "anniversary", "vacation", "holiday", "weekend",
			"dinner", "lunch", "coffee", "movie", "game", "party",
			"personal", "private", "home", "house", "apartment",
			"love", "miss", "care", "thanks", "congratulations",
			"reminder", "appointment", "doctor", "dentist", "gym",
			"workout", "exercise", "recipe", "cooking", "shopping",
		},
	}

	junk := &KeywordProfile{
		Category: domain.CategoryJunk,
		Apps: []string{
			"marketing", "promo", "deals", "offers", "shopping",
			"retail", "store", "mall", "advertisement", "ad",
			"spam", "newsletter", "subscription", "promotion",
		},
		Content: []string{
			"sale", "discount", "offer", "deal", "promotion", "coupon",
			"limited time", "buy now", "shop", "free shipping", "% off",
			"unsubscribe", "marketing", "newsletter", "advertisement",
			"click here", "act now", "hurry", "expires", "last chance",
			"winner", "congratulations", "prize", "lottery", "jackpot",
			"free", "bonus", "reward", "cashback", "refund",
			"viagra", "casino", "gambling", "loan", "credit",
			"weight loss", "diet", "supplement", "miracle",
		},
		patterns: compilePatterns(
			`\d+%\s*off`,            // "50% off", "25% OFF"
			`free\s+shipping`,       // "free shipping"
			`buy\s+\d+\s+get\s+\d+`, // "buy 1 get 1"
			`\$\d+\.\d{2}`,          // "$19.99"
			`limited\s+time`,        // "limited time"
			`act\s+now`,             // "act now"
			`click\s+here`,          // "click here"
		),
	}

	return &KeywordTable{profiles: []*KeywordProfile{work, personal, junk}}
}
