/*
Package matcher scores inbound text against the pattern library.

Matching is a plain case-insensitive substring count: a keyword matches
anywhere in the text, including inside a longer word ("w9" matches
"w9s"). Each keyword counts at most once no matter how often it occurs.
*/
package matcher

import (
	"strings"

	"github.com/derek809/mailtriage/internal/storage"
)

// MatchResult describes the pattern selected for a piece of text.
type MatchResult struct {
	PatternName     string   `json:"pattern_name"`
	ConfidenceBoost int      `json:"confidence_boost"`
	MatchedKeywords []string `json:"matched_keywords"`
	MatchScore      int      `json:"match_score"`
}

// Match returns the pattern with the strictly highest keyword count, or nil
// when no pattern matches at least one keyword.
//
// Ties go to the pattern seen first, so callers should pass patterns in a
// stable order (repositories return them sorted by name).
func Match(text string, patterns []storage.Pattern) *MatchResult {
	if len(patterns) == 0 {
		return nil
	}

	lowered := strings.ToLower(text)

	var best *MatchResult
	for _, p := range patterns {
		matched := matchKeywords(lowered, p.Keywords)
		if len(matched) == 0 {
			continue
		}
		if best != nil && len(matched) <= best.MatchScore {
			continue
		}
		best = &MatchResult{
			PatternName:     p.Name,
			ConfidenceBoost: p.ConfidenceBoost,
			MatchedKeywords: matched,
			MatchScore:      len(matched),
		}
	}

	return best
}

// matchKeywords returns the keywords found in text, in keyword order.
// text must already be lowercased.
func matchKeywords(text string, keywords []string) []string {
	var matched []string
	seen := make(map[string]struct{}, len(keywords))

	for _, kw := range keywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if _, dup := seen[needle]; dup {
			continue
		}
		seen[needle] = struct{}{}

		if strings.Contains(text, needle) {
			matched = append(matched, kw)
		}
	}

	return matched
}

// BuildText joins the non-empty parts of a message (subject, body, operator
// instruction) into the lowercased text that Match expects.
func BuildText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		kept = append(kept, part)
	}
	return strings.ToLower(strings.Join(kept, "\n"))
}
