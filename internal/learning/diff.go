package learning

import (
	"math"
	"strings"

	"github.com/derek809/mailtriage/internal/storage"
)

// Outcome bands, as lower bounds on the edit percentage.
const (
	goodFrom      = 10.0
	needsWorkFrom = 30.0
	failureFrom   = 50.0
)

// EditPercentage is the token-level Levenshtein distance between draft and
// final, normalized by the longer token sequence and scaled to 0-100.
// Tokens are whitespace-separated words. Two empty texts are 0% apart.
func EditPercentage(draft, final string) float64 {
	a := strings.Fields(draft)
	b := strings.Fields(final)

	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}

	dist := tokenDistance(a, b)
	pct := float64(dist) / float64(longest) * 100
	return math.Round(pct*100) / 100
}

// tokenDistance is the classic two-row Levenshtein DP over token slices.
func tokenDistance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// Classify maps an edit percentage to its outcome band.
// Bands are lower-inclusive: [0,10) success, [10,30) good, [30,50) needs_work, [50,100] failure.
func Classify(pct float64) storage.Outcome {
	switch {
	case pct < goodFrom:
		return storage.OutcomeSuccess
	case pct < needsWorkFrom:
		return storage.OutcomeGood
	case pct < failureFrom:
		return storage.OutcomeNeedsWork
	default:
		return storage.OutcomeFailure
	}
}

// Evaluate computes the edit percentage and outcome for a sent reply.
// An empty final text for a non-empty draft is always a major failure at 100%.
func Evaluate(draft, final string) (float64, storage.Outcome) {
	if strings.TrimSpace(final) == "" && strings.TrimSpace(draft) != "" {
		return 100, storage.OutcomeMajorFailure
	}

	pct := EditPercentage(draft, final)
	return pct, Classify(pct)
}
