// Package confidence turns a match result and contextual signals into a
// bounded 0-100 confidence, and maps that number to a review policy.
package confidence

import "github.com/derek809/mailtriage/internal/matcher"

const (
	// Base is the starting confidence before any signal is applied.
	Base = 50

	knownSenderBonus     = 10
	unknownSenderPenalty = 10
	auxDataBonus         = 15

	Min = 0
	Max = 100
)

// Score combines the match boost with sender and enrichment signals.
// m may be nil when nothing matched.
func Score(m *matcher.MatchResult, senderKnown, auxDataFound bool) int {
	score := Base

	if m != nil {
		score += m.ConfidenceBoost
	}

	if senderKnown {
		score += knownSenderBonus
	} else {
		score -= unknownSenderPenalty
	}

	if auxDataFound {
		score += auxDataBonus
	}

	return clamp(score)
}

func clamp(v int) int {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return v
}
