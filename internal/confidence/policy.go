package confidence

// Policy is the human-review treatment a draft receives for its confidence.
type Policy string

const (
	PolicyAutoSuggest  Policy = "auto_suggest"  // >= 90
	PolicyDraftFlagged Policy = "draft_flagged" // 70-89
	PolicyDraftReview  Policy = "draft_review"  // 50-69
	PolicySummaryOnly  Policy = "summary_only"  // 30-49
	PolicyManual       Policy = "manual"        // < 30
)

// PolicyFor maps a confidence score to its review band.
func PolicyFor(score int) Policy {
	switch {
	case score >= 90:
		return PolicyAutoSuggest
	case score >= 70:
		return PolicyDraftFlagged
	case score >= 50:
		return PolicyDraftReview
	case score >= 30:
		return PolicySummaryOnly
	default:
		return PolicyManual
	}
}

// Drafts reports whether the policy produces a reply draft at all.
// Summary-only and manual items get no generated reply body.
func (p Policy) Drafts() bool {
	return p == PolicyAutoSuggest || p == PolicyDraftFlagged || p == PolicyDraftReview
}

// Description is a short operator-facing label.
func (p Policy) Description() string {
	switch p {
	case PolicyAutoSuggest:
		return "auto-suggest"
	case PolicyDraftFlagged:
		return "draft, flagged for a quick look"
	case PolicyDraftReview:
		return "draft, needs review"
	case PolicySummaryOnly:
		return "summary only"
	default:
		return "escalate to manual handling"
	}
}
