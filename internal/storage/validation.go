package storage

import (
	"strings"
)

// ValidatePattern checks the invariants a pattern must hold before it is stored.
func ValidatePattern(p Pattern) error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "pattern.name", Message: "required"}
	}
	if p.UsageCount < 0 {
		return &ValidationError{Field: "pattern.usage_count", Message: "must be >= 0"}
	}
	if p.SuccessRate < 0 || p.SuccessRate > 100 {
		return &ValidationError{Field: "pattern.success_rate", Message: "must be within [0,100]"}
	}
	return nil
}

// ValidateTemplate checks the invariants a template must hold before it is stored.
func ValidateTemplate(t Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "template.id", Message: "required"}
	}
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Field: "template.name", Message: "required"}
	}
	if t.UsageCount < 0 {
		return &ValidationError{Field: "template.usage_count", Message: "must be >= 0"}
	}
	if t.SuccessRate < 0 || t.SuccessRate > 100 {
		return &ValidationError{Field: "template.success_rate", Message: "must be within [0,100]"}
	}
	return nil
}

// ValidateContact checks that a contact has a usable key.
func ValidateContact(c Contact) error {
	if strings.TrimSpace(c.Email) == "" {
		return &ValidationError{Field: "contact.email", Message: "required"}
	}
	if c.InteractionCount < 0 {
		return &ValidationError{Field: "contact.interaction_count", Message: "must be >= 0"}
	}
	return nil
}

// ValidateDraft checks a draft record at creation time.
func ValidateDraft(rec DraftRecord) error {
	if strings.TrimSpace(rec.SourceText) == "" {
		return &ValidationError{Field: "draft.source_text", Message: "required"}
	}
	if rec.Confidence < 0 || rec.Confidence > 100 {
		return &ValidationError{Field: "draft.confidence", Message: "must be within [0,100]"}
	}
	if rec.Sent || rec.FinalText != nil || rec.EditPercentage != nil || rec.Outcome != "" {
		return &ValidationError{Field: "draft", Message: "new drafts cannot carry sent or scoring fields"}
	}
	return nil
}

func validateScore(editPct float64, outcome Outcome) error {
	if editPct < 0 || editPct > 100 {
		return &ValidationError{Field: "draft.edit_percentage", Message: "must be within [0,100]"}
	}
	if !outcome.Valid() {
		return &ValidationError{Field: "draft.outcome", Message: "unknown outcome " + string(outcome)}
	}
	return nil
}

// NormalizeEmail lowercases and trims an email so it can be used as a contact key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
