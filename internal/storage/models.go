/*
Package storage provides data models for the triage learning loop.

These models represent the pattern library, response templates, learned
contacts, writing-style phrases, and the append-only history of drafts
compared against what was actually sent.
*/
package storage

import (
	"slices"
	"time"
)

// Outcome is the discrete classification of a sent draft, derived from its edit percentage.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeGood         Outcome = "good"
	OutcomeNeedsWork    Outcome = "needs_work"
	OutcomeFailure      Outcome = "failure"
	OutcomeMajorFailure Outcome = "major_failure"
)

// Counts reports whether the outcome counts as a success for success-rate bookkeeping.
func (o Outcome) Counts() bool {
	return o == OutcomeSuccess || o == OutcomeGood
}

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeGood, OutcomeNeedsWork, OutcomeFailure, OutcomeMajorFailure:
		return true
	}
	return false
}

// Pattern is a named keyword rule used to classify inbound text.
type Pattern struct {
	// Name is the unique key of the pattern.
	Name string `json:"name" yaml:"name"`

	// Keywords are matched as case-insensitive substrings.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// ConfidenceBoost is added to the base confidence when this pattern matches.
	ConfidenceBoost int `json:"confidence_boost" yaml:"confidence_boost"`

	// UsageCount is incremented every time the pattern is selected by a match.
	UsageCount int `json:"usage_count" yaml:"usage_count"`

	// SuccessRate is the percentage (0-100) of scored drafts that needed little editing.
	SuccessRate int `json:"success_rate" yaml:"success_rate"`

	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`

	// TemplateID optionally names the template used to draft replies for this pattern.
	TemplateID string `json:"template_id,omitempty" yaml:"template_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Clone returns a deep copy of p.
func (p Pattern) Clone() Pattern {
	p.Keywords = slices.Clone(p.Keywords)
	return p
}

// Template is a parameterized response body with {variable} placeholders.
type Template struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Body        string    `json:"body" yaml:"body"`
	Variables   []string  `json:"variables" yaml:"variables"`
	Attachments []string  `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	UsageCount  int       `json:"usage_count" yaml:"usage_count"`
	SuccessRate int       `json:"success_rate" yaml:"success_rate"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Clone returns a deep copy of t.
func (t Template) Clone() Template {
	t.Variables = slices.Clone(t.Variables)
	t.Attachments = slices.Clone(t.Attachments)
	return t
}

// Contact is the learned profile of a counterparty.
type Contact struct {
	// Email is the unique key, stored lowercased.
	Email string `json:"email"`

	Name             string `json:"name"`
	RelationshipType string `json:"relationship_type,omitempty"`

	// PreferredTone is empty until learned from sent replies.
	PreferredTone string `json:"preferred_tone,omitempty"`

	CommonTopics     []string  `json:"common_topics,omitempty"`
	InteractionCount int       `json:"interaction_count"`
	LastInteraction  time.Time `json:"last_interaction"`
}

// Clone returns a deep copy of c.
func (c Contact) Clone() Contact {
	c.CommonTopics = slices.Clone(c.CommonTopics)
	return c
}

// WritingStylePhrase is a phrase observed in the operator's sent replies.
type WritingStylePhrase struct {
	Phrase    string    `json:"phrase"`
	Context   string    `json:"context"`
	Frequency int       `json:"frequency"`
	LastUsed  time.Time `json:"last_used"`
}

// DraftRecord is one generated draft and, once sent, its learning outcome.
// Records are append-only: they are created once and scored once.
type DraftRecord struct {
	ID string `json:"id"`

	// SourceText is the lowercased subject, body and instruction used for matching.
	SourceText string `json:"source_text"`

	// MatchedPattern is empty when no pattern matched.
	MatchedPattern string `json:"matched_pattern,omitempty"`

	// TemplateID is empty when no template was used.
	TemplateID string `json:"template_id,omitempty"`

	SenderEmail string `json:"sender_email,omitempty"`
	SenderName  string `json:"sender_name,omitempty"`

	DraftText  string `json:"draft_text"`
	Confidence int    `json:"confidence"`
	Sent       bool   `json:"sent"`

	FinalText      *string    `json:"final_text,omitempty"`
	EditPercentage *float64   `json:"edit_percentage,omitempty"`
	Outcome        Outcome    `json:"outcome,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ScoredAt       *time.Time `json:"scored_at,omitempty"`
}

// Scored reports whether the record has reached its terminal state.
func (r DraftRecord) Scored() bool {
	return r.Outcome != ""
}
