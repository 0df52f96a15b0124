/*
Package triage runs one inbound message through the drafting pipeline:
pattern match, confidence score, template fill and draft record.

The mailbox, the enrichment lookups and the language model are collaborators
behind small interfaces; the pipeline only decides what to do with their
answers. Batches are processed strictly in order with a fixed pace between
items.
*/
package triage

import (
	"context"
	"strings"
	"time"

	"github.com/derek809/mailtriage/internal/confidence"
	"github.com/derek809/mailtriage/internal/matcher"
	"github.com/derek809/mailtriage/internal/search"
	"github.com/derek809/mailtriage/internal/storage"
)

// Message is an inbound email or task.
type Message struct {
	Subject     string    `json:"subject" yaml:"subject"`
	Body        string    `json:"body" yaml:"body"`
	SenderEmail string    `json:"sender_email" yaml:"sender_email"`
	SenderName  string    `json:"sender_name" yaml:"sender_name"`
	Date        time.Time `json:"date" yaml:"date"`
}

// Validate requires a sender and some content.
func (m Message) Validate() error {
	if strings.TrimSpace(m.SenderEmail) == "" {
		return &storage.ValidationError{Field: "message.sender_email", Message: "required"}
	}
	if strings.TrimSpace(m.Subject) == "" && strings.TrimSpace(m.Body) == "" {
		return &storage.ValidationError{Field: "message", Message: "subject or body required"}
	}
	return nil
}

// FirstName is the first word of SenderName, or the local part of the email.
func (m Message) FirstName() string {
	if fields := strings.Fields(m.SenderName); len(fields) > 0 {
		return fields[0]
	}
	local, _, _ := strings.Cut(m.SenderEmail, "@")
	return local
}

// Enricher looks up auxiliary data for a message, such as an invoice or
// payment record. Returned values are offered to the template; a non-empty
// result counts as auxiliary data found.
type Enricher interface {
	Enrich(ctx context.Context, msg Message, match *matcher.MatchResult) (map[string]string, error)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, msg Message, match *matcher.MatchResult) (map[string]string, error)

func (f EnricherFunc) Enrich(ctx context.Context, msg Message, match *matcher.MatchResult) (map[string]string, error) {
	return f(ctx, msg, match)
}

// Drafter composes the reply body, typically by calling a language model.
type Drafter interface {
	Compose(ctx context.Context, req DraftRequest) (string, error)
}

// DraftRequest is everything the Drafter gets to work with.
type DraftRequest struct {
	Message     Message
	Instruction string
	Match       *matcher.MatchResult
	Confidence  int
	// Filled is the template after substitution, or "" when no template applies.
	Filled  string
	Similar []search.Match
}

// SimilarFinder returns past replies to similar messages.
type SimilarFinder interface {
	Similar(q search.Query) ([]search.Match, error)
}

// Draft is the pipeline's answer for one message. ID is empty and Recorded
// is false when the draft could not be written to history.
type Draft struct {
	ID               string               `json:"id"`
	Recorded         bool                 `json:"recorded"`
	Match            *matcher.MatchResult `json:"match,omitempty"`
	Confidence       int                  `json:"confidence"`
	Policy           confidence.Policy    `json:"policy"`
	SenderKnown      bool                 `json:"sender_known"`
	AuxDataFound     bool                 `json:"aux_data_found"`
	TemplateID       string               `json:"template_id,omitempty"`
	Text             string               `json:"text"`
	Attachments      []string             `json:"attachments,omitempty"`
	MissingVariables []string             `json:"missing_variables,omitempty"`
	Similar          []search.Match       `json:"similar,omitempty"`
}

// PatternName is the matched pattern, or "".
func (d *Draft) PatternName() string {
	if d.Match == nil {
		return ""
	}
	return d.Match.PatternName
}
