/*
Package search indexes sent replies so past answers to similar messages can
be found again.

Each scored draft is stored as a document holding the incoming message, the
reply that was actually sent, the matched pattern and the outcome. Queries
use Bleve's BM25 match scoring over the message and reply text, optionally
filtered by pattern and outcome.
*/
package search

import "time"

// Match is one past reply returned by a search.
type Match struct {
	DraftID        string    `json:"draft_id"`
	Pattern        string    `json:"pattern,omitempty"`
	Outcome        string    `json:"outcome"`
	SenderEmail    string    `json:"sender_email,omitempty"`
	SourceText     string    `json:"source_text"`
	FinalText      string    `json:"final_text"`
	EditPercentage float64   `json:"edit_percentage"`
	ScoredAt       time.Time `json:"scored_at"`
	Score          float64   `json:"score"`
}

// Query narrows a similarity search.
type Query struct {
	Text string

	// Pattern restricts results to one pattern name when set.
	Pattern string

	// Outcomes restricts results to these outcomes when non-empty.
	Outcomes []string

	// Limit defaults to 10.
	Limit int
}

// replyDocument is the indexed form of a scored draft.
type replyDocument struct {
	SourceText     string  `json:"source_text"`
	FinalText      string  `json:"final_text"`
	Pattern        string  `json:"pattern"`
	Outcome        string  `json:"outcome"`
	SenderEmail    string  `json:"sender_email"`
	EditPercentage float64 `json:"edit_percentage"`
	ScoredAt       string  `json:"scored_at"`
}

func (d replyDocument) fields() map[string]interface{} {
	return map[string]interface{}{
		"source_text":     d.SourceText,
		"final_text":      d.FinalText,
		"pattern":         d.Pattern,
		"outcome":         d.Outcome,
		"sender_email":    d.SenderEmail,
		"edit_percentage": d.EditPercentage,
		"scored_at":       d.ScoredAt,
	}
}
