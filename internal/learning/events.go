/*
Package learning closes the loop between drafted and sent replies.

RecordSent scores a sent reply against its draft (token edit percentage and
outcome band) and persists that score exactly once. Follow-up learning, such
as success-rate updates, phrase extraction, contact upkeep and reply
indexing, is advisory: its failures are logged and counted but never undo or
fail the score. Advisory work runs inline or on a background Tracker.
*/
package learning

import (
	"time"

	"github.com/derek809/mailtriage/internal/storage"
)

// Observation is one scored draft handed to the advisory steps.
type Observation struct {
	// Record is the draft as it stands after scoring.
	Record storage.DraftRecord

	// FinalText is the text the user actually sent.
	FinalText string

	// Outcome is the band the edit percentage fell into.
	Outcome storage.Outcome

	// ObservedAt is when the reply was scored.
	ObservedAt time.Time
}

// PhraseContext is the writing-style tag for the observation: the matched
// pattern name, or "general" when nothing matched.
func (o Observation) PhraseContext() string {
	if o.Record.MatchedPattern == "" {
		return "general"
	}
	return o.Record.MatchedPattern
}
