package storage

import "context"

// PatternRepository stores the pattern library, keyed by name.
type PatternRepository interface {
	// ListPatterns returns every pattern sorted by name.
	ListPatterns(ctx context.Context) ([]Pattern, error)

	GetPattern(ctx context.Context, name string) (*Pattern, error)
	UpsertPattern(ctx context.Context, p Pattern) error

	// UpdatePattern applies fn to the stored pattern as one atomic read-modify-write.
	UpdatePattern(ctx context.Context, name string, fn func(*Pattern) error) (*Pattern, error)
}

// TemplateRepository stores response templates, keyed by id.
type TemplateRepository interface {
	// ListTemplates returns every template sorted by id.
	ListTemplates(ctx context.Context) ([]Template, error)

	GetTemplate(ctx context.Context, id string) (*Template, error)
	UpsertTemplate(ctx context.Context, t Template) error

	// UpdateTemplate applies fn to the stored template as one atomic read-modify-write.
	UpdateTemplate(ctx context.Context, id string, fn func(*Template) error) (*Template, error)
}

// ContactRepository stores learned contacts, keyed case-insensitively by email.
type ContactRepository interface {
	GetContact(ctx context.Context, email string) (*Contact, error)
	UpsertContact(ctx context.Context, c Contact) error

	// UpdateContact applies fn atomically, creating the contact when it does not exist yet.
	// A new contact reaches fn with only Email set.
	UpdateContact(ctx context.Context, email string, fn func(*Contact) error) (*Contact, error)
}

// WritingStyleRepository stores phrases observed in sent replies.
type WritingStyleRepository interface {
	// UpsertPhrase records one observation of phrase under the context tag.
	UpsertPhrase(ctx context.Context, phrase, tag string) (*WritingStylePhrase, error)

	// ListPhrases returns all phrases, most frequent first.
	ListPhrases(ctx context.Context) ([]WritingStylePhrase, error)
}

// DraftRecordRepository stores the append-only draft history.
type DraftRecordRepository interface {
	// CreateDraft validates and persists rec, assigning an id when empty.
	CreateDraft(ctx context.Context, rec DraftRecord) (string, error)

	GetDraft(ctx context.Context, id string) (*DraftRecord, error)

	// MarkScored moves a draft to its terminal state. It fails with a NotFoundError
	// when the draft is missing or has already been scored.
	MarkScored(ctx context.Context, id, finalText string, editPct float64, outcome Outcome) error

	// ListDrafts returns the newest drafts first; limit <= 0 means no limit.
	ListDrafts(ctx context.Context, limit int) ([]DraftRecord, error)
}

// Storage is the full set of repositories plus lifecycle management.
type Storage interface {
	PatternRepository
	TemplateRepository
	ContactRepository
	WritingStyleRepository
	DraftRecordRepository

	// Init initializes the database and runs migrations.
	Init() error

	// Close closes the database connection.
	Close() error
}
