package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-process Storage used for dry runs and tests.
// It follows the same semantics as SQLiteStorage, including the
// once-only scoring guard.
type MemoryStorage struct {
	mu        sync.Mutex
	patterns  map[string]Pattern
	templates map[string]Template
	contacts  map[string]Contact
	phrases   map[[2]string]WritingStylePhrase
	drafts    map[string]DraftRecord
	now       func() time.Time
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		patterns:  make(map[string]Pattern),
		templates: make(map[string]Template),
		contacts:  make(map[string]Contact),
		phrases:   make(map[[2]string]WritingStylePhrase),
		drafts:    make(map[string]DraftRecord),
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (m *MemoryStorage) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStorage) Init() error  { return nil }
func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) ListPatterns(ctx context.Context) ([]Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p.Clone())
	}
	SortPatterns(out)
	return out, nil
}

func (m *MemoryStorage) GetPattern(ctx context.Context, name string) (*Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patterns[name]
	if !ok {
		return nil, notFound("pattern", name)
	}
	p = p.Clone()
	return &p, nil
}

func (m *MemoryStorage) UpsertPattern(ctx context.Context, p Pattern) error {
	if err := ValidatePattern(p); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	m.patterns[p.Name] = p.Clone()
	return nil
}

func (m *MemoryStorage) UpdatePattern(ctx context.Context, name string, fn func(*Pattern) error) (*Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.patterns[name]
	if !ok {
		return nil, notFound("pattern", name)
	}
	p := cur.Clone()
	if err := fn(&p); err != nil {
		return nil, err
	}
	p.Name = name
	if err := ValidatePattern(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = m.now()
	m.patterns[name] = p.Clone()
	return &p, nil
}

func (m *MemoryStorage) ListTemplates(ctx context.Context) ([]Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t.Clone())
	}
	SortTemplates(out)
	return out, nil
}

func (m *MemoryStorage) GetTemplate(ctx context.Context, id string) (*Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, notFound("template", id)
	}
	t = t.Clone()
	return &t, nil
}

func (m *MemoryStorage) UpsertTemplate(ctx context.Context, t Template) error {
	if err := ValidateTemplate(t); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTemplateName(t); err != nil {
		return err
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = m.now()
	}
	m.templates[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStorage) UpdateTemplate(ctx context.Context, id string, fn func(*Template) error) (*Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.templates[id]
	if !ok {
		return nil, notFound("template", id)
	}
	t := cur.Clone()
	if err := fn(&t); err != nil {
		return nil, err
	}
	t.ID = id
	if err := ValidateTemplate(t); err != nil {
		return nil, err
	}
	if err := m.checkTemplateName(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = m.now()
	m.templates[id] = t.Clone()
	return &t, nil
}

// checkTemplateName must be called with mu held.
func (m *MemoryStorage) checkTemplateName(t Template) error {
	for id, other := range m.templates {
		if id != t.ID && other.Name == t.Name {
			return &ValidationError{Field: "template.name", Message: "\"" + t.Name + "\" already used by another template"}
		}
	}
	return nil
}

func (m *MemoryStorage) GetContact(ctx context.Context, email string) (*Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := NormalizeEmail(email)
	c, ok := m.contacts[key]
	if !ok {
		return nil, notFound("contact", key)
	}
	c = c.Clone()
	return &c, nil
}

func (m *MemoryStorage) UpsertContact(ctx context.Context, c Contact) error {
	c.Email = NormalizeEmail(c.Email)
	if err := ValidateContact(c); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.contacts[c.Email] = c.Clone()
	return nil
}

func (m *MemoryStorage) UpdateContact(ctx context.Context, email string, fn func(*Contact) error) (*Contact, error) {
	key := NormalizeEmail(email)
	if key == "" {
		return nil, &ValidationError{Field: "contact.email", Message: "required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contacts[key]
	if ok {
		c = c.Clone()
	} else {
		c = Contact{Email: key}
	}
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.Email = key
	if err := ValidateContact(c); err != nil {
		return nil, err
	}
	m.contacts[key] = c.Clone()
	return &c, nil
}

func (m *MemoryStorage) UpsertPhrase(ctx context.Context, phrase, tag string) (*WritingStylePhrase, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, &ValidationError{Field: "phrase", Message: "required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]string{phrase, tag}
	p, ok := m.phrases[key]
	if !ok {
		p = WritingStylePhrase{Phrase: phrase, Context: tag}
	}
	p.Frequency++
	p.LastUsed = m.now()
	m.phrases[key] = p
	return &p, nil
}

func (m *MemoryStorage) ListPhrases(ctx context.Context) ([]WritingStylePhrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]WritingStylePhrase, 0, len(m.phrases))
	for _, p := range m.phrases {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b WritingStylePhrase) int {
		if a.Frequency != b.Frequency {
			return b.Frequency - a.Frequency
		}
		if c := strings.Compare(a.Phrase, b.Phrase); c != 0 {
			return c
		}
		return strings.Compare(a.Context, b.Context)
	})
	return out, nil
}

func (m *MemoryStorage) CreateDraft(ctx context.Context, rec DraftRecord) (string, error) {
	if err := ValidateDraft(rec); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := m.drafts[rec.ID]; exists {
		return "", &ValidationError{Field: "draft.id", Message: "duplicate id " + rec.ID}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	rec.SenderEmail = NormalizeEmail(rec.SenderEmail)
	m.drafts[rec.ID] = rec
	return rec.ID, nil
}

func (m *MemoryStorage) GetDraft(ctx context.Context, id string) (*DraftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.drafts[id]
	if !ok {
		return nil, notFound("draft", id)
	}
	return &rec, nil
}

func (m *MemoryStorage) MarkScored(ctx context.Context, id, finalText string, editPct float64, outcome Outcome) error {
	if err := validateScore(editPct, outcome); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.drafts[id]
	if !ok || rec.Scored() {
		return notFound("draft", id)
	}

	now := m.now()
	rec.Sent = true
	rec.FinalText = &finalText
	rec.EditPercentage = &editPct
	rec.Outcome = outcome
	rec.ScoredAt = &now
	m.drafts[id] = rec
	return nil
}

func (m *MemoryStorage) ListDrafts(ctx context.Context, limit int) ([]DraftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DraftRecord, 0, len(m.drafts))
	for _, rec := range m.drafts {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b DraftRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
