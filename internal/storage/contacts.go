package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const contactColumns = `email, name, relationship_type, preferred_tone, common_topics, interaction_count, last_interaction`

// GetContact retrieves a contact by email (case-insensitive).
func (s *SQLiteStorage) GetContact(ctx context.Context, email string) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("get contact"); err != nil {
		return nil, err
	}

	return getContact(ctx, s.db, NormalizeEmail(email))
}

// UpsertContact inserts or replaces a contact.
func (s *SQLiteStorage) UpsertContact(ctx context.Context, c Contact) error {
	c.Email = NormalizeEmail(c.Email)
	if err := ValidateContact(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("upsert contact"); err != nil {
		return err
	}

	return putContact(ctx, s.db, c)
}

// UpdateContact applies fn to the contact inside one transaction, creating it if absent.
func (s *SQLiteStorage) UpdateContact(ctx context.Context, email string, fn func(*Contact) error) (*Contact, error) {
	key := NormalizeEmail(email)
	if key == "" {
		return nil, &ValidationError{Field: "contact.email", Message: "required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("update contact"); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin contact update", err)
	}
	defer tx.Rollback()

	c, err := getContact(ctx, tx, key)
	if errors.Is(err, ErrNotFound) {
		c = &Contact{Email: key}
	} else if err != nil {
		return nil, err
	}

	if err := fn(c); err != nil {
		return nil, err
	}
	c.Email = key
	if err := ValidateContact(*c); err != nil {
		return nil, err
	}

	if err := putContact(ctx, tx, *c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit contact update", err)
	}

	return c, nil
}

func getContact(ctx context.Context, q queryer, email string) (*Contact, error) {
	row := q.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE email = ?`, email)

	var c Contact
	var tone sql.NullString
	var topics, lastInteraction string

	err := row.Scan(
		&c.Email,
		&c.Name,
		&c.RelationshipType,
		&tone,
		&topics,
		&c.InteractionCount,
		&lastInteraction,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("contact", email)
	}
	if err != nil {
		return nil, unavailable("get contact", err)
	}

	c.PreferredTone = tone.String
	if c.CommonTopics, err = jsonToStrings(topics); err != nil {
		return nil, unavailable("get contact", fmt.Errorf("contact %s topics: %w", email, err))
	}
	if c.LastInteraction, err = parseTime(lastInteraction); err != nil {
		return nil, unavailable("get contact", fmt.Errorf("contact %s last_interaction: %w", email, err))
	}

	return &c, nil
}

func putContact(ctx context.Context, q queryer, c Contact) error {
	var tone sql.NullString
	if c.PreferredTone != "" {
		tone = sql.NullString{String: c.PreferredTone, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			relationship_type = excluded.relationship_type,
			preferred_tone = excluded.preferred_tone,
			common_topics = excluded.common_topics,
			interaction_count = excluded.interaction_count,
			last_interaction = excluded.last_interaction
	`,
		c.Email,
		c.Name,
		c.RelationshipType,
		tone,
		stringsToJSON(c.CommonTopics),
		c.InteractionCount,
		formatTime(c.LastInteraction),
	)
	if err != nil {
		return unavailable("put contact", err)
	}
	return nil
}
