package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const templateColumns = `id, name, body, variables, attachments, usage_count, success_rate, updated_at`

// ListTemplates returns every template sorted by id.
func (s *SQLiteStorage) ListTemplates(ctx context.Context) ([]Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("list templates"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY id ASC`)
	if err != nil {
		return nil, unavailable("list templates", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, unavailable("scan template", err)
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list templates", err)
	}

	return templates, nil
}

// GetTemplate retrieves a template by id.
func (s *SQLiteStorage) GetTemplate(ctx context.Context, id string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("get template"); err != nil {
		return nil, err
	}

	return getTemplate(ctx, s.db, id)
}

// UpsertTemplate inserts or replaces a template.
func (s *SQLiteStorage) UpsertTemplate(ctx context.Context, t Template) error {
	if err := ValidateTemplate(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("upsert template"); err != nil {
		return err
	}

	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now()
	}
	return putTemplate(ctx, s.db, t)
}

// UpdateTemplate applies fn to the stored template inside one transaction.
func (s *SQLiteStorage) UpdateTemplate(ctx context.Context, id string, fn func(*Template) error) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("update template"); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin template update", err)
	}
	defer tx.Rollback()

	t, err := getTemplate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(t); err != nil {
		return nil, err
	}
	t.ID = id
	if err := ValidateTemplate(*t); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now()

	if err := putTemplate(ctx, tx, *t); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit template update", err)
	}

	return t, nil
}

func getTemplate(ctx context.Context, q queryer, id string) (*Template, error) {
	row := q.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("template", id)
	}
	if err != nil {
		return nil, unavailable("get template", err)
	}
	return t, nil
}

func putTemplate(ctx context.Context, q queryer, t Template) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			body = excluded.body,
			variables = excluded.variables,
			attachments = excluded.attachments,
			usage_count = excluded.usage_count,
			success_rate = excluded.success_rate,
			updated_at = excluded.updated_at
	`,
		t.ID,
		t.Name,
		t.Body,
		stringsToJSON(t.Variables),
		stringsToJSON(t.Attachments),
		t.UsageCount,
		t.SuccessRate,
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &ValidationError{Field: "template.name", Message: fmt.Sprintf("%q already used by another template", t.Name)}
		}
		return unavailable("put template", err)
	}
	return nil
}

func scanTemplate(row rowScanner) (*Template, error) {
	var t Template
	var variables, attachments, updatedAt string

	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Body,
		&variables,
		&attachments,
		&t.UsageCount,
		&t.SuccessRate,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if t.Variables, err = jsonToStrings(variables); err != nil {
		return nil, fmt.Errorf("template %s variables: %w", t.ID, err)
	}
	if t.Attachments, err = jsonToStrings(attachments); err != nil {
		return nil, fmt.Errorf("template %s attachments: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("template %s updated_at: %w", t.ID, err)
	}

	return &t, nil
}
