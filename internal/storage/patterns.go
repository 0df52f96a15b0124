package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const patternColumns = `name, keywords, confidence_boost, usage_count, success_rate, notes, template_id, updated_at`

// ListPatterns returns every pattern sorted by name.
func (s *SQLiteStorage) ListPatterns(ctx context.Context) ([]Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("list patterns"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+patternColumns+` FROM patterns ORDER BY name ASC`)
	if err != nil {
		return nil, unavailable("list patterns", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, unavailable("scan pattern", err)
		}
		patterns = append(patterns, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list patterns", err)
	}

	return patterns, nil
}

// GetPattern retrieves a pattern by name.
func (s *SQLiteStorage) GetPattern(ctx context.Context, name string) (*Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("get pattern"); err != nil {
		return nil, err
	}

	return getPattern(ctx, s.db, name)
}

// UpsertPattern inserts or replaces a pattern.
func (s *SQLiteStorage) UpsertPattern(ctx context.Context, p Pattern) error {
	if err := ValidatePattern(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("upsert pattern"); err != nil {
		return err
	}

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	return putPattern(ctx, s.db, p)
}

// UpdatePattern applies fn to the stored pattern inside one transaction.
func (s *SQLiteStorage) UpdatePattern(ctx context.Context, name string, fn func(*Pattern) error) (*Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("update pattern"); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin pattern update", err)
	}
	defer tx.Rollback()

	p, err := getPattern(ctx, tx, name)
	if err != nil {
		return nil, err
	}

	if err := fn(p); err != nil {
		return nil, err
	}
	// The key is immutable inside an update.
	p.Name = name
	if err := ValidatePattern(*p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()

	if err := putPattern(ctx, tx, *p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit pattern update", err)
	}

	return p, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getPattern(ctx context.Context, q queryer, name string) (*Pattern, error) {
	row := q.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM patterns WHERE name = ?`, name)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("pattern", name)
	}
	if err != nil {
		return nil, unavailable("get pattern", err)
	}
	return p, nil
}

func putPattern(ctx context.Context, q queryer, p Pattern) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			keywords = excluded.keywords,
			confidence_boost = excluded.confidence_boost,
			usage_count = excluded.usage_count,
			success_rate = excluded.success_rate,
			notes = excluded.notes,
			template_id = excluded.template_id,
			updated_at = excluded.updated_at
	`,
		p.Name,
		stringsToJSON(p.Keywords),
		p.ConfidenceBoost,
		p.UsageCount,
		p.SuccessRate,
		p.Notes,
		p.TemplateID,
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return unavailable("put pattern", err)
	}
	return nil
}

func scanPattern(row rowScanner) (*Pattern, error) {
	var p Pattern
	var keywords, updatedAt string

	if err := row.Scan(
		&p.Name,
		&keywords,
		&p.ConfidenceBoost,
		&p.UsageCount,
		&p.SuccessRate,
		&p.Notes,
		&p.TemplateID,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if p.Keywords, err = jsonToStrings(keywords); err != nil {
		return nil, fmt.Errorf("pattern %s keywords: %w", p.Name, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("pattern %s updated_at: %w", p.Name, err)
	}

	return &p, nil
}
