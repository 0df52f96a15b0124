package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

const draftColumns = `id, source_text, matched_pattern, template_id, sender_email, sender_name,
	draft_text, confidence, sent, final_text, edit_percentage, outcome, created_at, scored_at`

// CreateDraft validates and persists rec, assigning a UUID when rec.ID is empty.
func (s *SQLiteStorage) CreateDraft(ctx context.Context, rec DraftRecord) (string, error) {
	if err := ValidateDraft(rec); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("create draft"); err != nil {
		return "", err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO draft_records (id, source_text, matched_pattern, template_id, sender_email,
			sender_name, draft_text, confidence, sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`,
		rec.ID,
		rec.SourceText,
		rec.MatchedPattern,
		rec.TemplateID,
		NormalizeEmail(rec.SenderEmail),
		rec.SenderName,
		rec.DraftText,
		rec.Confidence,
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", &ValidationError{Field: "draft.id", Message: "duplicate id " + rec.ID}
		}
		return "", unavailable("create draft", err)
	}

	return rec.ID, nil
}

// GetDraft retrieves a draft record by id.
func (s *SQLiteStorage) GetDraft(ctx context.Context, id string) (*DraftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("get draft"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM draft_records WHERE id = ?`, id)
	rec, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("draft", id)
	}
	if err != nil {
		return nil, unavailable("get draft", err)
	}

	return rec, nil
}

// MarkScored moves a draft to its terminal state.
//
// The update is guarded on outcome IS NULL so a record can only be scored once,
// even when two callers race on the same id.
func (s *SQLiteStorage) MarkScored(ctx context.Context, id, finalText string, editPct float64, outcome Outcome) error {
	if err := validateScore(editPct, outcome); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("mark scored"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE draft_records
		SET sent = 1, final_text = ?, edit_percentage = ?, outcome = ?, scored_at = ?
		WHERE id = ? AND outcome IS NULL
	`, finalText, editPct, string(outcome), formatTime(s.now()), id)
	if err != nil {
		return unavailable("mark scored", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("mark scored", err)
	}
	if n == 0 {
		return notFound("draft", id)
	}

	return nil
}

// ListDrafts returns the newest drafts first.
func (s *SQLiteStorage) ListDrafts(ctx context.Context, limit int) ([]DraftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("list drafts"); err != nil {
		return nil, err
	}

	query := `SELECT ` + draftColumns + ` FROM draft_records ORDER BY created_at DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list drafts", err)
	}
	defer rows.Close()

	var drafts []DraftRecord
	for rows.Next() {
		rec, err := scanDraft(rows)
		if err != nil {
			return nil, unavailable("scan draft", err)
		}
		drafts = append(drafts, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list drafts", err)
	}

	return drafts, nil
}

func scanDraft(row rowScanner) (*DraftRecord, error) {
	var rec DraftRecord
	var sent int
	var finalText, outcome, scoredAt sql.NullString
	var editPct sql.NullFloat64
	var createdAt string

	if err := row.Scan(
		&rec.ID,
		&rec.SourceText,
		&rec.MatchedPattern,
		&rec.TemplateID,
		&rec.SenderEmail,
		&rec.SenderName,
		&rec.DraftText,
		&rec.Confidence,
		&sent,
		&finalText,
		&editPct,
		&outcome,
		&createdAt,
		&scoredAt,
	); err != nil {
		return nil, err
	}

	rec.Sent = sent == 1
	if finalText.Valid {
		text := finalText.String
		rec.FinalText = &text
	}
	if editPct.Valid {
		pct := editPct.Float64
		rec.EditPercentage = &pct
	}
	rec.Outcome = Outcome(outcome.String)

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if scoredAt.Valid && scoredAt.String != "" {
		t, err := parseTime(scoredAt.String)
		if err != nil {
			return nil, err
		}
		rec.ScoredAt = &t
	}

	return &rec, nil
}
