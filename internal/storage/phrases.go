package storage

import (
	"context"
	"strings"
)

// UpsertPhrase records one observation of phrase under the context tag.
// New phrases start at frequency 1; repeats increment it and refresh last_used.
func (s *SQLiteStorage) UpsertPhrase(ctx context.Context, phrase, tag string) (*WritingStylePhrase, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, &ValidationError{Field: "phrase", Message: "required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("upsert phrase"); err != nil {
		return nil, err
	}

	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO writing_style (phrase, context, frequency, last_used)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(phrase, context) DO UPDATE SET
			frequency = writing_style.frequency + 1,
			last_used = excluded.last_used
		RETURNING frequency
	`, phrase, tag, formatTime(now))

	out := &WritingStylePhrase{Phrase: phrase, Context: tag, LastUsed: now}
	if err := row.Scan(&out.Frequency); err != nil {
		return nil, unavailable("upsert phrase", err)
	}

	return out, nil
}

// ListPhrases returns all phrases, most frequent first.
func (s *SQLiteStorage) ListPhrases(ctx context.Context) ([]WritingStylePhrase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.available("list phrases"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT phrase, context, frequency, last_used
		FROM writing_style
		ORDER BY frequency DESC, phrase ASC, context ASC
	`)
	if err != nil {
		return nil, unavailable("list phrases", err)
	}
	defer rows.Close()

	var phrases []WritingStylePhrase
	for rows.Next() {
		var p WritingStylePhrase
		var lastUsed string
		if err := rows.Scan(&p.Phrase, &p.Context, &p.Frequency, &lastUsed); err != nil {
			return nil, unavailable("scan phrase", err)
		}
		if p.LastUsed, err = parseTime(lastUsed); err != nil {
			return nil, unavailable("scan phrase", err)
		}
		phrases = append(phrases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list phrases", err)
	}

	return phrases, nil
}
