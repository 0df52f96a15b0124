package storage

import (
	"fmt"

	"go.uber.org/zap"
)

// runMigrations executes database schema migrations.
func (s *SQLiteStorage) runMigrations() error {
	if !s.enabled || s.db == nil {
		return nil
	}

	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: s.migration001InitialSchema},
		{version: 2, name: "draft_history_indexes", up: s.migration002DraftIndexes},
	}

	for _, m := range migrations {
		if version < m.version {
			s.logger.Info("running migration", zap.Int("version", m.version), zap.String("name", m.name))
			if err := m.up(); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			if err := s.setMigrationVersion(m.version, m.name); err != nil {
				return err
			}
		}
	}

	return nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// createMigrationsTable creates the schema_migrations table.
func (s *SQLiteStorage) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	query := "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"
	row := s.db.QueryRow(query)

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, err
	}

	return version, nil
}

// setMigrationVersion records a migration as applied.
func (s *SQLiteStorage) setMigrationVersion(version int, name string) error {
	query := "INSERT INTO schema_migrations (version, name) VALUES (?, ?)"
	_, err := s.db.Exec(query, version, name)
	return err
}

// migration001InitialSchema creates the pattern, template, contact, phrase and draft tables.
func (s *SQLiteStorage) migration001InitialSchema() error {
	statements := []struct {
		what  string
		query string
	}{
		{"patterns table", `
			CREATE TABLE IF NOT EXISTS patterns (
				name TEXT PRIMARY KEY,
				keywords TEXT NOT NULL DEFAULT '[]',
				confidence_boost INTEGER NOT NULL DEFAULT 0,
				usage_count INTEGER NOT NULL DEFAULT 0,
				success_rate INTEGER NOT NULL DEFAULT 0,
				notes TEXT NOT NULL DEFAULT '',
				template_id TEXT NOT NULL DEFAULT '',
				updated_at TEXT NOT NULL DEFAULT ''
			)
		`},
		{"templates table", `
			CREATE TABLE IF NOT EXISTS templates (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				body TEXT NOT NULL,
				variables TEXT NOT NULL DEFAULT '[]',
				attachments TEXT NOT NULL DEFAULT '[]',
				usage_count INTEGER NOT NULL DEFAULT 0,
				success_rate INTEGER NOT NULL DEFAULT 0,
				updated_at TEXT NOT NULL DEFAULT ''
			)
		`},
		{"contacts table", `
			CREATE TABLE IF NOT EXISTS contacts (
				email TEXT PRIMARY KEY COLLATE NOCASE,
				name TEXT NOT NULL DEFAULT '',
				relationship_type TEXT NOT NULL DEFAULT '',
				preferred_tone TEXT,
				common_topics TEXT NOT NULL DEFAULT '[]',
				interaction_count INTEGER NOT NULL DEFAULT 0,
				last_interaction TEXT NOT NULL DEFAULT ''
			)
		`},
		{"writing_style table", `
			CREATE TABLE IF NOT EXISTS writing_style (
				phrase TEXT NOT NULL,
				context TEXT NOT NULL,
				frequency INTEGER NOT NULL DEFAULT 1,
				last_used TEXT NOT NULL,
				PRIMARY KEY (phrase, context)
			)
		`},
		{"draft_records table", `
			CREATE TABLE IF NOT EXISTS draft_records (
				id TEXT PRIMARY KEY,
				source_text TEXT NOT NULL,
				matched_pattern TEXT NOT NULL DEFAULT '',
				template_id TEXT NOT NULL DEFAULT '',
				sender_email TEXT NOT NULL DEFAULT '',
				sender_name TEXT NOT NULL DEFAULT '',
				draft_text TEXT NOT NULL,
				confidence INTEGER NOT NULL,
				sent INTEGER NOT NULL DEFAULT 0,
				final_text TEXT,
				edit_percentage REAL,
				outcome TEXT,
				created_at TEXT NOT NULL,
				scored_at TEXT
			)
		`},
	}

	for _, st := range statements {
		if _, err := s.db.Exec(st.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", st.what, err)
		}
	}

	return nil
}

// migration002DraftIndexes adds lookup indexes for draft history.
func (s *SQLiteStorage) migration002DraftIndexes() error {
	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_draft_records_created
		ON draft_records(created_at DESC)
	`); err != nil {
		return fmt.Errorf("failed to create draft_records created index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_draft_records_pattern
		ON draft_records(matched_pattern)
	`); err != nil {
		return fmt.Errorf("failed to create draft_records pattern index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_writing_style_frequency
		ON writing_style(frequency DESC)
	`); err != nil {
		return fmt.Errorf("failed to create writing_style frequency index: %w", err)
	}

	return nil
}
