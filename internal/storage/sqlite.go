/*
Package storage implements a persistent storage layer for the triage learning loop.

This package provides SQLite-based repositories for patterns, templates,
contacts, writing-style phrases and draft history. When the database cannot
be opened the storage is disabled and every operation reports
ErrStoreUnavailable, which callers turn into hardcoded fallbacks (see
WithFallback) or log-and-continue behavior.

The database is stored at ~/.mailtriage/triage.db by default and uses
modernc.org/sqlite (a pure Go, CGo-free implementation).
*/
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the Storage interface using SQLite.
//
// All statements run under mu, so every Update* call is a serialized
// read-modify-write inside a single transaction.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	enabled  bool
	logger   *zap.Logger
	mu       sync.Mutex
	initOnce sync.Once
	now      func() time.Time
}

var _ Storage = (*SQLiteStorage)(nil)

// DefaultDBPath returns ~/.mailtriage/triage.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".mailtriage", "triage.db"), nil
}

// NewStorage creates a new SQLite storage instance at dbPath.
//
// An empty dbPath selects DefaultDBPath. If no path can be determined the
// storage is created disabled; operations then fail with ErrStoreUnavailable
// instead of panicking.
func NewStorage(dbPath string, logger *zap.Logger) *SQLiteStorage {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dbPath == "" {
		p, err := DefaultDBPath()
		if err != nil {
			logger.Warn("storage disabled", zap.Error(err))
			return &SQLiteStorage{enabled: false, logger: logger, now: time.Now}
		}
		dbPath = p
	}

	return &SQLiteStorage{
		dbPath:  dbPath,
		enabled: true,
		logger:  logger,
		now:     time.Now,
	}
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Enabled reports whether the database was opened successfully.
func (s *SQLiteStorage) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.db != nil
}

// Init initializes the database and runs migrations.
//
// If initialization fails, storage is disabled and subsequent operations
// report ErrStoreUnavailable (graceful degradation).
func (s *SQLiteStorage) Init() error {
	if !s.enabled {
		return nil
	}

	var initErr error
	s.initOnce.Do(func() {
		if s.logger == nil {
			s.logger = zap.NewNop()
		}
		if s.now == nil {
			s.now = time.Now
		}

		dbDir := filepath.Dir(s.dbPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create db directory: %w", err)
			s.disable(initErr)
			return
		}

		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			s.disable(initErr)
			return
		}
		// One connection keeps transactions and the mutex in lockstep.
		db.SetMaxOpenConns(1)
		s.db = db

		if err := db.Ping(); err != nil {
			initErr = fmt.Errorf("failed to ping database: %w", err)
			s.disable(initErr)
			return
		}

		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.Exec(pragma); err != nil {
				s.logger.Warn("failed to set sqlite pragma", zap.String("pragma", pragma), zap.Error(err))
			}
		}

		if err := s.runMigrations(); err != nil {
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			s.disable(initErr)
			return
		}
	})

	return initErr
}

func (s *SQLiteStorage) disable(err error) {
	s.logger.Warn("storage disabled", zap.String("path", s.dbPath), zap.Error(err))
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	s.enabled = false
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// available must be called with mu held.
func (s *SQLiteStorage) available(op string) error {
	if !s.enabled || s.db == nil {
		return unavailable(op, nil)
	}
	return nil
}

// stringsToJSON encodes a string list for a TEXT column.
func stringsToJSON(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// jsonToStrings decodes a TEXT column written by stringsToJSON.
func jsonToStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
