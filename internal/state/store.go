// Package state keeps the run ledger: one row per pipeline run and one row
// per stage result, stored in SQLite.
//
// The ledger is write-mostly. The pipeline feeds it through the Recorder
// methods and never reads it back; the CLI and the status endpoint list it.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var errNotOpened = errors.New("database not opened")

// ErrRunNotFound is returned when a run id is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is how timestamps are stored. Fixed width so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the run ledger.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a store. Call Open before use.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open connects to the ledger at path and applies migrations.
// Use ":memory:" for a throwaway ledger.
func (s *SQLiteStore) Open(path string) error {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return errors.Join(fmt.Errorf("failed to ping sqlite database: %w", err), db.Close())
	}
	if err := migrate(db); err != nil {
		return errors.Join(err, db.Close())
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened run ledger", "path", path)
	return nil
}

// Open is a shorthand for NewSQLiteStore followed by Open.
func Open(path string, logger *slog.Logger) (*SQLiteStore, error) {
	s := NewSQLiteStore(logger)
	if err := s.Open(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the ledger location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// generateID creates a new row id.
func generateID() string {
	return uuid.New().String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
