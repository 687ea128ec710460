package state

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies all pending ledger migrations.
func (s *SQLiteStore) Migrate() error {
	if s.db == nil {
		return errNotOpened
	}
	return migrate(s.db)
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied schema version.
func (s *SQLiteStore) MigrationVersion() (int64, error) {
	if s.db == nil {
		return 0, errNotOpened
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersion(s.db)
}
