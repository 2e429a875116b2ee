package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection holding the users and reminders tables.
// Both tables are hit concurrently by the command handlers and the
// dispatcher loop; single-row upserts and deletes are atomic in sqlite,
// which is all the callers rely on.
type DB struct {
	*sql.DB
	defaultTZ string
	logger    *zerolog.Logger
}

// NewDB opens the database at path and creates tables if they don't exist.
// defaultTZ is the timezone assigned to lazily created user records.
func NewDB(path, defaultTZ string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and a busy timeout so the dispatcher and the bot can
	// interleave writes without SQLITE_BUSY errors.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:        db,
		defaultTZ: defaultTZ,
		logger:    logger,
	}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			identity   TEXT PRIMARY KEY,
			credential TEXT NOT NULL DEFAULT '',
			timezone   TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id          TEXT PRIMARY KEY,
			identity    TEXT NOT NULL,
			event_id    TEXT NOT NULL,
			summary     TEXT NOT NULL,
			start_utc   TIMESTAMP NOT NULL,
			fire_at_utc TIMESTAMP NOT NULL,
			created_at  TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_fire_at ON reminders(fire_at_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_identity ON reminders(identity)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", q[:30], err)
		}
	}
	return nil
}
