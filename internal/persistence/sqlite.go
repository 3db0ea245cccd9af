package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spec-kit/tradebot/internal/config"
)

// SQLite wraps the embedded database used when no postgres DSN is configured.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database file and applies the schema.
func NewSQLite(ctx context.Context, cfg config.SQLiteConfig, logger *zap.Logger) (*SQLite, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("opened sqlite store", zap.String("path", cfg.Path))
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reputation (
			user_id     TEXT PRIMARY KEY,
			total_stars INTEGER NOT NULL DEFAULT 0 CHECK (total_stars >= 0),
			count       INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
			comments    TEXT NOT NULL DEFAULT '[]',
			updated_at  INTEGER NOT NULL,
			CHECK (total_stars <= 5 * count)
		);

		CREATE TABLE IF NOT EXISTS listings (
			id                  TEXT PRIMARY KEY,
			owner_id            TEXT NOT NULL,
			kind                TEXT NOT NULL,
			channel_id          TEXT NOT NULL,
			message_ids         TEXT NOT NULL DEFAULT '[]',
			created_at          INTEGER NOT NULL,
			last_bumped_at      INTEGER NOT NULL,
			last_interaction_at INTEGER NOT NULL,
			payload             BLOB,
			active              INTEGER NOT NULL DEFAULT 1,
			CHECK (last_bumped_at >= created_at)
		);

		CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id);
		CREATE INDEX IF NOT EXISTS idx_listings_active_interaction ON listings(active, last_interaction_at);
	`)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// DB returns the underlying database handle.
func (s *SQLite) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Ping verifies the database file is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLite) Close() {
	if s != nil && s.db != nil {
		_ = s.db.Close()
	}
}
