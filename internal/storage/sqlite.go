package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	logx "relaybot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed (
	id TEXT PRIMARY KEY,
	at TEXT NOT NULL
);`

type sqliteJournal struct {
	log logx.Logger

	mu sync.RWMutex
	db *sql.DB // nil once closed
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (*sqliteJournal, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteJournal{db: db, log: log}, nil
}

func (s *sqliteJournal) Load(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM processed ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteJournal) Append(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed(id, at) VALUES(?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteJournal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
