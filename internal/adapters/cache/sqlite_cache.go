package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteCache is a SQLite implementation of the VerdictCache interface
type SQLiteCache struct {
	*sqlCache
}

// NewSQLiteCache creates a new SQLite cache. dbPath may be ":memory:".
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// every connection to ":memory:" is its own database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS verdict_cache (
			cache_key TEXT PRIMARY KEY,
			verdict TEXT NOT NULL,
			dangerous BOOLEAN,
			created_at INTEGER,
			expires_at INTEGER
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_verdict_expires_at ON verdict_cache(expires_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	upsert := `
		INSERT OR REPLACE INTO verdict_cache (cache_key, verdict, dangerous, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`
	return &SQLiteCache{newSQLCache(db, "sqlite", upsert, logger, cleanupFreq)}, nil
}
