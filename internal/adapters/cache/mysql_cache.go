package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLCache is a MySQL implementation of the VerdictCache interface
type MySQLCache struct {
	*sqlCache
}

// NewMySQLCache creates a new MySQL cache
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS verdict_cache (
			cache_key CHAR(64) PRIMARY KEY,
			verdict MEDIUMTEXT NOT NULL,
			dangerous BOOLEAN,
			created_at BIGINT,
			expires_at BIGINT,
			INDEX idx_verdict_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	upsert := `
		INSERT INTO verdict_cache (cache_key, verdict, dangerous, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			verdict = VALUES(verdict),
			dangerous = VALUES(dangerous),
			created_at = VALUES(created_at),
			expires_at = VALUES(expires_at)
	`
	return &MySQLCache{newSQLCache(db, "mysql", upsert, logger, cleanupFreq)}, nil
}
