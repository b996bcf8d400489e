package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/mail-groomer/internal/core"
	"go.uber.org/zap"
)

// sqlCache holds the queries shared by the database/sql backends. Timestamps
// are stored as unix seconds so both dialects compare them the same way.
type sqlCache struct {
	db          *sql.DB
	logger      *zap.Logger
	name        string
	upsert      string
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func newSQLCache(db *sql.DB, name, upsert string, logger *zap.Logger, cleanupFreq time.Duration) *sqlCache {
	c := &sqlCache{
		db:          db,
		logger:      logger,
		name:        name,
		upsert:      upsert,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go c.startCleanupTask()
	}
	return c
}

// Get retrieves a cached verdict
func (c *sqlCache) Get(ctx context.Context, key string) (*core.Verdict, error) {
	var data string
	var expiresAt int64

	err := c.db.QueryRowContext(ctx, `
		SELECT verdict, expires_at
		FROM verdict_cache
		WHERE cache_key = ?
	`, key).Scan(&data, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	if time.Now().Unix() >= expiresAt {
		return nil, ErrExpired
	}

	return decodeVerdict([]byte(data))
}

// Set stores a verdict for ttl
func (c *sqlCache) Set(ctx context.Context, key string, verdict *core.Verdict, ttl time.Duration) error {
	data, err := encodeVerdict(verdict)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = c.db.ExecContext(ctx, c.upsert,
		key, string(data), verdict.Dangerous, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (c *sqlCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM verdict_cache
		WHERE cache_key = ?
	`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries
func (c *sqlCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM verdict_cache
		WHERE expires_at <= ?
	`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

func (c *sqlCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (c *sqlCache) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err = c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.String("backend", c.name), zap.Error(err))
			err = fmt.Errorf("failed to close %s database: %w", c.name, err)
		}
	})
	return err
}
