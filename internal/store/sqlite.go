package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/neonnexus-chat/internal/domain"
	"github.com/ashureev/neonnexus-chat/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS threads (
		device_id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_threads_last_seen ON threads(last_seen_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetThread retrieves the thread bound to a device.
func (s *SQLiteStore) GetThread(ctx context.Context, deviceID string) (*domain.Thread, error) {
	query := `
		SELECT device_id, thread_id, created_at, last_seen_at
		FROM threads WHERE device_id = ?`

	row := s.db.QueryRowContext(ctx, query, deviceID)

	var thread domain.Thread
	var createdAt, lastSeen int64

	err := row.Scan(&thread.DeviceID, &thread.ThreadID, &createdAt, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread row: %w", err)
	}

	thread.CreatedAt = time.Unix(createdAt, 0)
	thread.LastSeenAt = time.Unix(lastSeen, 0)

	return &thread, nil
}

// UpsertThread creates or replaces the thread bound to a device. The original
// created_at is replaced too, since a new thread id starts a new conversation.
func (s *SQLiteStore) UpsertThread(ctx context.Context, thread *domain.Thread) error {
	if !domain.ValidThreadID(thread.ThreadID) {
		return fmt.Errorf("upsert thread: invalid thread id %q", thread.ThreadID)
	}

	query := `
	INSERT INTO threads (device_id, thread_id, created_at, last_seen_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		thread_id = excluded.thread_id,
		created_at = excluded.created_at,
		last_seen_at = excluded.last_seen_at`

	return shared.RetryOnConflict(ctx, s.retry, "upsert thread", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			thread.DeviceID, thread.ThreadID,
			thread.CreatedAt.Unix(), thread.LastSeenAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert thread: %w", err)
		}
		return nil
	})
}

// TouchThread updates the last_seen_at timestamp of a device's thread.
func (s *SQLiteStore) TouchThread(ctx context.Context, deviceID string, lastSeen time.Time) error {
	query := `UPDATE threads SET last_seen_at = ? WHERE device_id = ?`

	return shared.RetryOnConflict(ctx, s.retry, "touch thread", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), deviceID)
		if err != nil {
			return fmt.Errorf("update last_seen: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Warn("TouchThread affected 0 rows", "device_id", deviceID)
		}
		return nil
	})
}

// DeleteThread removes a device's thread binding.
func (s *SQLiteStore) DeleteThread(ctx context.Context, deviceID string) error {
	query := `DELETE FROM threads WHERE device_id = ?`

	return shared.RetryOnConflict(ctx, s.retry, "delete thread", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, query, deviceID); err != nil {
			return fmt.Errorf("delete thread: %w", err)
		}
		return nil
	})
}

// CleanupStaleThreads removes bindings not seen within ttl.
func (s *SQLiteStore) CleanupStaleThreads(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `DELETE FROM threads WHERE last_seen_at < ?`

	var deleted int64
	err := shared.RetryOnConflict(ctx, s.retry, "cleanup stale threads", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, query, threshold)
		if err != nil {
			return fmt.Errorf("cleanup stale threads: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
