// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/neonnexus-chat/internal/domain"
)

// Repository defines the interface for persisting device-to-thread bindings.
type Repository interface {
	// GetThread retrieves the thread bound to a device. It returns nil, nil
	// when the device has no thread yet.
	GetThread(ctx context.Context, deviceID string) (*domain.Thread, error)

	// UpsertThread creates or replaces the thread bound to a device.
	UpsertThread(ctx context.Context, thread *domain.Thread) error

	// TouchThread updates the last_seen_at timestamp of a device's thread.
	TouchThread(ctx context.Context, deviceID string, lastSeen time.Time) error

	// DeleteThread removes a device's thread binding.
	DeleteThread(ctx context.Context, deviceID string) error

	// CleanupStaleThreads removes bindings not seen within ttl.
	CleanupStaleThreads(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
