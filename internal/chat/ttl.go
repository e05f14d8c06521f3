package chat

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// ThreadPruner deletes thread bindings that have not been seen within ttl.
type ThreadPruner interface {
	CleanupStaleThreads(ctx context.Context, ttl time.Duration) (int64, error)
}

// StartTTLWorker runs a background goroutine that periodically evicts idle
// controllers and prunes stale thread bindings. pruner may be nil.
func StartTTLWorker(ctx context.Context, reg *Registry, pruner ThreadPruner, ttl time.Duration) {
	startTTLWorker(ctx, reg, pruner, ttl, ttlWorkerInterval)
}

func startTTLWorker(ctx context.Context, reg *Registry, pruner ThreadPruner, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepOnce(ctx, reg, pruner, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOnce(ctx context.Context, reg *Registry, pruner ThreadPruner, ttl time.Duration) {
	if removed := reg.Sweep(ttl, time.Now()); len(removed) > 0 {
		slog.Info("TTL worker evicted idle chat controllers", "count", len(removed))
	}

	if pruner == nil {
		return
	}
	// Bindings outlive controllers so a returning device resumes its thread.
	deleted, err := pruner.CleanupStaleThreads(ctx, 7*24*time.Hour)
	if err != nil {
		slog.Error("TTL worker failed to prune stale threads", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("TTL worker pruned stale threads", "count", deleted)
	}
}
