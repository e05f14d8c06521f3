package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/neonnexus-chat/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "chat.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetThreadMissing(t *testing.T) {
	s := newTestStore(t)

	thread, err := s.GetThread(context.Background(), "device-unknown")
	if err != nil {
		t.Fatalf("GetThread error: %v", err)
	}
	if thread != nil {
		t.Errorf("expected nil thread, got %+v", thread)
	}
}

func TestUpsertAndGetThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := s.UpsertThread(ctx, &domain.Thread{
		DeviceID:   "device-1",
		ThreadID:   "thread-a",
		CreatedAt:  now,
		LastSeenAt: now,
	}); err != nil {
		t.Fatalf("UpsertThread error: %v", err)
	}

	got, err := s.GetThread(ctx, "device-1")
	if err != nil || got == nil {
		t.Fatalf("GetThread = %v, %v", got, err)
	}
	if got.ThreadID != "thread-a" || !got.CreatedAt.Equal(now) || !got.LastSeenAt.Equal(now) {
		t.Errorf("unexpected thread %+v", got)
	}

	// Rotating the thread replaces the binding.
	if err := s.UpsertThread(ctx, &domain.Thread{
		DeviceID:   "device-1",
		ThreadID:   "thread-b",
		CreatedAt:  now.Add(time.Hour),
		LastSeenAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("UpsertThread rotate error: %v", err)
	}
	got, _ = s.GetThread(ctx, "device-1")
	if got.ThreadID != "thread-b" {
		t.Errorf("expected rotated thread, got %q", got.ThreadID)
	}
}

func TestUpsertThreadRejectsInvalidID(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertThread(context.Background(), &domain.Thread{DeviceID: "device-1", ThreadID: "bad id!"})
	if err == nil {
		t.Fatal("expected error for invalid thread id")
	}
}

func TestThreadIDUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertThread(ctx, &domain.Thread{DeviceID: "device-1", ThreadID: "thread-a", CreatedAt: now, LastSeenAt: now}); err != nil {
		t.Fatalf("UpsertThread error: %v", err)
	}
	if err := s.UpsertThread(ctx, &domain.Thread{DeviceID: "device-2", ThreadID: "thread-a", CreatedAt: now, LastSeenAt: now}); err == nil {
		t.Error("expected unique constraint violation for shared thread id")
	}
}

func TestTouchAndCleanupStaleThreads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	for _, th := range []domain.Thread{
		{DeviceID: "device-old", ThreadID: "thread-old", CreatedAt: old, LastSeenAt: old},
		{DeviceID: "device-fresh", ThreadID: "thread-fresh", CreatedAt: old, LastSeenAt: old},
	} {
		if err := s.UpsertThread(ctx, &th); err != nil {
			t.Fatalf("UpsertThread error: %v", err)
		}
	}

	if err := s.TouchThread(ctx, "device-fresh", time.Now()); err != nil {
		t.Fatalf("TouchThread error: %v", err)
	}
	if err := s.TouchThread(ctx, "device-missing", time.Now()); err != nil {
		t.Errorf("TouchThread on missing device should not fail, got %v", err)
	}

	deleted, err := s.CleanupStaleThreads(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupStaleThreads error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 stale thread deleted, got %d", deleted)
	}
	if got, _ := s.GetThread(ctx, "device-old"); got != nil {
		t.Errorf("expected stale thread to be gone, got %+v", got)
	}
	if got, _ := s.GetThread(ctx, "device-fresh"); got == nil {
		t.Error("expected fresh thread to remain")
	}
}

func TestDeleteThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertThread(ctx, &domain.Thread{DeviceID: "device-1", ThreadID: "thread-a", CreatedAt: now, LastSeenAt: now}); err != nil {
		t.Fatalf("UpsertThread error: %v", err)
	}
	if err := s.DeleteThread(ctx, "device-1"); err != nil {
		t.Fatalf("DeleteThread error: %v", err)
	}
	if got, _ := s.GetThread(ctx, "device-1"); got != nil {
		t.Errorf("expected thread deleted, got %+v", got)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping error: %v", err)
	}
}
