// Package identity provides anonymous per-device identity and the thread
// binding that follows it.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/neonnexus-chat/internal/domain"
	"github.com/ashureev/neonnexus-chat/internal/store"
)

const (
	DeviceCookieName = "neonnexus_device_id"
	deviceCookieAge  = 30 * 24 * time.Hour
	// touchInterval limits last_seen_at writes to one per device per interval.
	touchInterval = time.Minute
	touchTimeout  = 5 * time.Second
)

type contextKey int

const (
	deviceIDKey contextKey = iota
	threadIDKey
)

var deviceIDPattern = regexp.MustCompile(`^dev_[a-f0-9]{32}$`)

// DeviceIDFromContext extracts the device ID from the request context.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// ThreadIDFromContext extracts the device's current thread ID from the request context.
func ThreadIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(threadIDKey).(string); ok {
		return v
	}
	return ""
}

// WithIdentity returns a context carrying deviceID and threadID.
func WithIdentity(ctx context.Context, deviceID, threadID string) context.Context {
	ctx = context.WithValue(ctx, deviceIDKey, deviceID)
	return context.WithValue(ctx, threadIDKey, threadID)
}

func generateDeviceID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	return "dev_" + hex.EncodeToString(buf), nil
}

func isValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

func setDeviceCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceCookieAge.Seconds()),
		Expires:  time.Now().Add(deviceCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateDeviceID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(DeviceCookieName); err == nil && isValidDeviceID(c.Value) {
		setDeviceCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateDeviceID()
	if err != nil {
		return "", err
	}
	setDeviceCookie(w, id, isDev)
	return id, nil
}

// EnsureThread returns the thread bound to deviceID, creating one if absent.
func EnsureThread(ctx context.Context, repo store.Repository, deviceID string) (*domain.Thread, bool, error) {
	thread, err := repo.GetThread(ctx, deviceID)
	if err != nil {
		return nil, false, fmt.Errorf("get thread: %w", err)
	}
	if thread != nil {
		return thread, false, nil
	}

	thread, err = newThread(ctx, repo, deviceID)
	if err != nil {
		return nil, false, err
	}
	return thread, true, nil
}

// RotateThread binds a fresh thread to deviceID and returns it.
func RotateThread(ctx context.Context, repo store.Repository, deviceID string) (*domain.Thread, error) {
	return newThread(ctx, repo, deviceID)
}

func newThread(ctx context.Context, repo store.Repository, deviceID string) (*domain.Thread, error) {
	now := time.Now()
	thread := &domain.Thread{
		DeviceID:   deviceID,
		ThreadID:   domain.NewThreadID(),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := repo.UpsertThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

func touchAsync(repo store.Repository, thread *domain.Thread) {
	if thread.Idle(time.Now()) < touchInterval {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := repo.TouchThread(ctx, thread.DeviceID, time.Now()); err != nil {
			slog.Warn("Failed to touch thread", "device_id", thread.DeviceID, "error", err)
		}
	}()
}

// Middleware injects the anonymous device ID and its thread ID.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := getOrCreateDeviceID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			thread, created, err := EnsureThread(r.Context(), repo, deviceID)
			if err != nil {
				slog.Error("Failed to resolve thread", "device_id", deviceID, "error", err)
				http.Error(w, `{"error":"failed to initialize chat thread"}`, http.StatusInternalServerError)
				return
			}
			if created {
				slog.Info("Thread created", "device_id", deviceID, "thread_id", thread.ThreadID)
			} else {
				touchAsync(repo, thread)
			}

			ctx := WithIdentity(r.Context(), deviceID, thread.ThreadID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
