package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/neonnexus-chat/internal/domain"
)

// memRepo is an in-memory store.Repository.
type memRepo struct {
	mu      sync.Mutex
	threads map[string]domain.Thread
	touched chan string
	getErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{threads: make(map[string]domain.Thread), touched: make(chan string, 8)}
}

func (m *memRepo) GetThread(_ context.Context, deviceID string) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	t, ok := m.threads[deviceID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memRepo) UpsertThread(_ context.Context, t *domain.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[t.DeviceID] = *t
	return nil
}

func (m *memRepo) TouchThread(_ context.Context, deviceID string, at time.Time) error {
	m.mu.Lock()
	t := m.threads[deviceID]
	t.LastSeenAt = at
	m.threads[deviceID] = t
	m.mu.Unlock()
	m.touched <- deviceID
	return nil
}

func (m *memRepo) DeleteThread(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, deviceID)
	return nil
}

func (m *memRepo) CleanupStaleThreads(context.Context, time.Duration) (int64, error) { return 0, nil }
func (m *memRepo) Ping(context.Context) error                                        { return nil }
func (m *memRepo) Close() error                                                      { return nil }

func captureIdentity(t *testing.T, repo *memRepo, req *http.Request) (deviceID, threadID string, rec *httptest.ResponseRecorder) {
	t.Helper()
	handler := Middleware(repo, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deviceID = DeviceIDFromContext(r.Context())
		threadID = ThreadIDFromContext(r.Context())
	}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return deviceID, threadID, rec
}

func TestMiddlewareCreatesDeviceAndThread(t *testing.T) {
	repo := newMemRepo()
	deviceID, threadID, rec := captureIdentity(t, repo, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

	if !isValidDeviceID(deviceID) {
		t.Fatalf("expected generated device id, got %q", deviceID)
	}
	if !domain.ValidThreadID(threadID) {
		t.Fatalf("expected valid thread id, got %q", threadID)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DeviceCookieName || cookies[0].Value != deviceID {
		t.Errorf("expected device cookie, got %+v", cookies)
	}
	if cookies[0].Secure {
		t.Error("expected insecure cookie in development")
	}
	if stored := repo.threads[deviceID]; stored.ThreadID != threadID {
		t.Errorf("expected thread to be persisted, got %+v", stored)
	}
}

func TestMiddlewareReusesThreadForKnownDevice(t *testing.T) {
	repo := newMemRepo()
	deviceID, threadID, _ := captureIdentity(t, repo, httptest.NewRequest(http.MethodGet, "/", nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: deviceID})
	gotDevice, gotThread, _ := captureIdentity(t, repo, req)

	if gotDevice != deviceID || gotThread != threadID {
		t.Errorf("expected %s/%s, got %s/%s", deviceID, threadID, gotDevice, gotThread)
	}
}

func TestMiddlewareReplacesInvalidCookie(t *testing.T) {
	repo := newMemRepo()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "../../etc/passwd"})

	deviceID, _, _ := captureIdentity(t, repo, req)
	if deviceID == "../../etc/passwd" || !isValidDeviceID(deviceID) {
		t.Errorf("expected a fresh device id, got %q", deviceID)
	}
}

func TestMiddlewareTouchesIdleThread(t *testing.T) {
	repo := newMemRepo()
	old := time.Now().Add(-time.Hour)
	repo.threads["dev_0123456789abcdef0123456789abcdef"] = domain.Thread{
		DeviceID:   "dev_0123456789abcdef0123456789abcdef",
		ThreadID:   "thread-old",
		CreatedAt:  old,
		LastSeenAt: old,
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "dev_0123456789abcdef0123456789abcdef"})
	_, threadID, _ := captureIdentity(t, repo, req)
	if threadID != "thread-old" {
		t.Fatalf("expected existing thread, got %q", threadID)
	}

	select {
	case id := <-repo.touched:
		if id != "dev_0123456789abcdef0123456789abcdef" {
			t.Errorf("touched unexpected device %q", id)
		}
	case <-time.After(time.Second):
		t.Error("expected idle thread to be touched")
	}
}

func TestMiddlewareStoreFailure(t *testing.T) {
	repo := newMemRepo()
	repo.getErr = errors.New("disk gone")

	called := false
	handler := Middleware(repo, false)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if called {
		t.Error("expected handler not to run")
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRotateThread(t *testing.T) {
	repo := newMemRepo()
	ctx := context.Background()

	first, created, err := EnsureThread(ctx, repo, "dev_a")
	if err != nil || !created {
		t.Fatalf("EnsureThread = %v, created=%v", err, created)
	}
	rotated, err := RotateThread(ctx, repo, "dev_a")
	if err != nil {
		t.Fatalf("RotateThread error: %v", err)
	}
	if rotated.ThreadID == first.ThreadID {
		t.Error("expected a new thread id")
	}
	again, created, _ := EnsureThread(ctx, repo, "dev_a")
	if created || again.ThreadID != rotated.ThreadID {
		t.Errorf("expected rotated thread to persist, got %+v created=%v", again, created)
	}
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if got := IPFromRequest(req); got != "10.1.2.3" {
		t.Errorf("IPFromRequest() = %q", got)
	}
	req.RemoteAddr = "no-port"
	if got := IPFromRequest(req); got != "no-port" {
		t.Errorf("IPFromRequest() = %q", got)
	}
}
