package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/detentsh/fisher/internal/queue"
	"github.com/detentsh/fisher/internal/ratelimit"
	"github.com/detentsh/fisher/internal/registry"
)

func newTestServer(t *testing.T, descs ...*registry.Descriptor) (*Server, *queue.Queue) {
	t.Helper()
	byName := make(map[string]*registry.Descriptor)
	for _, d := range descs {
		byName[d.Name] = d
	}
	snap := registry.NewSnapshot(byName)
	q := queue.New()
	s := New(Config{
		HealthEnabled: true,
		Limiter:       ratelimit.New(2, time.Minute),
	}, q, func() *registry.Snapshot { return snap }, nil)
	s.SetMaxThreads(4)
	return s, q
}

func TestHandleHook_UnknownScriptReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/hook/missing.sh", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleHook_StandaloneSecretAcceptsAndEnqueues(t *testing.T) {
	desc := &registry.Descriptor{
		Name: "deploy.sh", ExecPath: "/bin/deploy.sh", Parallel: true,
		Providers: []registry.ProviderConfig{{Kind: "standalone", Secret: "shh"}},
	}
	s, q := newTestServer(t, desc)

	req := httptest.NewRequest(http.MethodPost, "/hook/deploy.sh", nil)
	req.Header.Set("X-Fisher-Secret", "shh")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if counts := q.SnapshotCounts(); counts.QueuedJobs != 1 {
		t.Fatalf("expected 1 queued job, got %+v", counts)
	}
}

func TestHandleHook_WrongSecretRejectsAndDebitsRateLimit(t *testing.T) {
	desc := &registry.Descriptor{
		Name: "deploy.sh", ExecPath: "/bin/deploy.sh", Parallel: true,
		Providers: []registry.ProviderConfig{{Kind: "standalone", Secret: "shh"}},
	}
	s, q := newTestServer(t, desc)

	req := httptest.NewRequest(http.MethodPost, "/hook/deploy.sh", nil)
	req.Header.Set("X-Fisher-Secret", "wrong")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if counts := q.SnapshotCounts(); counts.QueuedJobs != 0 {
		t.Fatalf("expected no job enqueued, got %+v", counts)
	}
}

func TestHandleHook_RateLimitExhaustionReturns429(t *testing.T) {
	desc := &registry.Descriptor{
		Name: "deploy.sh", ExecPath: "/bin/deploy.sh", Parallel: true,
		Providers: []registry.ProviderConfig{{Kind: "standalone", Secret: "shh"}},
	}
	s, _ := newTestServer(t, desc)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/hook/deploy.sh", nil)
		req.Header.Set("X-Fisher-Secret", "wrong")
		w := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 on attempt %d, got %d", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/hook/deploy.sh", nil)
	req.Header.Set("X-Fisher-Secret", "wrong")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestHandleHook_LockedReturns503(t *testing.T) {
	s, _ := newTestServer(t)
	s.SetLocked(true)

	req := httptest.NewRequest(http.MethodPost, "/hook/anything.sh", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandleHealth_DisabledReturns403(t *testing.T) {
	q := queue.New()
	s := New(Config{HealthEnabled: false}, q, func() *registry.Snapshot { return registry.NewSnapshot(nil) }, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestHandleHealth_EnabledReportsCounts(t *testing.T) {
	s, q := newTestServer(t)
	if err := q.Enqueue(&queue.Job{ID: 1, ScriptName: "x", Parallel: true}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
