// Package httpapi is the HTTP front-end: it routes webhook deliveries
// through the provider pipeline and onto the queue, and serves the
// operator-facing health endpoint.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/detentsh/fisher/internal/queue"
	"github.com/detentsh/fisher/internal/ratelimit"
	"github.com/detentsh/fisher/internal/registry"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
	maxHeaderBytes    = 1 << 20

	// maxBodySize bounds a single webhook delivery body. Not specified
	// precisely by the script ABI; chosen generously for CI/webhook
	// payloads while still bounding memory per request.
	maxBodySize = 10 * 1024 * 1024
)

// SnapshotProvider returns the registry snapshot currently in effect.
type SnapshotProvider func() *registry.Snapshot

// Config configures a Server.
type Config struct {
	Bind          string
	BehindProxies int
	HealthEnabled bool
	Limiter       *ratelimit.Limiter
	ExtraEnv      map[string]string
}

// Server is the HTTP front-end. Its lifecycle (Start/Shutdown) is owned
// by the supervisor, which replaces it wholesale when [http] settings
// change on reload.
type Server struct {
	cfg      Config
	queue    *queue.Queue
	snapshot SnapshotProvider
	logger   *slog.Logger

	httpServer *http.Server

	locked     atomic.Bool
	draining   atomic.Bool
	maxThreads atomic.Int64
}

// New builds a Server bound to q and snapshot. It does not start
// listening until Start is called.
func New(cfg Config, q *queue.Queue, snapshot SnapshotProvider, logger *slog.Logger) *Server {
	s := &Server{cfg: cfg, queue: q, snapshot: snapshot, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/hook/{name}", s.handleHook)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              cfg.Bind,
		Handler:           securityHeaders(s.logRequests(mux)),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	return s
}

// Start begins listening in a background goroutine. Bind failures are
// reported on the returned channel; a nil value means the listener was
// later closed via Shutdown.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		errCh <- err
	}()
	return errCh
}

// Shutdown gracefully stops the listener, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SetLocked toggles the reload-locked state: new /hook/* requests are
// refused with 503 while locked, but /health keeps responding.
func (s *Server) SetLocked(locked bool) { s.locked.Store(locked) }

// SetDraining toggles the shutdown-draining state, which also refuses
// new /hook/* requests with 503.
func (s *Server) SetDraining(draining bool) { s.draining.Store(draining) }

// SetMaxThreads records the current worker pool size for /health
// reporting.
func (s *Server) SetMaxThreads(n int) { s.maxThreads.Store(int64(n)) }

func (s *Server) unavailable() bool {
	return s.locked.Load() || s.draining.Load()
}
