// Package supervisor owns the daemon's lifecycle: startup, hot reload on
// SIGUSR1, and graceful shutdown on SIGINT/SIGTERM.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/nightlyone/lockfile"

	"github.com/detentsh/fisher/internal/config"
	"github.com/detentsh/fisher/internal/httpapi"
	"github.com/detentsh/fisher/internal/queue"
	"github.com/detentsh/fisher/internal/ratelimit"
	"github.com/detentsh/fisher/internal/registry"
	"github.com/detentsh/fisher/internal/status"
	"github.com/detentsh/fisher/internal/worker"
)

const shutdownGrace = 10 * time.Second

// Supervisor runs one daemon instance end to end.
type Supervisor struct {
	flags   config.Flags
	changed config.Changed
	logger  *slog.Logger

	resolved *config.Resolved
	snapshot atomic.Pointer[registry.Snapshot]

	q       *queue.Queue
	pool    *worker.Pool
	fanout  *status.FanOut
	http    *httpapi.Server
	limiter *ratelimit.Limiter

	httpBindErrCh <-chan error

	lock lockfile.Lockfile
}

// New creates a Supervisor from the resolved CLI/config inputs. changed
// reports which CLI flags were explicitly set, for reload's "re-read
// config" step to apply the same precedence rules as startup.
func New(flags config.Flags, changed config.Changed, logger *slog.Logger) *Supervisor {
	return &Supervisor{flags: flags, changed: changed, logger: logger}
}

// Run starts the daemon and blocks until ctx is cancelled or a fatal
// startup error occurs. Returns nil on clean shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	resolved, err := config.Resolve(s.flags, s.changed)
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}
	s.resolved = resolved

	if err := s.acquireLock(); err != nil {
		return fmt.Errorf("acquiring daemon lock: %w", err)
	}
	defer s.releaseLock()

	snap, err := registry.Load(registry.ScanOptions{Root: resolved.ScriptsDir, Recursive: resolved.Recursive}, s.logger)
	if err != nil {
		return fmt.Errorf("loading script registry: %w", err)
	}
	s.snapshot.Store(snap)
	s.logger.Info("registry loaded", "scripts", snap.Len(), "root", resolved.ScriptsDir)

	capacity, window, err := ratelimit.ParseRate(resolved.RateLimit)
	if err != nil {
		return fmt.Errorf("parsing rate-limit: %w", err)
	}
	s.limiter = ratelimit.New(capacity, window)

	s.q = queue.New()
	s.fanout = status.New(s.q, s.currentSnapshot, s.logger)
	s.pool = worker.New(s.q, resolved.Env, s.fanout.Handle, s.logger)
	s.pool.Start(resolved.Threads)

	s.http = httpapi.New(httpapi.Config{
		Bind:          resolved.Bind,
		BehindProxies: resolved.BehindProxies,
		HealthEnabled: resolved.HealthEnabled,
		Limiter:       s.limiter,
		ExtraEnv:      resolved.Env,
	}, s.q, s.currentSnapshot, s.logger)
	s.http.SetMaxThreads(resolved.Threads)

	bindErrCh := s.http.Start()
	s.httpBindErrCh = bindErrCh
	select {
	case err := <-bindErrCh:
		if err != nil {
			return fmt.Errorf("starting HTTP listener: %w", err)
		}
	case <-time.After(100 * time.Millisecond):
		// No immediate bind failure; the listener goroutine keeps running.
	}

	s.logger.Info("fisher started", "bind", resolved.Bind, "threads", resolved.Threads)

	sig := newSignalWatcher()
	defer sig.stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-sig.shutdown():
			return s.shutdown()
		case <-sig.reload():
			s.reload()
		case err := <-s.httpBindErrCh:
			if err != nil {
				return fmt.Errorf("HTTP listener failed: %w", err)
			}
		}
	}
}

func (s *Supervisor) currentSnapshot() *registry.Snapshot {
	return s.snapshot.Load()
}

func (s *Supervisor) acquireLock() error {
	path := filepath.Join(filepath.Dir(s.resolved.ScriptsDir), ".fisher.lock")
	lock, err := lockfile.New(path)
	if err != nil {
		return err
	}
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("another fisher instance appears to be running (%s): %w", path, err)
	}
	s.lock = lock
	return nil
}

func (s *Supervisor) releaseLock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("releasing daemon lock", "error", err)
	}
}

// shutdown implements the default policy: stop accepting new requests,
// complete in-flight jobs, discard anything still queued, then exit.
// Child processes are never signaled.
func (s *Supervisor) shutdown() error {
	s.logger.Info("shutting down")
	s.http.SetDraining(true)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown", "error", err)
	}
	<-s.httpBindErrCh

	s.q.Drain(true)
	s.pool.Wait()

	s.logger.Info("shutdown complete")
	return nil
}
