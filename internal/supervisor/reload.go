package supervisor

import (
	"context"
	"time"

	"github.com/detentsh/fisher/internal/config"
	"github.com/detentsh/fisher/internal/httpapi"
	"github.com/detentsh/fisher/internal/ratelimit"
	"github.com/detentsh/fisher/internal/registry"
)

const reloadBindTimeout = 5 * time.Second

// reload re-reads the configuration file and script registry, swaps the
// bind address and worker count if they changed, and atomically swaps
// the registry snapshot. Any failure during these steps is logged and
// the previous state is retained; the daemon always leaves locked mode
// before returning.
func (s *Supervisor) reload() {
	s.http.SetLocked(true)
	defer s.http.SetLocked(false)

	s.logger.Info("reload starting")

	resolved, err := config.Resolve(s.flags, s.changed)
	if err != nil {
		s.logger.Error("reload: re-resolving configuration", "error", err)
		return
	}

	snap, err := registry.Load(registry.ScanOptions{Root: resolved.ScriptsDir, Recursive: resolved.Recursive}, s.logger)
	if err != nil {
		s.logger.Error("reload: reloading registry", "error", err)
		return
	}

	if resolved.RateLimit != s.resolved.RateLimit {
		capacity, window, err := ratelimit.ParseRate(resolved.RateLimit)
		if err != nil {
			s.logger.Error("reload: parsing rate-limit", "error", err)
			return
		}
		s.limiter = ratelimit.New(capacity, window)
	}

	if resolved.Bind != s.resolved.Bind || resolved.BehindProxies != s.resolved.BehindProxies || resolved.HealthEnabled != s.resolved.HealthEnabled {
		if err := s.restartHTTP(resolved); err != nil {
			s.logger.Error("reload: restarting HTTP listener", "error", err)
			return
		}
	}

	if resolved.Threads != s.resolved.Threads {
		s.pool.Resize(resolved.Threads)
		s.http.SetMaxThreads(resolved.Threads)
	}

	s.snapshot.Store(snap)
	s.resolved = resolved

	s.logger.Info("reload complete", "scripts", snap.Len())
}

func (s *Supervisor) restartHTTP(resolved *config.Resolved) error {
	ctx, cancel := context.WithTimeout(context.Background(), reloadBindTimeout)
	defer cancel()
	oldBindErrCh := s.httpBindErrCh
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	if oldBindErrCh != nil {
		<-oldBindErrCh
	}

	newServer := httpapi.New(httpapi.Config{
		Bind:          resolved.Bind,
		BehindProxies: resolved.BehindProxies,
		HealthEnabled: resolved.HealthEnabled,
		Limiter:       s.limiter,
		ExtraEnv:      resolved.Env,
	}, s.q, s.currentSnapshot, s.logger)
	newServer.SetMaxThreads(resolved.Threads)

	errCh := newServer.Start()
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-time.After(100 * time.Millisecond):
	}

	s.http = newServer
	s.httpBindErrCh = errCh
	return nil
}
