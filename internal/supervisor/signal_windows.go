//go:build windows

package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// signalWatcher turns SIGINT/SIGTERM into a shutdown request. Windows has
// no SIGUSR1 equivalent wired up here, so reload() never fires; hot
// reload on this platform is unreachable through signals.
type signalWatcher struct {
	shutdownCh chan struct{}
	reloadCh   chan struct{}
	sigCh      chan os.Signal
	done       chan struct{}
}

func newSignalWatcher() *signalWatcher {
	w := &signalWatcher{
		shutdownCh: make(chan struct{}),
		reloadCh:   make(chan struct{}),
		sigCh:      make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
	signal.Notify(w.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-w.sigCh:
			close(w.shutdownCh)
		case <-w.done:
		}
	}()

	return w
}

func (w *signalWatcher) shutdown() <-chan struct{} { return w.shutdownCh }
func (w *signalWatcher) reload() <-chan struct{}   { return w.reloadCh }

func (w *signalWatcher) stop() {
	signal.Stop(w.sigCh)
	close(w.done)
}
