//go:build unix

package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// signalWatcher turns SIGINT/SIGTERM into a shutdown request and SIGUSR1
// into a reload request.
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
	signal.Notify(w.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	go func() {
		for {
			select {
			case sig := <-w.sigCh:
				switch sig {
				case syscall.SIGUSR1:
					w.reloadCh <- struct{}{}
				default:
					close(w.shutdownCh)
					return
				}
			case <-w.done:
				return
			}
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
