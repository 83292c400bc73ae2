// Package status synthesizes job-completed/job-failed events from
// finished jobs and enqueues derived jobs for any matching status hooks,
// reference-counting the captured output files those hooks read from.
package status

import (
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/detentsh/fisher/internal/queue"
	"github.com/detentsh/fisher/internal/registry"
	"github.com/detentsh/fisher/internal/worker"
)

const (
	eventCompleted = "job-completed"
	eventFailed    = "job-failed"
)

// SnapshotProvider returns the registry snapshot currently in effect.
// Supplied as a func, not a stored pointer, so fan-out always consults
// the latest snapshot even across a reload.
type SnapshotProvider func() *registry.Snapshot

// FanOut turns finished jobs into status-hook dispatch. Its Handle
// method is the worker pool's OutcomeHandler.
type FanOut struct {
	q        *queue.Queue
	snapshot SnapshotProvider
	logger   *slog.Logger
}

// New creates a FanOut bound to q and snapshot.
func New(q *queue.Queue, snapshot SnapshotProvider, logger *slog.Logger) *FanOut {
	return &FanOut{q: q, snapshot: snapshot, logger: logger}
}

// Handle is invoked once per finished job. It derives the outcome event,
// enqueues a status job for every matching hook, and releases the
// finished job's own parent (if it was itself a status job) after doing
// so.
func (f *FanOut) Handle(job *queue.Job, outcome worker.Outcome) {
	event := eventCompleted
	if !outcome.Success {
		event = eventFailed
	}

	hooks := f.snapshot().StatusHooksFor(event, job.ScriptName)

	if len(hooks) == 0 {
		f.removeOutcomeFiles(outcome)
	} else {
		f.dispatch(hooks, job.ScriptName, event, outcome)
	}

	if job.Release != nil {
		job.Release()
	}
}

func (f *FanOut) dispatch(hooks []*registry.Descriptor, sourceScript, event string, outcome worker.Outcome) {
	var remaining int32 = int32(len(hooks))
	release := func() {
		if atomic.AddInt32(&remaining, -1) == 0 {
			f.removeOutcomeFiles(outcome)
		}
	}

	env := statusEnv(sourceScript, event, outcome)

	for _, hook := range hooks {
		statusJob := &queue.Job{
			ID:         f.q.NextID(),
			ScriptName: hook.Name,
			ExecPath:   hook.ExecPath,
			Parallel:   hook.Parallel,
			Priority:   hook.Priority,
			Env:        env,
			Provenance: queue.Provenance{StatusParentOutcome: event},
			Release:    release,
		}
		if err := f.q.Enqueue(statusJob); err != nil {
			if f.logger != nil {
				f.logger.Error("dropping status job on drain", "hook", hook.Name, "error", err)
			}
			release()
			continue
		}
	}
}

func statusEnv(sourceScript, event string, outcome worker.Outcome) map[string]string {
	env := map[string]string{
		"FISHER_STATUS_EVENT":       event,
		"FISHER_STATUS_SCRIPT_NAME": sourceScript,
		"FISHER_STATUS_SUCCESS":     successFlag(outcome.Success),
		"FISHER_STATUS_STDOUT":      outcome.StdoutPath,
		"FISHER_STATUS_STDERR":      outcome.StderrPath,
	}
	if outcome.ExitCode != nil {
		env["FISHER_STATUS_EXIT_CODE"] = strconv.Itoa(*outcome.ExitCode)
	}
	if outcome.Signal != nil {
		env["FISHER_STATUS_SIGNAL"] = strconv.Itoa(*outcome.Signal)
	}
	return env
}

// successFlag preserves the documented (inverted-looking) convention:
// "1" if the script completed, "0" if it failed.
func successFlag(success bool) string {
	if success {
		return "1"
	}
	return "0"
}

func (f *FanOut) removeOutcomeFiles(outcome worker.Outcome) {
	if outcome.StdoutPath != "" {
		if err := os.Remove(outcome.StdoutPath); err != nil && !os.IsNotExist(err) && f.logger != nil {
			f.logger.Error("removing captured stdout", "path", outcome.StdoutPath, "error", err)
		}
	}
	if outcome.StderrPath != "" {
		if err := os.Remove(outcome.StderrPath); err != nil && !os.IsNotExist(err) && f.logger != nil {
			f.logger.Error("removing captured stderr", "path", outcome.StderrPath, "error", err)
		}
	}
}
