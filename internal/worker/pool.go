// Package worker implements the bounded pool of OS threads that drain
// the priority queue, executing each job's script in a fresh sandbox
// directory with a filtered environment.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/detentsh/fisher/internal/obs"
	"github.com/detentsh/fisher/internal/queue"
)

// OutcomeHandler is invoked once per finished job, on the worker
// goroutine that ran it. Implementations (the status fan-out) must not
// block for long; they own stdout/stderr cleanup from this point on.
type OutcomeHandler func(job *queue.Job, outcome Outcome)

// Pool runs a resizable set of worker goroutines against a shared Queue.
type Pool struct {
	q         *queue.Queue
	onOutcome OutcomeHandler
	extraEnv  map[string]string
	logger    *slog.Logger

	mu          sync.Mutex
	count       int
	pendingExit int
	wg          sync.WaitGroup
}

// New creates a Pool. extraEnv holds the operator-configured [env]
// extras merged into every script's environment.
func New(q *queue.Queue, extraEnv map[string]string, onOutcome OutcomeHandler, logger *slog.Logger) *Pool {
	return &Pool{q: q, extraEnv: extraEnv, onOutcome: onOutcome, logger: logger}
}

// Start launches n worker goroutines.
func (p *Pool) Start(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.spawnLocked()
	}
}

// Resize adjusts the number of live workers to target. Growing spawns
// new goroutines immediately; shrinking marks the surplus to exit: the
// next workers to finish a job exit instead of picking up another. A
// worker blocked waiting for work does not exit until it has run one
// more job.
func (p *Pool) Resize(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	diff := target - (p.count - p.pendingExit)
	if diff > 0 {
		for i := 0; i < diff; i++ {
			p.spawnLocked()
		}
	} else if diff < 0 {
		p.pendingExit += -diff
	}
}

// spawnLocked must be called with p.mu held.
func (p *Pool) spawnLocked() {
	p.count++
	p.wg.Add(1)
	go p.run()
}

// Wait blocks until every worker goroutine has exited, i.e. after the
// queue has been drained (see Queue.Drain).
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	defer obs.RecoverAndReport()
	for {
		job, err := p.q.PopRunnable(context.Background())
		if err != nil {
			return
		}

		outcome := p.execute(job)
		p.q.MarkDone(job.ScriptName, job.Parallel)
		if p.onOutcome != nil {
			p.onOutcome(job, outcome)
		}

		if p.shouldExit() {
			return
		}
	}
}

func (p *Pool) shouldExit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingExit > 0 {
		p.pendingExit--
		p.count--
		return true
	}
	return false
}

// execute runs one job's script to completion in a fresh sandbox. It
// never returns an error: spawn failures are reported as a failed
// Outcome so they flow through status fan-out like any other failure,
// per the worker execution error policy.
func (p *Pool) execute(job *queue.Job) Outcome {
	sandboxDir, err := os.MkdirTemp("", "fisher-sandbox-")
	if err != nil {
		return p.spawnFailure(job, fmt.Errorf("creating sandbox: %w", err))
	}
	defer os.RemoveAll(sandboxDir)

	stdout, err := os.CreateTemp("", "fisher-stdout-")
	if err != nil {
		return p.spawnFailure(job, fmt.Errorf("creating stdout capture: %w", err))
	}
	defer stdout.Close()

	stderr, err := os.CreateTemp("", "fisher-stderr-")
	if err != nil {
		return p.spawnFailure(job, fmt.Errorf("creating stderr capture: %w", err))
	}
	defer stderr.Close()

	cmd := exec.Command(job.ExecPath) //nolint:gosec // ExecPath comes from the registry scan, not user input
	cmd.Dir = sandboxDir
	cmd.Env = buildEnv(sandboxDir, p.extraEnv, job.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setupProcessGroup(cmd)

	runErr := cmd.Run()

	outcome := Outcome{
		ScriptName: job.ScriptName,
		StdoutPath: stdout.Name(),
		StderrPath: stderr.Name(),
	}

	if !job.Provenance.IsStatus() && job.RequestBodyPath != "" {
		if rmErr := os.Remove(job.RequestBodyPath); rmErr != nil && !os.IsNotExist(rmErr) {
			p.logf(job, "removing request body", rmErr)
		}
	}

	if runErr == nil {
		code := 0
		outcome.ExitCode = &code
		outcome.Success = true
		return outcome
	}

	exitErr, ok := runErr.(*exec.ExitError)
	if !ok {
		// Could not even start the process (e.g. permission denied,
		// binary vanished between scan and spawn).
		p.logf(job, "spawning script", runErr)
		code := -1
		outcome.ExitCode = &code
		outcome.Success = false
		return outcome
	}

	outcome.ExitCode, outcome.Signal = exitInfo(exitErr.ProcessState)
	outcome.Success = outcome.ExitCode != nil && *outcome.ExitCode == 0
	return outcome
}

func (p *Pool) spawnFailure(job *queue.Job, err error) Outcome {
	p.logf(job, "preparing sandbox", err)
	code := -1
	return Outcome{ScriptName: job.ScriptName, ExitCode: &code, Success: false}
}

func (p *Pool) logf(job *queue.Job, action string, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error(action+" failed", "script", job.ScriptName, "error", err)
}
