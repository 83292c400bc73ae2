package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrDraining is returned by Enqueue once the queue has been told to
// drain (on shutdown); the HTTP layer turns this into a 503.
var ErrDraining = errors.New("queue is draining")

// Counts is a point-in-time snapshot for the /health endpoint.
type Counts struct {
	QueuedJobs  int
	BusyThreads int
}

// Queue is a thread-safe, multi-producer multi-consumer priority queue
// ordered by (priority desc, seq asc), with per-script serialization for
// scripts marked non-parallel.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	jobs []*Job // kept sorted by (priority desc, seq asc)

	running map[string]bool // script name -> currently executing (non-parallel only)
	busy    int             // count of workers currently executing a job

	nextSeq   int64
	nextJobID int64

	draining bool
}

// New creates an empty Queue.
func New() *Queue {
	q := &Queue{running: make(map[string]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// NextID allocates the next monotonically increasing job ID. Exposed
// separately from Enqueue so callers (the HTTP front-end, status
// fan-out) can stamp a job's ID while building the Job, before it is
// enqueued.
func (q *Queue) NextID() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextJobID++
	return q.nextJobID
}

// Enqueue inserts job into the queue at its priority/seq position and
// wakes one waiter. Seq assignment happens here, under the same lock
// that orders insertion, so seq assignment and queue membership are
// causally consistent.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return ErrDraining
	}

	q.nextSeq++
	job.Seq = q.nextSeq

	idx := sort.Search(len(q.jobs), func(i int) bool {
		return less(job, q.jobs[i])
	})
	q.jobs = append(q.jobs, nil)
	copy(q.jobs[idx+1:], q.jobs[idx:])
	q.jobs[idx] = job

	q.cond.Broadcast()
	return nil
}

// less reports whether a sorts strictly before b: higher priority first,
// then lower seq first.
func less(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Seq < b.Seq
}

// PopRunnable blocks until a runnable job is available (a job whose
// script is either parallel or not currently running) or ctx is
// cancelled or the queue is draining and empty. It returns the highest
// priority runnable job, marking its script as running if non-parallel.
func (q *Queue) PopRunnable(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stopped := make(chan struct{})
	defer close(stopped)
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				q.cond.Broadcast()
			case <-stopped:
			}
		}()
	}

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		for i, j := range q.jobs {
			if j.Parallel || !q.running[j.ScriptName] {
				q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
				if !j.Parallel {
					q.running[j.ScriptName] = true
				}
				q.busy++
				return j, nil
			}
		}

		if q.draining && len(q.jobs) == 0 {
			return nil, ErrDraining
		}

		q.cond.Wait()
	}
}

// MarkDone clears the running flag for a non-parallel script and signals
// waiters. Safe to call for parallel scripts too (no-op on the flag).
func (q *Queue) MarkDone(scriptName string, parallel bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !parallel {
		delete(q.running, scriptName)
	}
	q.busy--
	q.cond.Broadcast()
}

// SnapshotCounts returns the current queued-job and busy-worker counts.
func (q *Queue) SnapshotCounts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Counts{QueuedJobs: len(q.jobs), BusyThreads: q.busy}
}

// Drain refuses further enqueues and wakes all waiters. If discardQueued
// is true, already-queued jobs are dropped immediately (PopRunnable
// returns ErrDraining for them); otherwise queued jobs continue to be
// served until the queue empties naturally.
func (q *Queue) Drain(discardQueued bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.draining = true
	if discardQueued {
		q.jobs = nil
	}
	q.cond.Broadcast()
}

// IsDraining reports whether Drain has been called.
func (q *Queue) IsDraining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}
