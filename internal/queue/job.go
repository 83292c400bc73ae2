// Package queue implements the priority queue that orders jobs by
// (priority desc, arrival seq asc) while enforcing per-script
// serialization for scripts marked non-parallel.
package queue

import "time"

// Provenance records why a job was created.
type Provenance struct {
	// Webhook is set when the job came from an HTTP delivery.
	Webhook string
	// StatusParentOutcome is set when the job is a synthesized status
	// job; it names the outcome event ("job-completed"/"job-failed")
	// that produced it.
	StatusParentOutcome string
}

// IsStatus reports whether this job was synthesized by the status
// fan-out rather than created from an HTTP delivery.
func (p Provenance) IsStatus() bool { return p.StatusParentOutcome != "" }

// Job is one scheduled unit of work.
type Job struct {
	// ID is a monotonically increasing integer, unique for the process
	// lifetime. Never reused.
	ID int64

	// Seq is the arrival sequence, used as the queue's tie-breaker.
	Seq int64

	// ScriptName keys into the registry snapshot bound at enqueue time.
	ScriptName string

	// ExecPath is cached from the descriptor at enqueue time so a worker
	// never has to dereference a (possibly reloaded-away) registry
	// snapshot to find the executable to run.
	ExecPath string

	// Parallel is cached from the descriptor at enqueue time, so the
	// queue never has to dereference the (possibly-swapped) registry
	// snapshot to decide serialization.
	Parallel bool

	// Priority is cached from the descriptor at enqueue time.
	Priority int

	// Env holds the environment variables assembled by the provider
	// pipeline plus global extras; the worker adds sandbox-specific vars
	// (HOME, USER, PATH) on top of this at spawn time.
	Env map[string]string

	// RequestBodyPath is the path to the persisted request body, empty
	// for status jobs.
	RequestBodyPath string

	// SourceIP is the resolved client IP, empty for status jobs.
	SourceIP string

	Provenance Provenance

	// EnqueuedAt is informational only; ordering relies solely on
	// (Priority, Seq).
	EnqueuedAt time.Time

	// Release, if set, is called exactly once after this job reaches a
	// terminal outcome. Status jobs synthesized from another job's
	// outcome carry their parent's release callback here, so the parent's
	// captured stdout/stderr files are freed once every derived status
	// job has finished (or immediately, if none matched).
	Release func()
}
