package queue

import (
	"context"
	"testing"
	"time"
)

func popNamed(t *testing.T, q *Queue) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j, err := q.PopRunnable(ctx)
	if err != nil {
		t.Fatalf("PopRunnable: %v", err)
	}
	return j.ScriptName
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := New()

	if err := q.Enqueue(&Job{ID: 1, ScriptName: "A", Priority: 10, Parallel: true}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&Job{ID: 2, ScriptName: "B", Priority: 0, Parallel: true}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&Job{ID: 3, ScriptName: "C", Priority: 5, Parallel: true}); err != nil {
		t.Fatal(err)
	}

	order := []string{popNamed(t, q), popNamed(t, q), popNamed(t, q)}
	want := []string{"A", "C", "B"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order: got %v want %v", order, want)
		}
	}
}

func TestQueue_SamePriorityBreaksTiesByArrival(t *testing.T) {
	q := New()
	if err := q.Enqueue(&Job{ID: 1, ScriptName: "first", Priority: 1, Parallel: true}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&Job{ID: 2, ScriptName: "second", Priority: 1, Parallel: true}); err != nil {
		t.Fatal(err)
	}
	if got := popNamed(t, q); got != "first" {
		t.Fatalf("expected first to pop before second, got %s", got)
	}
	if got := popNamed(t, q); got != "second" {
		t.Fatalf("expected second to pop next, got %s", got)
	}
}

func TestQueue_NonParallelSerialization(t *testing.T) {
	q := New()
	if err := q.Enqueue(&Job{ID: 1, ScriptName: "deploy.sh", Priority: 0}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&Job{ID: 2, ScriptName: "deploy.sh", Priority: 0}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := q.PopRunnable(ctx)
	if err != nil {
		t.Fatalf("first PopRunnable: %v", err)
	}
	if first.ScriptName != "deploy.sh" {
		t.Fatalf("unexpected script: %s", first.ScriptName)
	}

	// Second deploy.sh job must not be runnable while the first is still
	// marked running: PopRunnable should time out.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	if _, err := q.PopRunnable(shortCtx); err == nil {
		t.Fatal("expected PopRunnable to block while deploy.sh is running")
	}

	q.MarkDone("deploy.sh", false)

	second, err := q.PopRunnable(ctx)
	if err != nil {
		t.Fatalf("second PopRunnable: %v", err)
	}
	if second.ScriptName != "deploy.sh" {
		t.Fatalf("unexpected script: %s", second.ScriptName)
	}
}

func TestQueue_ParallelScriptsRunConcurrently(t *testing.T) {
	q := New()
	if err := q.Enqueue(&Job{ID: 1, ScriptName: "build.sh", Priority: 0, Parallel: true}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&Job{ID: 2, ScriptName: "build.sh", Priority: 0, Parallel: true}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := q.PopRunnable(ctx); err != nil {
		t.Fatalf("first pop: %v", err)
	}
	// Parallel jobs never mark the script as running, so the second
	// instance must be immediately runnable too.
	if _, err := q.PopRunnable(ctx); err != nil {
		t.Fatalf("second pop should not block for a parallel script: %v", err)
	}
}

func TestQueue_SnapshotCounts(t *testing.T) {
	q := New()
	if err := q.Enqueue(&Job{ID: 1, ScriptName: "a", Priority: 0, Parallel: true}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&Job{ID: 2, ScriptName: "b", Priority: 0, Parallel: true}); err != nil {
		t.Fatal(err)
	}

	counts := q.SnapshotCounts()
	if counts.QueuedJobs != 2 || counts.BusyThreads != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := q.PopRunnable(ctx); err != nil {
		t.Fatal(err)
	}

	counts = q.SnapshotCounts()
	if counts.QueuedJobs != 1 || counts.BusyThreads != 1 {
		t.Fatalf("unexpected counts after pop: %+v", counts)
	}
}

func TestQueue_EnqueueAfterDrainFails(t *testing.T) {
	q := New()
	q.Drain(false)
	if err := q.Enqueue(&Job{ID: 1, ScriptName: "a", Priority: 0}); err != ErrDraining {
		t.Fatalf("expected ErrDraining, got %v", err)
	}
}

func TestQueue_DrainWakesBlockedPop(t *testing.T) {
	q := New()
	done := make(chan error, 1)
	go func() {
		_, err := q.PopRunnable(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Drain(false)

	select {
	case err := <-done:
		if err != ErrDraining {
			t.Fatalf("expected ErrDraining, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("PopRunnable did not wake up on drain")
	}
}

func TestQueue_DrainDiscardQueued(t *testing.T) {
	q := New()
	if err := q.Enqueue(&Job{ID: 1, ScriptName: "a", Priority: 0, Parallel: true}); err != nil {
		t.Fatal(err)
	}
	q.Drain(true)
	if counts := q.SnapshotCounts(); counts.QueuedJobs != 0 {
		t.Fatalf("expected queued jobs discarded, got %+v", counts)
	}
}

func TestQueue_JobIDNeverReused(t *testing.T) {
	q := New()
	ids := map[int64]bool{}
	for i := 0; i < 5; i++ {
		id := q.NextID()
		if ids[id] {
			t.Fatalf("duplicate id %d", id)
		}
		ids[id] = true
	}
}
