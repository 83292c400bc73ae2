package status

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/detentsh/fisher/internal/queue"
	"github.com/detentsh/fisher/internal/registry"
	"github.com/detentsh/fisher/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func snapshotWith(hooks ...*registry.Descriptor) *registry.Snapshot {
	byName := make(map[string]*registry.Descriptor)
	for _, h := range hooks {
		byName[h.Name] = h
	}
	return registry.NewSnapshot(byName)
}

func exitCodeOutcome(success bool, code int, stdout, stderr string) worker.Outcome {
	c := code
	return worker.Outcome{Success: success, ExitCode: &c, StdoutPath: stdout, StderrPath: stderr}
}

func TestFanOut_NoHookMatchDeletesFilesImmediately(t *testing.T) {
	dir := t.TempDir()
	stdout := dir + "/out"
	stderr := dir + "/err"
	os.WriteFile(stdout, []byte("o"), 0o644)
	os.WriteFile(stderr, []byte("e"), 0o644)

	q := queue.New()
	f := New(q, func() *registry.Snapshot { return snapshotWith() }, discardLogger())

	job := &queue.Job{ScriptName: "a.sh"}
	f.Handle(job, exitCodeOutcome(true, 0, stdout, stderr))

	if _, err := os.Stat(stdout); !os.IsNotExist(err) {
		t.Fatal("expected stdout removed")
	}
	if _, err := os.Stat(stderr); !os.IsNotExist(err) {
		t.Fatal("expected stderr removed")
	}
}

func TestFanOut_MatchingHookEnqueuesDerivedJob(t *testing.T) {
	dir := t.TempDir()
	stdout := dir + "/out"
	stderr := dir + "/err"
	os.WriteFile(stdout, []byte("o"), 0o644)
	os.WriteFile(stderr, []byte("e"), 0o644)

	hook := &registry.Descriptor{
		Name: "notify.sh", ExecPath: "/bin/notify.sh", Parallel: true, Priority: registry.StatusPriority,
		StatusEvents: map[string]bool{"job-failed": true},
	}

	q := queue.New()
	f := New(q, func() *registry.Snapshot { return snapshotWith(hook) }, discardLogger())

	job := &queue.Job{ScriptName: "a.sh"}
	f.Handle(job, exitCodeOutcome(false, 1, stdout, stderr))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	derived, err := q.PopRunnable(ctx)
	if err != nil {
		t.Fatalf("expected a derived status job: %v", err)
	}
	if derived.ScriptName != "notify.sh" {
		t.Fatalf("unexpected script: %s", derived.ScriptName)
	}
	if derived.Env["FISHER_STATUS_EVENT"] != "job-failed" {
		t.Fatalf("unexpected env: %+v", derived.Env)
	}
	if derived.Env["FISHER_STATUS_SUCCESS"] != "0" {
		t.Fatalf("expected FISHER_STATUS_SUCCESS=0, got %s", derived.Env["FISHER_STATUS_SUCCESS"])
	}
	if derived.Env["FISHER_STATUS_EXIT_CODE"] != "1" {
		t.Fatalf("unexpected exit code env: %s", derived.Env["FISHER_STATUS_EXIT_CODE"])
	}
	if _, ok := derived.Env["FISHER_STATUS_SIGNAL"]; ok {
		t.Fatal("did not expect FISHER_STATUS_SIGNAL to be set")
	}

	// Files still exist: not yet released since the derived job has not
	// itself completed.
	if _, err := os.Stat(stdout); err != nil {
		t.Fatal("expected stdout to still exist until the derived job completes")
	}

	derived.Release()

	if _, err := os.Stat(stdout); !os.IsNotExist(err) {
		t.Fatal("expected stdout removed after derived job released")
	}
	if _, err := os.Stat(stderr); !os.IsNotExist(err) {
		t.Fatal("expected stderr removed after derived job released")
	}
}

func TestFanOut_SuccessfulJobEmitsJobCompleted(t *testing.T) {
	hook := &registry.Descriptor{
		Name: "notify.sh", ExecPath: "/bin/notify.sh", Parallel: true, Priority: registry.StatusPriority,
		StatusEvents: map[string]bool{"job-completed": true},
	}

	q := queue.New()
	f := New(q, func() *registry.Snapshot { return snapshotWith(hook) }, discardLogger())

	dir := t.TempDir()
	stdout := dir + "/out"
	stderr := dir + "/err"
	os.WriteFile(stdout, []byte("o"), 0o644)
	os.WriteFile(stderr, []byte("e"), 0o644)

	job := &queue.Job{ScriptName: "a.sh"}
	f.Handle(job, exitCodeOutcome(true, 0, stdout, stderr))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	derived, err := q.PopRunnable(ctx)
	if err != nil {
		t.Fatalf("expected a derived status job: %v", err)
	}
	if derived.Env["FISHER_STATUS_EVENT"] != "job-completed" {
		t.Fatalf("unexpected event: %s", derived.Env["FISHER_STATUS_EVENT"])
	}
	if derived.Env["FISHER_STATUS_SUCCESS"] != "1" {
		t.Fatalf("expected FISHER_STATUS_SUCCESS=1, got %s", derived.Env["FISHER_STATUS_SUCCESS"])
	}
	derived.Release()
}
