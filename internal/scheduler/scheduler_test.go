package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cwt-dev/cwtd/internal/types"
)

type fakeJobs struct {
	jobs []types.Job
}

func (f *fakeJobs) Jobs() []types.Job { return f.jobs }

type fakeDispatcher struct {
	mu   sync.Mutex
	runs []string
}

func (f *fakeDispatcher) Execute(ctx context.Context, job types.Job, trigger types.Trigger, params map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, job.Name)
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func TestDueSinceFiresForExpressionInWindow(t *testing.T) {
	s := New(&fakeJobs{}, &fakeDispatcher{})
	s.lastCheck = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	// "* * * * *" fires every minute: an activation exists in (12:00, 12:01].
	if !s.dueSince("* * * * *", now) {
		t.Fatal("expected every-minute cron to be due")
	}
}

func TestDueSinceDoesNotFireOutsideWindow(t *testing.T) {
	s := New(&fakeJobs{}, &fakeDispatcher{})
	s.lastCheck = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)

	// Daily cron at 03:00 has no activation in a 10s window starting at noon.
	if s.dueSince("0 3 * * *", now) {
		t.Fatal("expected daily cron not to be due in a 10s window")
	}
}

func TestDueSinceInvalidExpressionIsFalse(t *testing.T) {
	s := New(&fakeJobs{}, &fakeDispatcher{})
	s.lastCheck = time.Now().Add(-time.Minute)
	if s.dueSince("not a cron expr", time.Now()) {
		t.Fatal("expected invalid cron expression to never fire")
	}
}

func TestSweepDispatchesOnlyEnabledJobsWithCron(t *testing.T) {
	jobs := &fakeJobs{jobs: []types.Job{
		{Name: "every-minute", Enabled: true, Cron: "* * * * *"},
		{Name: "disabled", Enabled: false, Cron: "* * * * *"},
		{Name: "no-cron", Enabled: true, Cron: ""},
	}}
	dispatcher := &fakeDispatcher{}
	s := New(jobs, dispatcher)
	s.lastCheck = time.Now().Add(-time.Minute)

	s.sweep(context.Background())

	deadline := time.Now().Add(time.Second)
	for dispatcher.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.runs) != 1 || dispatcher.runs[0] != "every-minute" {
		t.Fatalf("expected exactly one dispatch for every-minute, got %+v", dispatcher.runs)
	}
}
