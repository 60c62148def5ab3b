package ipc

import (
	"context"
	"testing"
	"time"

	"github.com/cwt-dev/cwtd/internal/statustable"
	"github.com/cwt-dev/cwtd/internal/types"
)

type fakeJobs struct {
	jobs []types.Job
}

func (f *fakeJobs) Jobs() []types.Job { return f.jobs }

func (f *fakeJobs) FindByName(name string) (types.Job, bool) {
	for _, j := range f.jobs {
		if j.Name == name {
			return j, true
		}
	}
	return types.Job{}, false
}

type fakeDispatcher struct {
	ran []string
}

func (f *fakeDispatcher) Execute(ctx context.Context, job types.Job, trigger types.Trigger, params map[string]string) {
	f.ran = append(f.ran, job.Name)
}

type fakePanes struct {
	killed []types.PaneHandle
}

func (f *fakePanes) Kill(ctx context.Context, pane types.PaneHandle) error {
	f.killed = append(f.killed, pane)
	return nil
}

func TestExecutePing(t *testing.T) {
	e := &Executor{Jobs: &fakeJobs{}, Statuses: statustable.New(), Engine: &fakeDispatcher{}}
	resp := e.Execute(context.Background(), Command{Cmd: CmdPing})
	if resp.Type != RespPong {
		t.Fatalf("expected pong, got %+v", resp)
	}
}

func TestExecuteListJobs(t *testing.T) {
	jobs := &fakeJobs{jobs: []types.Job{{Name: "build"}, {Name: "deploy"}}}
	e := &Executor{Jobs: jobs, Statuses: statustable.New(), Engine: &fakeDispatcher{}}
	resp := e.Execute(context.Background(), Command{Cmd: CmdListJobs})
	if resp.Type != RespJobs || len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %+v", resp)
	}
}

func TestExecuteRunJobUnknownFails(t *testing.T) {
	e := &Executor{Jobs: &fakeJobs{}, Statuses: statustable.New(), Engine: &fakeDispatcher{}}
	resp := e.Execute(context.Background(), Command{Cmd: CmdRunJob, Name: "missing"})
	if resp.Type != RespError {
		t.Fatalf("expected error response, got %+v", resp)
	}
}

func TestExecutePauseRequiresRunning(t *testing.T) {
	statuses := statustable.New()
	e := &Executor{Jobs: &fakeJobs{}, Statuses: statuses, Engine: &fakeDispatcher{}}
	resp := e.Execute(context.Background(), Command{Cmd: CmdPauseJob, Name: "idle-job"})
	if resp.Type != RespError {
		t.Fatalf("expected pause to fail for idle job, got %+v", resp)
	}
}

func TestExecuteResumeFromPaused(t *testing.T) {
	statuses := statustable.New()
	statuses.Set("build", types.Paused())
	e := &Executor{Jobs: &fakeJobs{}, Statuses: statuses, Engine: &fakeDispatcher{}}
	resp := e.Execute(context.Background(), Command{Cmd: CmdResumeJob, Name: "build"})
	if resp.Type != RespOK {
		t.Fatalf("expected resume to succeed, got %+v", resp)
	}
	if statuses.Get("build").Kind != types.StatusIdle {
		t.Fatalf("expected build to be idle after resume, got %+v", statuses.Get("build"))
	}
}

func TestExecuteRestartKillsRunningPaneAndRelaunches(t *testing.T) {
	statuses := statustable.New()
	running := types.Running("run-1", time.Now())
	running.Pane = "%1"
	statuses.Set("build", running)

	panes := &fakePanes{}
	dispatcher := &fakeDispatcher{}
	jobs := &fakeJobs{jobs: []types.Job{{Name: "build"}}}
	e := &Executor{Jobs: jobs, Statuses: statuses, Engine: dispatcher, Panes: panes}

	resp := e.Execute(context.Background(), Command{Cmd: CmdRestartJob, Name: "build"})
	if resp.Type != RespOK {
		t.Fatalf("expected restart to succeed, got %+v", resp)
	}
	if len(panes.killed) != 1 || panes.killed[0] != "%1" {
		t.Fatalf("expected pane %%1 to be killed, got %+v", panes.killed)
	}
}

func TestExecuteGetStatusReturnsSnapshot(t *testing.T) {
	statuses := statustable.New()
	statuses.Set("build", types.Idle())
	e := &Executor{Jobs: &fakeJobs{}, Statuses: statuses, Engine: &fakeDispatcher{}}
	resp := e.Execute(context.Background(), Command{Cmd: CmdGetStatus})
	if resp.Type != RespStatus || resp.Statuses["build"].Kind != types.StatusIdle {
		t.Fatalf("unexpected status snapshot: %+v", resp)
	}
}

func TestExecuteUnknownCommandFails(t *testing.T) {
	e := &Executor{Jobs: &fakeJobs{}, Statuses: statustable.New(), Engine: &fakeDispatcher{}}
	resp := e.Execute(context.Background(), Command{Cmd: "bogus"})
	if resp.Type != RespError {
		t.Fatalf("expected error for unknown command, got %+v", resp)
	}
}
