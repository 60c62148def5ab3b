package ipc

import (
	"context"
	"log"

	"github.com/cwt-dev/cwtd/internal/statustable"
	"github.com/cwt-dev/cwtd/internal/types"
)

// JobsProvider gives the executor a read view of configured jobs.
type JobsProvider interface {
	Jobs() []types.Job
	FindByName(name string) (types.Job, bool)
}

// Dispatcher launches a job, mirroring engine.Engine's Execute method.
type Dispatcher interface {
	Execute(ctx context.Context, job types.Job, trigger types.Trigger, params map[string]string)
}

// Panes kills a running pane, mirroring the subset of paneops.Ops the
// executor needs for stop/restart.
type Panes interface {
	Kill(ctx context.Context, pane types.PaneHandle) error
}

// SettingsOpener handles "open_settings"; concrete implementations vary by
// platform (e.g. opening a config file in $EDITOR, or a desktop settings
// window). Optional: a nil SettingsOpener just acks without doing anything.
type SettingsOpener interface {
	OpenSettings() error
}

// Executor turns a decoded Command into a Response. One Executor is shared
// by every accepted connection; all its dependencies are already
// concurrency-safe (statustable.Table, jobstore.Store, paneops.Ops).
type Executor struct {
	Jobs     JobsProvider
	Statuses *statustable.Table
	Engine   Dispatcher
	Panes    Panes
	Settings SettingsOpener
}

// Execute dispatches one command and returns its response.
func (e *Executor) Execute(ctx context.Context, cmd Command) Response {
	switch cmd.Cmd {
	case CmdPing:
		return pong()

	case CmdListJobs:
		jobs := e.Jobs.Jobs()
		names := make([]string, len(jobs))
		for i, j := range jobs {
			names[i] = j.Name
		}
		return Response{Type: RespJobs, Jobs: names}

	case CmdGetStatus:
		return Response{Type: RespStatus, Statuses: e.Statuses.All()}

	case CmdRunJob:
		job, found := e.Jobs.FindByName(cmd.Name)
		if !found {
			return errResp("job not found: " + cmd.Name)
		}
		go e.Engine.Execute(context.Background(), job, types.TriggerCLI, nil)
		return ok()

	case CmdPauseJob:
		status := e.Statuses.Get(cmd.Name)
		if status.Kind != types.StatusRunning {
			return errResp("job is not running")
		}
		e.Statuses.Set(cmd.Name, types.Paused())
		return ok()

	case CmdResumeJob:
		status := e.Statuses.Get(cmd.Name)
		if status.Kind != types.StatusPaused {
			return errResp("job is not paused")
		}
		e.Statuses.Set(cmd.Name, types.Idle())
		return ok()

	case CmdRestartJob:
		return e.restartJob(ctx, cmd.Name)

	case CmdOpenSettings:
		if e.Settings == nil {
			return ok()
		}
		if err := e.Settings.OpenSettings(); err != nil {
			return errResp(err.Error())
		}
		return ok()

	default:
		return errResp("unknown command: " + cmd.Cmd)
	}
}

func (e *Executor) restartJob(ctx context.Context, name string) Response {
	job, found := e.Jobs.FindByName(name)
	if !found {
		return errResp("job not found: " + name)
	}

	status := e.Statuses.Get(name)
	if status.Kind == types.StatusRunning && status.Pane != "" && e.Panes != nil {
		if err := e.Panes.Kill(ctx, status.Pane); err != nil {
			log.Printf("[IPC] restart: failed to kill pane for %q: %v", name, err)
		}
	}
	e.Statuses.Set(name, types.Idle())

	go e.Engine.Execute(context.Background(), job, types.TriggerCLI, nil)
	return ok()
}
