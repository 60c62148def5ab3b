// Package engine resolves a job spec into a concrete run: launches it via
// the pane driver (or as a child process for Binary jobs), registers run
// state, and hands off to a Monitor.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwt-dev/cwtd/internal/activeagents"
	"github.com/cwt-dev/cwtd/internal/history"
	"github.com/cwt-dev/cwtd/internal/paneops"
	"github.com/cwt-dev/cwtd/internal/statustable"
	"github.com/cwt-dev/cwtd/internal/types"
)

// Relay is the subset of the relay client used to forward status updates
// and job lifecycle events upstream. relayclient.Client and
// eventbus.PublishRelay both satisfy it.
type Relay interface {
	SendStatus(name string, status types.JobStatus)
	SendJobEvent(name, event, runID string)
}

// MonitorStarter launches a Monitor bound to a running pane. Implemented by
// internal/monitor; declared here to avoid a circular import.
type MonitorStarter interface {
	Start(ctx context.Context, params MonitorParams)
}

// MonitorParams is everything a Monitor needs, handed off by the engine
// once a pane exists.
type MonitorParams struct {
	Session     string
	Pane        types.PaneHandle
	RunID       string
	JobName     string
	Slug        string
	ChatRouteID string
	NotifyBits  types.NotifyBits
	NotifyTgt   types.NotifyTarget
}

// Engine is the execution engine. All fields are safe for concurrent use.
type Engine struct {
	Panes    *paneops.Ops
	History  *history.Store
	Statuses *statustable.Table
	Agents   *activeagents.Table
	Relay    Relay
	Monitor  MonitorStarter
	Secrets  SecretsProvider
	Windows  WindowMover
	LogsDir  string // base dir for $CONFIG/jobs/{slug}/logs
}

// New wires an Engine from its dependencies. secrets resolves a job's
// secret_keys at launch; pass EnvSecrets{} when no credential store is
// wired in. windows fires the optional window-workspace-move hook; pass
// NoopWindowMover{} when no window manager integration is wired in.
func New(panes *paneops.Ops, store *history.Store, statuses *statustable.Table, agents *activeagents.Table, relay Relay, monitor MonitorStarter, secrets SecretsProvider, windows WindowMover, logsDir string) *Engine {
	return &Engine{Panes: panes, History: store, Statuses: statuses, Agents: agents, Relay: relay, Monitor: monitor, Secrets: secrets, Windows: windows, LogsDir: logsDir}
}

func projectWindowName(job types.Job) string {
	project := job.Name
	if prefix, _, ok := strings.Cut(job.Slug, "/"); ok && prefix != "" {
		project = prefix
	}
	return "cwt-" + project
}

func applyParams(text string, params map[string]string) string {
	for k, v := range params {
		text = strings.ReplaceAll(text, "{"+k+"}", v)
	}
	return text
}

func prependSkillRefs(body string, refs []string) string {
	if len(refs) == 0 {
		return body
	}
	prefixes := make([]string, len(refs))
	for i, r := range refs {
		prefixes[i] = "@" + r
	}
	return strings.Join(prefixes, " ") + "\n\n" + body
}

// Execute resolves job into a run, dispatches it, and returns once the run
// is launched (or has failed before launch). The caller invokes it as a
// goroutine for true fire-and-forget semantics; Execute itself starts the
// Monitor in its own goroutine before returning when a pane is involved.
func (e *Engine) Execute(ctx context.Context, job types.Job, trigger types.Trigger, params map[string]string) {
	runID := uuid.New().String()
	startedAt := time.Now()

	status := types.Running(runID, startedAt)
	e.Statuses.Set(job.Name, status)
	e.Relay.SendStatus(job.Name, status)

	record := types.RunRecord{ID: runID, JobName: job.Name, StartedAt: startedAt, Trigger: trigger}
	if err := e.History.Insert(record); err != nil {
		log.Printf("[ENGINE] warning: failed to insert run record for %s: %v", job.Name, err)
	}

	switch job.Kind {
	case types.KindBinary:
		e.executeBinary(ctx, job, runID)
		return
	case types.KindPrompt:
		body, err := os.ReadFile(job.PromptFile)
		if err != nil {
			e.failBeforePane(job, runID, fmt.Sprintf("read prompt file: %v", err))
			return
		}
		prompt := prependSkillRefs(applyParams(string(body), params), job.SkillRefs)
		e.dispatchToPane(ctx, job, runID, prompt)
	case types.KindFolder:
		jobMD := job.FolderPath + "/.cwt/" + job.Name + "/job.md"
		body, err := os.ReadFile(jobMD)
		if err != nil {
			e.failBeforePane(job, runID, fmt.Sprintf("read folder job file: %v", err))
			return
		}
		contextRefs := fmt.Sprintf("@.cwt/cwt.md @.cwt/%s/cwt.md @.cwt/%s/job.md", job.Name, job.Name)
		prompt := contextRefs + prependSkillRefsInline(job.SkillRefs) + "\n\n" + applyParams(string(body), params)
		e.dispatchToPane(ctx, job, runID, prompt)
	default:
		e.failBeforePane(job, runID, fmt.Sprintf("unknown job kind %q", job.Kind))
	}
}

func prependSkillRefsInline(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range refs {
		b.WriteString(" @")
		b.WriteString(r)
	}
	return b.String()
}

// failBeforePane handles the "any step before pane creation" failure path:
// Failed status, exit_code -1, error text captured as stderr.
func (e *Engine) failBeforePane(job types.Job, runID, errText string) {
	now := time.Now()
	status := types.Failed(runID, -1)
	e.Statuses.Set(job.Name, status)
	e.Relay.SendStatus(job.Name, status)
	exitCode := -1
	if err := e.History.UpdateFinished(runID, now, &exitCode, "", errText); err != nil {
		log.Printf("[ENGINE] warning: failed to record pre-pane failure for %s: %v", job.Name, err)
	}
	e.Relay.SendJobEvent(job.Name, "failed", runID)
}

func (e *Engine) executeBinary(ctx context.Context, job types.Job, runID string) {
	env := []string{}
	if path, ok := os.LookupEnv("PATH"); ok {
		env = append(env, "PATH="+path)
	}
	if home, ok := os.LookupEnv("HOME"); ok {
		env = append(env, "HOME="+home)
	}
	for k, v := range e.secretsEnv(job) {
		env = append(env, k+"="+v)
	}
	for k, v := range job.Env {
		env = append(env, k+"="+v)
	}

	cmd := exec.CommandContext(ctx, job.Binary, job.Args...)
	cmd.Env = env
	cmd.Dir = job.WorkDir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	status := types.Success(runID)
	if err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		status = types.Failed(runID, exitCode)
	}

	now := time.Now()
	e.Statuses.Set(job.Name, status)
	e.Relay.SendStatus(job.Name, status)
	if uerr := e.History.UpdateFinished(runID, now, &exitCode, stdout.String(), stderr.String()); uerr != nil {
		log.Printf("[ENGINE] warning: failed to record binary run for %s: %v", job.Name, uerr)
	}
	e.Relay.SendJobEvent(job.Name, "finished", runID)
}

// dispatchToPane implements the tmux dispatch algorithm: ensure session; if
// the window already existed, split a fresh pane; otherwise create the
// window and use its initial pane.
func (e *Engine) dispatchToPane(ctx context.Context, job types.Job, runID string, prompt string) {
	session := job.MultiplexerSession
	if session == "" {
		session = "cwt"
	}
	window := projectWindowName(job)

	if err := e.Panes.EnsureSession(ctx, session); err != nil {
		e.failBeforePane(job, runID, fmt.Sprintf("ensure session: %v", err))
		return
	}

	paneEnv := e.secretsEnv(job)
	for k, v := range job.Env {
		paneEnv[k] = v
	}

	windowJustCreated := !e.Panes.WindowExists(ctx, session, window)
	if err := e.Panes.EnsureWindow(ctx, session, window, paneEnv); err != nil {
		e.failBeforePane(job, runID, fmt.Sprintf("ensure window: %v", err))
		return
	}

	var pane types.PaneHandle
	var err error
	if !windowJustCreated {
		pane, err = e.Panes.SplitPane(ctx, session, window, paneEnv)
	} else {
		pane, err = e.Panes.InitialPane(ctx, session, window)
	}
	if err != nil {
		e.failBeforePane(job, runID, fmt.Sprintf("acquire pane: %v", err))
		return
	}

	if job.WindowWorkspace != "" {
		if err := e.Windows.MoveToWorkspace(session, window, job.WindowWorkspace); err != nil {
			log.Printf("[ENGINE] warning: failed to move window to workspace %q for %s: %v", job.WindowWorkspace, job.Name, err)
		}
	}

	sendCmd := fmt.Sprintf("cd %s && %s $'%s'", job.WorkDir, agentBinFor(job), EscapePrompt(prompt))
	if err := e.Panes.SendLine(ctx, pane, sendCmd); err != nil {
		log.Printf("[ENGINE] warning: failed to send prompt for %s: %v", job.Name, err)
	}

	status := types.Running(runID, time.Now()).WithPane(pane, session)
	e.Statuses.Set(job.Name, status)
	e.Relay.SendStatus(job.Name, status)

	if job.ChatRouteID != "" {
		e.Agents.Set(types.ActiveAgent{ChatRouteID: job.ChatRouteID, Pane: pane, RunID: runID, JobName: job.Name})
	}

	target := types.NotifyApp
	bits := job.NotifyApp
	if job.ChatRouteID != "" {
		target = types.NotifyChat
		bits = job.NotifyChat
	}

	e.Monitor.Start(ctx, MonitorParams{
		Session:     session,
		Pane:        pane,
		RunID:       runID,
		JobName:     job.Name,
		Slug:        job.Slug,
		ChatRouteID: job.ChatRouteID,
		NotifyBits:  bits,
		NotifyTgt:   target,
	})
}

func agentBinFor(job types.Job) string {
	if job.Binary != "" {
		return job.Binary
	}
	return "claude"
}
