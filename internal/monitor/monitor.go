// Package monitor implements the per-run pane monitor: polls a pane,
// diffs content, detects completion, extracts interactive prompts, and
// finalizes the run once the pane stops being busy.
package monitor

import (
	"context"
	"fmt"
	"html"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cwt-dev/cwtd/internal/activeagents"
	"github.com/cwt-dev/cwtd/internal/engine"
	"github.com/cwt-dev/cwtd/internal/statustable"
	"github.com/cwt-dev/cwtd/internal/types"
)

const (
	exitDetectInterval  = 200 * time.Millisecond
	pollInterval        = 2 * time.Second
	captureLines        = 80
	idleFlushTicks      = 2
	idleForceFlushTicks = 5
	heartbeatEveryTicks = 4
	maxLogLines         = 40
	missEvictThreshold  = 3
)

// Panes is the subset of the pane driver the monitor needs.
type Panes interface {
	CaptureTail(ctx context.Context, pane types.PaneHandle, lines int) (string, error)
	CaptureFull(ctx context.Context, pane types.PaneHandle) (string, error)
	IsBusy(ctx context.Context, pane types.PaneHandle) (bool, error)
	Kill(ctx context.Context, pane types.PaneHandle) error
}

// HistoryStore is the subset of the history store the monitor needs.
type HistoryStore interface {
	UpdateFinished(id string, finishedAt time.Time, exitCode *int, stdout, stderr string) error
}

// Relay is the subset of the relay client the monitor pushes events to.
type Relay interface {
	SendStatus(name string, status types.JobStatus)
	SendLogChunk(name, content string, ts time.Time)
	SendQuestions(qs []types.Question)
	SendJobEvent(name, event, runID string)
}

// ChatSink delivers chat-route messages for streaming output and heartbeats.
type ChatSink interface {
	SendMessage(routeID, text string) (msgID string, err error)
	EditMessage(routeID, msgID, text string) error
	SendTyping(routeID string) error
}

// AppNotifier delivers local desktop notifications for App-target jobs.
type AppNotifier interface {
	NotifyApp(jobName, event string)
}

// Monitor wires the dependencies shared by every per-run Monitor instance.
type Monitor struct {
	Panes    Panes
	Store    HistoryStore
	Statuses *statustable.Table
	Agents   *activeagents.Table
	Relay    Relay
	Chat     ChatSink
	App      AppNotifier
	LogsDir  string
}

// New wires a Monitor. Chat and App may be nil when the corresponding
// target is never used.
func New(panes Panes, store HistoryStore, statuses *statustable.Table, agents *activeagents.Table, relay Relay, chat ChatSink, app AppNotifier, logsDir string) *Monitor {
	return &Monitor{Panes: panes, Store: store, Statuses: statuses, Agents: agents, Relay: relay, Chat: chat, App: app, LogsDir: logsDir}
}

type cachedQuestion struct {
	id        string
	missCount int
}

// Start launches the two-ticker monitor loop for one pane in its own
// goroutine and returns immediately.
func (m *Monitor) Start(ctx context.Context, params engine.MonitorParams) {
	go m.run(ctx, params)
}

func (m *Monitor) run(ctx context.Context, p engine.MonitorParams) {
	var exited atomic.Bool

	exitCtx, cancelExit := context.WithCancel(ctx)
	defer cancelExit()
	go m.exitDetector(exitCtx, p.Pane, &exited)

	startedAt := time.Now()
	var previousCapture string
	var cache *cachedQuestion
	var chatBuffer strings.Builder
	var chatMsgID string
	idleTicks := 0
	tick := 0
	firstTick := true

	if p.NotifyBits.Has(types.NotifyStart) {
		m.notify(p, "start")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		tick++
		current, err := m.Panes.CaptureTail(ctx, p.Pane, captureLines)
		if err != nil {
			log.Printf("[MONITOR] %s: capture failed: %v", p.JobName, err)
			if exited.Load() {
				break
			}
			continue
		}

		if firstTick {
			// Seed the previous tail before the job produces output so
			// stale scrollback is never relayed as a diff.
			previousCapture = current
			firstTick = false
		} else {
			diff := diffContent(previousCapture, current)
			previousCapture = current

			if diff != "" {
				m.Relay.SendLogChunk(p.JobName, diff, time.Now())
				if isSubstantial(diff) {
					idleTicks = 0
				} else {
					idleTicks++
				}
				if p.NotifyTgt == types.NotifyChat {
					chatBuffer.WriteString(diff)
					chatBuffer.WriteString("\n")
				}
			} else {
				idleTicks++
			}

			if p.NotifyTgt == types.NotifyChat && chatBuffer.Len() > 0 {
				if idleTicks == idleFlushTicks || idleTicks >= idleForceFlushTicks {
					m.flushChat(p, &chatBuffer, &chatMsgID)
				}
			}

			if p.NotifyTgt == types.NotifyChat && p.NotifyBits.Has(types.NotifyHeartbeat) && tick%heartbeatEveryTicks == 0 {
				m.heartbeat(p, startedAt)
			}
		}

		cache = m.updateQuestions(ctx, p, current, cache)

		if exited.Load() {
			break
		}
	}

	m.finalize(ctx, p)
}

func (m *Monitor) exitDetector(ctx context.Context, pane types.PaneHandle, exited *atomic.Bool) {
	ticker := time.NewTicker(exitDetectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		busy, err := m.Panes.IsBusy(ctx, pane)
		if err != nil {
			continue
		}
		if !busy {
			exited.Store(true)
			return
		}
	}
}

func (m *Monitor) updateQuestions(ctx context.Context, p engine.MonitorParams, capture string, cache *cachedQuestion) *cachedQuestion {
	opts := parseNumberedOptions(capture)
	if len(opts) == 0 {
		if cache != nil {
			cache.missCount++
			if cache.missCount >= missEvictThreshold {
				return nil
			}
		}
		return cache
	}

	qid := makeQuestionID(p.Pane, opts)
	if cache != nil && cache.id == qid {
		cache.missCount = 0
		return cache
	}

	q := types.Question{
		PaneHandle:   p.Pane,
		QuestionID:   qid,
		ContextLines: lastLines(capture, questionTailLines),
		Options:      opts,
		JobName:      p.JobName,
	}
	m.Relay.SendQuestions([]types.Question{q})
	if p.NotifyBits.Has(types.NotifyLogSnapshot) {
		m.notify(p, "question")
	}
	return &cachedQuestion{id: qid}
}

func lastLines(text string, n int) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func (m *Monitor) flushChat(p engine.MonitorParams, buf *strings.Builder, msgID *string) {
	content := buf.String()
	buf.Reset()
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	escaped := html.EscapeString(strings.Join(lines, "\n"))
	text := fmt.Sprintf("```\n%s\n```", escaped)
	if m.Chat == nil {
		return
	}
	if id, err := m.Chat.SendMessage(p.ChatRouteID, text); err == nil {
		*msgID = id
	}
}

func (m *Monitor) heartbeat(p engine.MonitorParams, startedAt time.Time) {
	if m.Chat == nil {
		return
	}
	elapsed := time.Since(startedAt)
	mm := int(elapsed.Minutes())
	ss := int(elapsed.Seconds()) % 60
	text := fmt.Sprintf("working… %02d:%02d", mm, ss)
	m.Chat.SendMessage(p.ChatRouteID, text)
	m.Chat.SendTyping(p.ChatRouteID)
}

func (m *Monitor) notify(p engine.MonitorParams, event string) {
	if p.NotifyTgt == types.NotifyChat && m.Chat != nil {
		m.Chat.SendMessage(p.ChatRouteID, event)
	}
	if p.NotifyTgt == types.NotifyApp && m.App != nil {
		m.App.NotifyApp(p.JobName, event)
	}
}

// finalize captures the full scrollback, writes the log file, kills the
// pane, and records the run as Success with exit_code 0 unconditionally:
// the liveness model treats "no longer busy" as success. A Failed
// finalization is reserved for pre-pane errors handled by the engine.
func (m *Monitor) finalize(ctx context.Context, p engine.MonitorParams) {
	full, err := m.Panes.CaptureFull(ctx, p.Pane)
	if err != nil {
		log.Printf("[MONITOR] %s: final capture failed: %v", p.JobName, err)
	}

	if err := m.writeLogFile(p.Slug, p.RunID, full); err != nil {
		log.Printf("[MONITOR] %s: failed to write log file: %v", p.JobName, err)
	}

	if err := m.Panes.Kill(ctx, p.Pane); err != nil {
		log.Printf("[MONITOR] %s: failed to kill pane %s: %v", p.JobName, p.Pane, err)
	}

	exitCode := 0
	if err := m.Store.UpdateFinished(p.RunID, time.Now(), &exitCode, full, ""); err != nil {
		log.Printf("[MONITOR] %s: failed to finalize run record: %v", p.JobName, err)
	}

	status := types.Success(p.RunID)
	m.Statuses.Set(p.JobName, status)
	m.Relay.SendStatus(p.JobName, status)
	m.Relay.SendJobEvent(p.JobName, "finished", p.RunID)

	if p.ChatRouteID != "" {
		m.Agents.RemoveByPane(p.Pane)
	}

	if p.NotifyBits.Has(types.NotifyFinish) {
		m.notify(p, "finished")
	}
}

func (m *Monitor) writeLogFile(slug, runID, content string) error {
	dir := filepath.Join(m.LogsDir, "jobs", slug, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, runID+".log")
	return os.WriteFile(path, []byte(content), 0644)
}
