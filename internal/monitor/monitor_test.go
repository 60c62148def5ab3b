package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cwt-dev/cwtd/internal/activeagents"
	"github.com/cwt-dev/cwtd/internal/engine"
	"github.com/cwt-dev/cwtd/internal/statustable"
	"github.com/cwt-dev/cwtd/internal/types"
)

type fakePanes struct {
	mu     sync.Mutex
	full   string
	busy   bool
	killed []types.PaneHandle
}

func (f *fakePanes) CaptureTail(ctx context.Context, pane types.PaneHandle, lines int) (string, error) {
	return "", nil
}

func (f *fakePanes) CaptureFull(ctx context.Context, pane types.PaneHandle) (string, error) {
	return f.full, nil
}

func (f *fakePanes) IsBusy(ctx context.Context, pane types.PaneHandle) (bool, error) {
	return f.busy, nil
}

func (f *fakePanes) Kill(ctx context.Context, pane types.PaneHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pane)
	return nil
}

type fakeStore struct {
	mu         sync.Mutex
	finishedID string
	exitCode   *int
	stdout     string
}

func (f *fakeStore) UpdateFinished(id string, finishedAt time.Time, exitCode *int, stdout, stderr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishedID = id
	f.exitCode = exitCode
	f.stdout = stdout
	return nil
}

type fakeRelay struct {
	mu        sync.Mutex
	statuses  []types.JobStatus
	events    []string
	questions [][]types.Question
	chunks    []string
}

func (f *fakeRelay) SendStatus(name string, status types.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeRelay) SendLogChunk(name, content string, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, content)
}

func (f *fakeRelay) SendQuestions(qs []types.Question) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, qs)
}

func (f *fakeRelay) SendJobEvent(name, event, runID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeChat struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeChat) SendMessage(routeID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return "msg-1", nil
}

func (f *fakeChat) EditMessage(routeID, msgID, text string) error { return nil }
func (f *fakeChat) SendTyping(routeID string) error                { return nil }

func newTestMonitor(t *testing.T, panes *fakePanes, store *fakeStore, relay *fakeRelay, chat *fakeChat) *Monitor {
	t.Helper()
	return New(panes, store, statustable.New(), activeagents.New(), relay, chat, nil, t.TempDir())
}

func TestUpdateQuestionsCachesAndEvicts(t *testing.T) {
	m := newTestMonitor(t, &fakePanes{}, &fakeStore{}, &fakeRelay{}, nil)
	params := engine.MonitorParams{Pane: types.PaneHandle("%1"), JobName: "job"}

	prompt := "Pick one\n> 1. Yes\n  2. No\nenter to select"
	var cache *cachedQuestion

	cache = m.updateQuestions(context.Background(), params, prompt, cache)
	if cache == nil {
		t.Fatal("expected a cached question after first detection")
	}
	firstID := cache.id

	// Same question again: cache id unchanged, miss counter reset.
	cache = m.updateQuestions(context.Background(), params, prompt, cache)
	if cache.id != firstID {
		t.Fatalf("expected stable question id, got %q vs %q", cache.id, firstID)
	}

	// No prompt present: miss counter increments until eviction.
	for i := 0; i < missEvictThreshold; i++ {
		cache = m.updateQuestions(context.Background(), params, "no prompt here", cache)
	}
	if cache != nil {
		t.Fatalf("expected cache evicted after %d consecutive misses", missEvictThreshold)
	}
}

func TestFinalizeRecordsSuccessAndWritesLog(t *testing.T) {
	panes := &fakePanes{full: "final scrollback content"}
	store := &fakeStore{}
	relay := &fakeRelay{}
	m := newTestMonitor(t, panes, store, relay, nil)

	params := engine.MonitorParams{
		Pane:    types.PaneHandle("%2"),
		JobName: "build",
		Slug:    "build",
		RunID:   "run-123",
	}

	m.finalize(context.Background(), params)

	if store.finishedID != "run-123" {
		t.Fatalf("expected run-123 finalized, got %q", store.finishedID)
	}
	if store.exitCode == nil || *store.exitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", store.exitCode)
	}
	if len(panes.killed) != 1 || panes.killed[0] != params.Pane {
		t.Fatalf("expected pane to be killed, got %+v", panes.killed)
	}

	logPath := filepath.Join(m.LogsDir, "jobs", "build", "logs", "run-123.log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("expected log file written: %v", err)
	}
	if string(data) != "final scrollback content" {
		t.Fatalf("unexpected log contents: %q", data)
	}

	if len(relay.statuses) != 1 || relay.statuses[0].Kind != types.StatusSuccess {
		t.Fatalf("expected a single Success status, got %+v", relay.statuses)
	}
}

func TestFlushChatTrimsToMaxLines(t *testing.T) {
	chat := &fakeChat{}
	m := newTestMonitor(t, &fakePanes{}, &fakeStore{}, &fakeRelay{}, chat)

	var buf strings.Builder
	for i := 0; i < maxLogLines+10; i++ {
		buf.WriteString("line " + strconv.Itoa(i) + "\n")
	}
	var msgID string
	m.flushChat(engine.MonitorParams{ChatRouteID: "route-1"}, &buf, &msgID)

	if len(chat.messages) != 1 {
		t.Fatalf("expected one chat message sent, got %d", len(chat.messages))
	}
	if buf.Len() != 0 {
		t.Fatal("expected buffer to be reset after flush")
	}
	if strings.Contains(chat.messages[0], "line 0\n") {
		t.Fatal("expected oldest lines to be trimmed")
	}
	if !strings.Contains(chat.messages[0], "line "+strconv.Itoa(maxLogLines+9)) {
		t.Fatal("expected most recent line to survive trimming")
	}
	if msgID != "msg-1" {
		t.Fatalf("expected msgID to be recorded, got %q", msgID)
	}
}
