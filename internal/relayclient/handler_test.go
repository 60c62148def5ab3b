package relayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwt-dev/cwtd/internal/statustable"
	"github.com/cwt-dev/cwtd/internal/types"
)

var upgrader = websocket.Upgrader{}

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

type fakeHistory struct{}

func (fakeHistory) GetByJob(name string, limit int) ([]types.RunRecord, error) {
	return []types.RunRecord{{ID: "r1", JobName: name}}, nil
}

// newTestPair starts a test server acting as the broker side and dials a
// client connection against it, returning both ends plus a teardown func.
func newTestPair(t *testing.T) (clientConn, serverConn *websocket.Conn, teardown func()) {
	t.Helper()
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	u, _ := url.Parse(wsURL)

	cc, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	select {
	case sc := <-serverCh:
		return cc, sc, func() {
			cc.Close()
			sc.Close()
			srv.Close()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
		return nil, nil, nil
	}
}

func newTestClient(jobs *fakeJobs, dispatcher *fakeDispatcher, conn *websocket.Conn) *Client {
	c := New("ws://unused", "token", jobs, statustable.New(), dispatcher, fakeHistory{}, nil)
	c.conn = conn
	return c
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
}

func TestHandleRunJobDispatchesAndAcks(t *testing.T) {
	clientConn, serverConn, teardown := newTestPair(t)
	defer teardown()

	jobs := &fakeJobs{jobs: []types.Job{{Name: "build"}}}
	dispatcher := &fakeDispatcher{}
	c := newTestClient(jobs, dispatcher, clientConn)

	msg := types.RunJobMsg{Type: types.TypeRunJob, ID: "req-1", Name: "build"}
	data, _ := json.Marshal(msg)
	c.handleIncoming(context.Background(), clientConn, data)

	var ack types.AckMsg
	readJSON(t, serverConn, &ack)
	if !ack.Success || ack.ID != "req-1" {
		t.Fatalf("expected successful ack for req-1, got %+v", ack)
	}

	deadline := time.Now().Add(time.Second)
	for len(dispatcher.ran) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(dispatcher.ran) != 1 || dispatcher.ran[0] != "build" {
		t.Fatalf("expected job 'build' to be dispatched, got %+v", dispatcher.ran)
	}
}

func TestHandleRunJobUnknownNameFails(t *testing.T) {
	clientConn, serverConn, teardown := newTestPair(t)
	defer teardown()

	c := newTestClient(&fakeJobs{}, &fakeDispatcher{}, clientConn)

	msg := types.RunJobMsg{Type: types.TypeRunJob, ID: "req-2", Name: "missing"}
	data, _ := json.Marshal(msg)
	c.handleIncoming(context.Background(), clientConn, data)

	var ack types.AckMsg
	readJSON(t, serverConn, &ack)
	if ack.Success {
		t.Fatal("expected failure ack for unknown job")
	}
}

func TestHandlePauseResumeRequireMatchingState(t *testing.T) {
	clientConn, serverConn, teardown := newTestPair(t)
	defer teardown()

	c := newTestClient(&fakeJobs{}, &fakeDispatcher{}, clientConn)

	pause := types.PauseJobMsg{Type: types.TypePauseJob, ID: "p1", Name: "idle-job"}
	data, _ := json.Marshal(pause)
	c.handleIncoming(context.Background(), clientConn, data)

	var ack types.AckMsg
	readJSON(t, serverConn, &ack)
	if ack.Success {
		t.Fatal("expected pause to fail for a job that is not running")
	}

	resume := types.ResumeJobMsg{Type: types.TypeResumeJob, ID: "r1", Name: "idle-job"}
	data, _ = json.Marshal(resume)
	c.handleIncoming(context.Background(), clientConn, data)

	readJSON(t, serverConn, &ack)
	if ack.Success || ack.ID != "r1" {
		t.Fatalf("expected resume to fail for a job that is not paused, got %+v", ack)
	}
}

func TestHandleListJobsReturnsSnapshot(t *testing.T) {
	clientConn, serverConn, teardown := newTestPair(t)
	defer teardown()

	jobs := &fakeJobs{jobs: []types.Job{{Name: "build"}, {Name: "deploy"}}}
	c := newTestClient(jobs, &fakeDispatcher{}, clientConn)

	msg := types.ListJobsMsg{Type: types.TypeListJobs, ID: "l1"}
	data, _ := json.Marshal(msg)
	c.handleIncoming(context.Background(), clientConn, data)

	var list types.JobsListMsg
	readJSON(t, serverConn, &list)
	if len(list.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list.Jobs))
	}
}

func TestHandleGetRunHistoryReturnsRuns(t *testing.T) {
	clientConn, serverConn, teardown := newTestPair(t)
	defer teardown()

	c := newTestClient(&fakeJobs{}, &fakeDispatcher{}, clientConn)

	msg := types.GetRunHistoryMsg{Type: types.TypeGetRunHistory, ID: "h1", Name: "build", Limit: 5}
	data, _ := json.Marshal(msg)
	c.handleIncoming(context.Background(), clientConn, data)

	var resp types.RunHistoryMsg
	readJSON(t, serverConn, &resp)
	if len(resp.Runs) != 1 || resp.Runs[0].ID != "r1" {
		t.Fatalf("expected one run record, got %+v", resp.Runs)
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	b := minBackoff
	for i := 0; i < 20; i++ {
		b = nextBackoff(b)
	}
	if b != maxBackoff {
		t.Fatalf("expected backoff to cap at %s, got %s", maxBackoff, b)
	}
}
