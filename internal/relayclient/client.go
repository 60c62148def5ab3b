// Package relayclient maintains the desktop side of the relay connection:
// a reconnecting WebSocket session that pushes job state to the broker and
// answers commands forwarded from a mobile client.
package relayclient

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwt-dev/cwtd/internal/paneops"
	"github.com/cwt-dev/cwtd/internal/statustable"
	"github.com/cwt-dev/cwtd/internal/types"
)

const (
	minBackoff  = 1 * time.Second
	maxBackoff  = 60 * time.Second
	pingEvery   = 30 * time.Second
	idleTimeout = 90 * time.Second
)

// JobsStore is the subset of internal/jobstore.Store the client needs.
type JobsStore interface {
	Jobs() []types.Job
	FindByName(name string) (types.Job, bool)
}

// Dispatcher runs a job; RunJob always uses TriggerRemote.
type Dispatcher interface {
	Execute(ctx context.Context, job types.Job, trigger types.Trigger, params map[string]string)
}

// HistoryReader serves run history for a job.
type HistoryReader interface {
	GetByJob(name string, limit int) ([]types.RunRecord, error)
}

// Client is the desktop-side relay connection. One Client instance
// maintains one long-lived connection to the broker for the lifetime of
// the daemon, reconnecting with exponential backoff on failure.
type Client struct {
	ServerURL   string
	DeviceToken string

	Jobs      JobsStore
	Statuses  *statustable.Table
	Engine    Dispatcher
	History   HistoryReader
	Panes     *paneops.Ops

	mu   sync.Mutex
	conn *websocket.Conn
}

// New wires a Client.
func New(serverURL, deviceToken string, jobs JobsStore, statuses *statustable.Table, engine Dispatcher, history HistoryReader, panes *paneops.Ops) *Client {
	return &Client{
		ServerURL:   serverURL,
		DeviceToken: deviceToken,
		Jobs:        jobs,
		Statuses:    statuses,
		Engine:      engine,
		History:     history,
		Panes:       panes,
	}
}

// Run connects and reconnects forever with exponential backoff until ctx
// is canceled.
func (c *Client) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		log.Printf("[RELAY] connecting to %s", c.ServerURL)
		conn, err := c.dial(ctx)
		if err != nil {
			log.Printf("[RELAY] connect failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		log.Printf("[RELAY] connected")
		backoff = minBackoff

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.pushFullState()
		c.session(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Printf("[RELAY] connection lost, reconnecting in %s", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("device_token", c.DeviceToken)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), http.Header{})
	return conn, err
}

// session pumps inbound frames and outbound pushes until the connection
// drops, the daemon shuts down, or the idle timeout fires.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) {
	incoming := make(chan []byte, 16)
	readErr := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			incoming <- data
		}
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-incoming:
			idle.Reset(idleTimeout)
			c.handleIncoming(ctx, conn, data)
		case <-readErr:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-idle.C:
			log.Printf("[RELAY] idle timeout, reconnecting")
			return
		}
	}
}

func (c *Client) send(conn *websocket.Conn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[RELAY] failed to marshal outbound message: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[RELAY] write failed: %v", err)
	}
}

// pushFullState sends the current job list and statuses. Run calls it once
// after each successful connect.
func (c *Client) pushFullState() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	statuses := c.Statuses.All()
	c.send(conn, types.JobsChangedMsg{Type: types.TypeJobsChanged, Jobs: c.Jobs.Jobs(), Statuses: statuses})
}

// SendStatus implements engine.Relay: pushes a single job's status.
func (c *Client) SendStatus(name string, status types.JobStatus) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.send(conn, types.StatusUpdateMsg{Type: types.TypeStatusUpdate, Name: name, Status: status})
}

// SendJobEvent implements engine.Relay: pushes a lifecycle notification.
func (c *Client) SendJobEvent(name, event, runID string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.send(conn, types.JobNotificationMsg{Type: types.TypeJobNotification, Name: name, Event: event, RunID: runID})
}

// SendLogChunk implements monitor.Relay.
func (c *Client) SendLogChunk(name, content string, ts time.Time) {
	if content == "" {
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.send(conn, types.LogChunkMsg{Type: types.TypeLogChunk, Name: name, Content: content, Timestamp: ts.UTC().Format(time.RFC3339)})
}

// SendQuestions implements monitor.Relay.
func (c *Client) SendQuestions(qs []types.Question) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.send(conn, types.ClaudeQuestionsMsg{Type: types.TypeClaudeQuestions, Questions: qs})
}
