// Package broker implements the server-side peer: a central in-memory
// router, keyed by user id, that fans messages out between one user's
// desktop(s) and mobile(s), caches the last question set for replay, and
// gates push notifications with dedup/rate-limit.
package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwt-dev/cwtd/internal/types"
)

const (
	questionPushTTL = time.Hour
	defaultPushRate = 10 * time.Second
)

// desktopConn is one connected desktop app.
type desktopConn struct {
	deviceID   string
	deviceName string
	conn       *websocket.Conn
	send       chan []byte
}

// mobileConn is one connected mobile/web client.
type mobileConn struct {
	connID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks every active connection and routes messages between them.
// Safe for concurrent use.
type Hub struct {
	mu            sync.RWMutex
	desktops      map[string][]*desktopConn
	mobiles       map[string][]*mobileConn
	lastQuestions map[string]json.RawMessage
	autoYesPanes  map[string]map[string]bool

	pushMu    sync.Mutex
	pushed    map[string]time.Time // "pushed_q:{question_id}" -> expiry
	rateLimit map[string]time.Time // "push_limit:{user_id}" -> expiry
	rateTTL   time.Duration

	Push PushSender
}

// New creates an empty Hub.
func New(push PushSender) *Hub {
	return &Hub{
		desktops:      make(map[string][]*desktopConn),
		mobiles:       make(map[string][]*mobileConn),
		lastQuestions: make(map[string]json.RawMessage),
		autoYesPanes:  make(map[string]map[string]bool),
		pushed:        make(map[string]time.Time),
		rateLimit:     make(map[string]time.Time),
		rateTTL:       defaultPushRate,
		Push:          push,
	}
}

// AddDesktop registers a connected desktop and notifies the user's mobiles.
func (h *Hub) AddDesktop(userID, deviceID, deviceName string, conn *websocket.Conn) *desktopConn {
	d := &desktopConn{deviceID: deviceID, deviceName: deviceName, conn: conn, send: make(chan []byte, 256)}
	h.mu.Lock()
	h.desktops[userID] = append(h.desktops[userID], d)
	h.mu.Unlock()

	h.broadcastDesktopStatus(userID, deviceID, deviceName, true)
	return d
}

// RemoveDesktop unregisters a desktop and notifies the user's mobiles.
func (h *Hub) RemoveDesktop(userID string, d *desktopConn) {
	h.mu.Lock()
	conns := h.desktops[userID]
	for i, c := range conns {
		if c == d {
			h.desktops[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.desktops[userID]) == 0 {
		delete(h.desktops, userID)
	}
	h.mu.Unlock()
	close(d.send)

	h.broadcastDesktopStatus(userID, d.deviceID, d.deviceName, false)
}

// AddMobile registers a connected mobile client, replaying current desktop
// status and the cached question set.
func (h *Hub) AddMobile(userID, connID string, conn *websocket.Conn) *mobileConn {
	m := &mobileConn{connID: connID, conn: conn, send: make(chan []byte, 256)}

	h.mu.Lock()
	for _, d := range h.desktops[userID] {
		h.sendRawLocked(m, statusFrame(d.deviceID, d.deviceName, true))
	}
	if cached, ok := h.lastQuestions[userID]; ok {
		h.sendRawLocked(m, cached)
	}
	h.mobiles[userID] = append(h.mobiles[userID], m)
	h.mu.Unlock()

	return m
}

// RemoveMobile unregisters a mobile client.
func (h *Hub) RemoveMobile(userID string, m *mobileConn) {
	h.mu.Lock()
	conns := h.mobiles[userID]
	for i, c := range conns {
		if c == m {
			h.mobiles[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.mobiles[userID]) == 0 {
		delete(h.mobiles, userID)
	}
	h.mu.Unlock()
	close(m.send)
}

// ForwardToDesktop forwards a mobile-originated frame verbatim to every
// online desktop of userID. Returns false if no desktop is online.
func (h *Hub) ForwardToDesktop(userID string, raw []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.desktops[userID]
	if len(conns) == 0 {
		return false
	}
	for _, d := range conns {
		h.trySend(d.send, raw)
	}
	return true
}

// ForwardToMobiles forwards a desktop-originated frame verbatim to every
// mobile client of userID, caching it first if it is a claude_questions
// frame.
func (h *Hub) ForwardToMobiles(userID string, raw []byte) {
	var env types.Envelope
	if json.Unmarshal(raw, &env) == nil && env.Type == types.TypeClaudeQuestions {
		h.mu.Lock()
		h.lastQuestions[userID] = append(json.RawMessage(nil), raw...)
		h.mu.Unlock()
		h.gatePush(userID, raw)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.mobiles[userID] {
		h.trySend(m.send, raw)
	}
}

// HasDesktop reports whether userID has at least one online desktop.
func (h *Hub) HasDesktop(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.desktops[userID]) > 0
}

// SetAutoYesPanes replaces the auto-yes pane set for userID.
func (h *Hub) SetAutoYesPanes(userID string, paneIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(paneIDs) == 0 {
		delete(h.autoYesPanes, userID)
		return
	}
	set := make(map[string]bool, len(paneIDs))
	for _, p := range paneIDs {
		set[p] = true
	}
	h.autoYesPanes[userID] = set
}

func (h *Hub) isAutoYesPane(userID, paneID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.autoYesPanes[userID][paneID]
}

func (h *Hub) broadcastDesktopStatus(userID, deviceID, deviceName string, online bool) {
	frame := statusFrame(deviceID, deviceName, online)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.mobiles[userID] {
		h.trySend(m.send, frame)
	}
}

func statusFrame(deviceID, deviceName string, online bool) []byte {
	data, _ := json.Marshal(types.DesktopStatusMsg{
		Type: types.TypeDesktopStatus, DeviceID: deviceID, DeviceName: deviceName, Online: online,
	})
	return data
}

// trySend is a non-blocking send: a full buffer means the client is too
// slow or already gone, so the message is dropped rather than blocking the
// hub's callers.
func (h *Hub) trySend(ch chan []byte, data []byte) {
	select {
	case ch <- data:
	default:
	}
}

func (h *Hub) sendRawLocked(m *mobileConn, data []byte) {
	select {
	case m.send <- data:
	default:
	}
}
