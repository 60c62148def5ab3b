package broker

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/cwt-dev/cwtd/internal/types"
)

const (
	heartbeatInterval = 30 * time.Second
	readIdleTimeout   = 90 * time.Second
	serverVersion     = "1"
)

// Authenticator resolves connection tokens to a user id. Credential
// storage and issuance are out of scope; callers plug in whatever scheme
// fits their deployment.
type Authenticator interface {
	AuthenticateDesktop(token string) (userID, deviceID, deviceName string, err error)
	AuthenticateMobile(token string) (userID string, err error)
}

var allowedOrigins = initAllowedOrigins()

func initAllowedOrigins() []string {
	defaults := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	if env := os.Getenv("CWTD_BROKER_ALLOWED_ORIGINS"); env != "" {
		for _, o := range strings.Split(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				defaults = append(defaults, o)
			}
		}
	}
	return defaults
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

// Server wires the Hub to HTTP.
type Server struct {
	Hub  *Hub
	Auth Authenticator
}

// NewServer wires a Server.
func NewServer(hub *Hub, auth Authenticator) *Server {
	return &Server{Hub: hub, Auth: auth}
}

// Router builds the broker's HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/desktop", s.handleDesktop)
	r.HandleFunc("/ws/mobile", s.handleMobile)
	r.HandleFunc("/healthz", s.handleHealthz)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleDesktop(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("device_token")
	userID, deviceID, deviceName, err := s.Auth.AuthenticateDesktop(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if deviceID == "" {
		deviceID = uuid.New().String()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[BROKER] desktop upgrade failed: %v", err)
		return
	}

	d := s.Hub.AddDesktop(userID, deviceID, deviceName, conn)
	s.sendWelcome(conn, "")

	done := make(chan struct{})
	go s.writePump(conn, d.send, done)
	s.readDesktopPump(conn, userID, d)
	close(done)
	conn.Close()
	s.Hub.RemoveDesktop(userID, d)
}

func (s *Server) handleMobile(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := s.Auth.AuthenticateMobile(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[BROKER] mobile upgrade failed: %v", err)
		return
	}

	connID := uuid.New().String()
	s.sendWelcome(conn, connID)
	m := s.Hub.AddMobile(userID, connID, conn)

	done := make(chan struct{})
	go s.writePump(conn, m.send, done)
	s.readMobilePump(conn, userID, m)
	close(done)
	conn.Close()
	s.Hub.RemoveMobile(userID, m)
}

func (s *Server) sendWelcome(conn *websocket.Conn, connID string) {
	data, _ := json.Marshal(types.WelcomeMsg{Type: types.TypeWelcome, ConnectionID: connID, ServerVersion: serverVersion})
	conn.WriteMessage(websocket.TextMessage, data)
}

// readDesktopPump forwards every desktop frame to the user's mobiles.
func (s *Server) readDesktopPump(conn *websocket.Conn, userID string, d *desktopConn) {
	conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		s.Hub.ForwardToMobiles(userID, data)
	}
}

// readMobilePump forwards every mobile frame to the user's desktops,
// replying with a DESKTOP_OFFLINE error if none are online.
func (s *Server) readMobilePump(conn *websocket.Conn, userID string, m *mobileConn) {
	conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))

		if !s.Hub.ForwardToDesktop(userID, data) {
			var env types.Envelope
			json.Unmarshal(data, &env)
			errData, _ := json.Marshal(types.ErrorMsg{
				Type: types.TypeError, ID: env.ID, Code: types.ErrDesktopOffline, Message: "no desktop is connected for this user",
			})
			s.trySendDirect(conn, errData)
		}
	}
}

func (s *Server) trySendDirect(conn *websocket.Conn, data []byte) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.WriteMessage(websocket.TextMessage, data)
}

// writePump drains a connection's send channel, pinging on heartbeatInterval
// idle periods to keep the connection alive.
func (s *Server) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case data, ok := <-send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
