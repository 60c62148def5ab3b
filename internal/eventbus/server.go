// Package eventbus is the internal pub/sub backbone that decouples the
// monitor/engine from whoever needs to react to a job's lifecycle: the relay
// client subscribes through WireRelay instead of the engine calling it
// directly, and further subscribers can bind to the same subjects
// independently.
package eventbus

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// ServerConfig configures the embedded NATS server backing the bus.
type ServerConfig struct {
	Port    int    // -1 picks an OS-assigned free port; 0 means the NATS default 4222
	JetStream bool
	DataDir string
}

// embeddedServer wraps an in-process nats-server instance.
type embeddedServer struct {
	mu      sync.RWMutex
	srv     *server.Server
	running bool
}

func startEmbedded(cfg ServerConfig) (*embeddedServer, error) {
	if cfg.JetStream && cfg.DataDir == "" {
		return nil, fmt.Errorf("eventbus: DataDir is required when JetStream is enabled")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if cfg.JetStream {
		opts.JetStream = true
		opts.StoreDir = cfg.DataDir
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("eventbus: failed to create embedded server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("eventbus: embedded server not ready for connections")
	}

	return &embeddedServer{srv: ns, running: true}, nil
}

func (e *embeddedServer) url() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	port := 4222
	if tcp, ok := e.srv.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return fmt.Sprintf("nats://127.0.0.1:%d", port)
}

func (e *embeddedServer) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.srv.Shutdown()
	e.srv.WaitForShutdown()
	e.running = false
}
