package eventbus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	nc "github.com/nats-io/nats.go"
)

// Bus is an embedded-NATS-backed pub/sub handle. A single Bus is shared by
// every in-process publisher and subscriber; the client always connects to
// the embedded server over loopback (127.0.0.1).
type Bus struct {
	embedded *embeddedServer
	conn     *nc.Conn
}

// Start launches an embedded NATS server and connects a client to it.
func Start(cfg ServerConfig) (*Bus, error) {
	embedded, err := startEmbedded(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := nc.Connect(embedded.url(),
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(c *nc.Conn, err error) {
			if err != nil {
				log.Printf("[EVENTBUS] disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(c *nc.Conn) {
			log.Printf("[EVENTBUS] reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		embedded.shutdown()
		return nil, fmt.Errorf("eventbus: failed to connect to embedded server: %w", err)
	}

	return &Bus{embedded: embedded, conn: conn}, nil
}

// Close tears down the client connection and the embedded server.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.embedded != nil {
		b.embedded.shutdown()
	}
}

// Publish JSON-encodes an Event and publishes it on subject.
func (b *Bus) Publish(subject string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[EVENTBUS] marshal failed for subject %s: %v", subject, err)
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		log.Printf("[EVENTBUS] publish failed for subject %s: %v", subject, err)
	}
}

// Subscribe registers an asynchronous handler for subject. The returned
// unsubscribe func is idempotent.
func (b *Bus) Subscribe(subject string, handler func(Event)) (unsubscribe func(), err error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nc.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[EVENTBUS] unmarshal failed for subject %s: %v", subject, err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribe to %s failed: %w", subject, err)
	}
	return func() { sub.Unsubscribe() }, nil
}
