package queue

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Manager handles the NATS connection used as the live fan-out transport for
// the event bus (§4.B). The durable log lives in Postgres; NATS only carries
// best-effort notifications to whatever is subscribed right now.
type Manager struct {
	conn    *nats.Conn
	url     string
	options []nats.Option
}

// NewManager creates a new NATS manager
func NewManager(natsURL string) (*Manager, error) {
	options := []nats.Option{
		nats.Name("dispatch-core"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("NATS connection closed")
		}),
	}

	// Connect to NATS
	conn, err := nats.Connect(natsURL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("Connected to NATS at %s", natsURL)

	return &Manager{
		conn:    conn,
		url:     natsURL,
		options: options,
	}, nil
}

// Close closes the NATS connection
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

// Conn returns the NATS connection
func (m *Manager) Conn() *nats.Conn {
	return m.conn
}

// Publish publishes a message to a subject
func (m *Manager) Publish(subject string, data []byte) error {
	return m.conn.Publish(subject, data)
}

// Subscribe subscribes to a subject with a handler. Callers that need a
// bounded buffer (§5 — drop on overflow rather than block the publisher)
// should call sub.SetPendingLimits on the returned subscription.
func (m *Manager) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return m.conn.Subscribe(subject, handler)
}

// NATS subject patterns used across the system. There is no queue-group
// load balancing here — every subscriber (each SSE client) wants its own copy
// of each message, not one-of-many.
const (
	// SubjectEventsPublished carries every domain event appended to the
	// durable log, for live SSE fan-out (§4.B, §4.N).
	SubjectEventsPublished = "events.published"

	// SubjectImapPollNow names a poll-now subject. Nothing in this module
	// publishes or subscribes to it: the IMAP worker is nudged through its
	// in-process Worker.PollNow channel instead (§4.C, §2.O).
	SubjectImapPollNow = "imap.poll.now"
)
