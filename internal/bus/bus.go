// Package bus fans breach reports out to other services over NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultSubject is the subject breach events are published on.
	DefaultSubject = "invision.breaches"

	drainTimeout = 10 * time.Second
)

// BreachEvent is the message published for every detected breach.
type BreachEvent struct {
	JobID       string    `json:"job_id,omitempty"`
	CameraID    string    `json:"camera_id"`
	UserID      string    `json:"user_id"`
	Room        string    `json:"room"`
	RuleID      string    `json:"rule_id"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt BreachEvent) error
	Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, BreachEvent) error { return nil }
func (NopPublisher) Close()                                      {}

// natsConn is the subset of *nats.Conn used here.
type natsConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
	Close()
}

// NATSPublisher publishes JSON-encoded breach events to a NATS subject.
type NATSPublisher struct {
	conn    natsConn
	subject string
	// closed is signalled by the connection once a drain has finished.
	closed chan struct{}
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	closed := make(chan struct{})
	conn, err := nats.Connect(url,
		nats.Name("invision"),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject, closed: closed}, nil
}

func (p *NATSPublisher) Subject() string {
	return p.subject
}

func (p *NATSPublisher) Publish(ctx context.Context, evt BreachEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending publishes and waits for the connection to close.
// Drain closes the connection itself when it completes.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return
	}
	select {
	case <-p.closed:
	case <-time.After(drainTimeout + time.Second):
	}
}

// Subscribe delivers every decodable event published on the subject to
// handler. Undecodable messages are passed to onError when it is non-nil.
func (p *NATSPublisher) Subscribe(handler func(BreachEvent), onError func(error)) (*nats.Subscription, error) {
	return p.conn.Subscribe(p.subject, func(msg *nats.Msg) {
		var evt BreachEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			if onError != nil {
				onError(fmt.Errorf("decode breach event: %w", err))
			}
			return
		}
		handler(evt)
	})
}
