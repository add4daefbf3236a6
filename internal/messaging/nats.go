// Package messaging provides a NATS client wrapper shared by the signaling
// server and the moderator service. It handles connection lifecycle, the
// moderation request/reply channel, and the report and audit event subjects.
package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used across TalkNow services.
const (
	SubjectModerationCheck = "moderation.check" // request/reply
	SubjectModerationAudit = "moderation.audit" // fire-and-forget audit trail
	SubjectReportFiled     = "report.filed"     // user reports for persistence
)

// moderator instances share one queue group so each check is answered once.
const ModerationQueueGroup = "moderators"

// Client wraps the NATS connection with helper methods for the subjects above.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "talknow",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Request sends a request to subject and waits for a single reply, bounded by
// the context deadline. Callers decide how a timeout is treated.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// RequestModeration sends a moderation check and returns the raw reply.
func (c *Client) RequestModeration(ctx context.Context, data []byte) ([]byte, error) {
	return c.Request(ctx, SubjectModerationCheck, data)
}

// RespondModeration registers a queue-group responder for moderation checks.
// The handler's return value is sent back as the reply.
func (c *Client) RespondModeration(handler func(data []byte) []byte) error {
	sub, err := c.conn.QueueSubscribe(SubjectModerationCheck, ModerationQueueGroup, func(msg *nats.Msg) {
		reply := handler(msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			log.Printf("[nats] moderation reply: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectModerationCheck, err)
	}

	c.mu.Lock()
	c.subs[SubjectModerationCheck] = sub
	c.mu.Unlock()
	return nil
}

// PublishReport publishes a filed user report for persistence.
func (c *Client) PublishReport(data []byte) error {
	return c.Publish(SubjectReportFiled, data)
}

// SubscribeReports registers a handler for filed reports.
func (c *Client) SubscribeReports(handler func(data []byte)) error {
	return c.subscribe(SubjectReportFiled, handler)
}

// PublishAudit publishes a moderation audit record.
func (c *Client) PublishAudit(data []byte) error {
	return c.Publish(SubjectModerationAudit, data)
}

// SubscribeAudit registers a handler for moderation audit records.
func (c *Client) SubscribeAudit(handler func(data []byte)) error {
	return c.subscribe(SubjectModerationAudit, handler)
}

// subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
