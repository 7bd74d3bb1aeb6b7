package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mkruglov/roomcast/internal/dns"
	"github.com/mkruglov/roomcast/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024

	// DefaultRetryInterval is how long the channel waits before re-attempting
	// delivery of queued messages.
	DefaultRetryInterval = 2 * time.Second
)

// Handler consumes one decoded message. Synthetic ONOPEN/ONCLOSE events are
// delivered with an empty payload.
type Handler func(msg *protocol.Message)

// Channel is the duplex signaling transport. Messages submitted while the
// connection is not ready are queued and flushed, in submission order, once
// the connection (re)opens. A message handed to Send is never dropped as long
// as the channel keeps retrying.
type Channel struct {
	serverURL string
	dialer    *websocket.Dialer
	log       *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	ready    bool
	terminal bool
	token    string
	peerID   string
	queue    []*protocol.Message
	retry    *time.Timer
	interval time.Duration

	handlers map[protocol.MessageType]Handler
}

// NewChannel creates a channel that will dial serverURL (a ws:// or wss://
// endpoint).
func NewChannel(serverURL string) *Channel {
	// Custom dialer with resolver fallback: some captive networks break the
	// system resolver while public DNS still answers.
	dialer := *websocket.DefaultDialer
	dialer.NetDial = func(network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		resolvedIP, err := dns.Lookup(host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		return net.Dial(network, net.JoinHostPort(resolvedIP, port))
	}

	return &Channel{
		serverURL: serverURL,
		dialer:    &dialer,
		log:       slog.Default().With("component", "signaling"),
		interval:  DefaultRetryInterval,
		handlers:  make(map[protocol.MessageType]Handler),
	}
}

// SetRetryInterval overrides the queue retry interval. Must be called before
// Connect.
func (c *Channel) SetRetryInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = d
}

// On registers the handler for a message type. Exactly one handler exists per
// type; a later registration replaces the earlier one.
func (c *Channel) On(t protocol.MessageType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = h
}

// PeerID returns the participant id of the current connection attempt. It is
// regenerated on every (re)dial and is not stable across reconnects.
func (c *Channel) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// Connect opens the transport using the bearer token and returns the freshly
// generated participant id. A dial failure is terminal for the session.
func (c *Channel) Connect(ctx context.Context, token string) (string, error) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		return "", fmt.Errorf("signaling connect: %w", err)
	}
	return c.PeerID(), nil
}

func (c *Channel) dial(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	c.mu.Lock()
	id := uuid.NewString()
	q := u.Query()
	q.Set("id", id)
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.peerID = id
	c.ready = true
	c.flushLocked()
	c.mu.Unlock()

	// A redial supersedes any previous socket; close it so its read pump
	// exits instead of lingering until the peer notices.
	if old != nil {
		old.Close()
	}

	go c.readPump(conn)

	c.dispatch(&protocol.Message{Type: protocol.TypeOnOpen})
	return nil
}

// Send transmits the message if the connection is ready, flushing any queued
// backlog first. Otherwise it queues the message and arms the retry timer; at
// most one timer is ever pending.
func (c *Channel) Send(msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		c.queue = append(c.queue, msg)
		c.armRetryLocked()
		return
	}

	c.queue = append(c.queue, msg)
	c.flushLocked()
}

// flushLocked drains the queue in FIFO order. On a write failure the
// unsent remainder stays queued and the retry timer is armed.
func (c *Channel) flushLocked() {
	for len(c.queue) > 0 {
		msg := c.queue[0]
		if err := c.writeLocked(msg); err != nil {
			c.log.Warn("send failed, message kept queued", "type", msg.Type, "error", err)
			c.ready = false
			c.armRetryLocked()
			return
		}
		c.queue = c.queue[1:]
	}
}

func (c *Channel) writeLocked(msg *protocol.Message) error {
	bts, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, bts)
}

// armRetryLocked schedules a retry unless one is already pending.
func (c *Channel) armRetryLocked() {
	if c.retry != nil || c.terminal {
		return
	}
	c.retry = time.AfterFunc(c.interval, c.onRetry)
}

func (c *Channel) onRetry() {
	c.mu.Lock()
	c.retry = nil
	if c.terminal || len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	if c.ready {
		c.flushLocked()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// Transport is down: redial with a fresh participant id, then the dial
	// path flushes the backlog.
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.log.Warn("reconnect failed", "error", err)
		c.mu.Lock()
		c.armRetryLocked()
		c.mu.Unlock()
	}
}

func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		_, bts, err := conn.ReadMessage()
		if err != nil {
			deliberate := websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway)
			c.mu.Lock()
			if c.conn == conn {
				c.ready = false
				if deliberate {
					// The server hung up on purpose: downgrade, do not retry.
					c.terminal = true
				}
			}
			stale := c.conn != conn
			c.mu.Unlock()
			if !stale {
				c.dispatch(&protocol.Message{Type: protocol.TypeOnClose})
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(bts, &msg); err != nil {
			c.log.Warn("discarding malformed message", "error", err)
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Channel) dispatch(msg *protocol.Message) {
	c.mu.Lock()
	h := c.handlers[msg.Type]
	c.mu.Unlock()

	if h == nil {
		c.log.Debug("no handler for message type", "type", msg.Type)
		return
	}
	h(msg)
}

// Close tears the transport down and cancels any pending retry. Queued
// messages are abandoned.
func (c *Channel) Close() {
	c.mu.Lock()
	c.terminal = true
	c.ready = false
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}
