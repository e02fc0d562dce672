package signal

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send after the client has been closed or has
// exhausted its reconnect attempts.
var ErrClosed = errors.New("signal: client closed")

const (
	clientWriteWait  = 10 * time.Second
	clientPongWait   = 60 * time.Second
	clientPingPeriod = clientPongWait * 9 / 10
	clientMaxMessage = 64 * 1024
)

// ReconnectPolicy is the transport's retry state machine: how many dial
// attempts to make after the connection drops, and how the delay between
// them grows.
type ReconnectPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
}

// DefaultReconnectPolicy matches the deployed relay clients: up to ten
// attempts, one second apart, backing off to five seconds.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxAttempts: 10, Delay: time.Second, MaxDelay: 5 * time.Second}
}

// Backoff returns the delay before the given 1-based attempt.
func (p ReconnectPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Delay * time.Duration(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Client is the controller's explicitly owned transport handle to the relay.
// Outgoing messages pass through one FIFO queue and one writer goroutine, so
// per-sender delivery order is preserved. When the socket drops, the client
// redials per its ReconnectPolicy and rejoins the room it was in.
type Client struct {
	url    string
	policy ReconnectPolicy
	log    *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
	connOK bool

	// redialed carries one token per fresh connection so a held message can
	// resume delivery.
	redialed chan struct{}

	roomMu sync.Mutex
	room   string

	incoming chan Message
	outgoing chan Message
	done     chan struct{}
	once     sync.Once
}

// NewClient creates a client for the relay at url (e.g. ws://host:8080/ws).
func NewClient(url string, policy ReconnectPolicy, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		url:      url,
		policy:   policy,
		log:      log,
		redialed: make(chan struct{}, 1),
		incoming: make(chan Message, 64),
		outgoing: make(chan Message, 64),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay and starts the read and write pumps. The first
// dial failing is surfaced to the caller; later drops are handled by the
// reconnect policy.
func (c *Client) Connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.setConn(conn)
	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(clientMaxMessage)
	conn.SetReadDeadline(time.Now().Add(clientPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(clientPongWait))
		return nil
	})
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.connOK = true
	c.connMu.Unlock()
	select {
	case c.redialed <- struct{}{}:
	default:
	}
}

func (c *Client) current() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Client) healthyConn() (*websocket.Conn, bool) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn, c.connOK
}

// markDead flags conn as unusable for writes. A newer connection already
// installed by setConn is left alone.
func (c *Client) markDead(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.connOK = false
	}
	c.connMu.Unlock()
}

// JoinRoom registers the client into room on the relay. The room is
// remembered so it can be rejoined after a reconnect.
func (c *Client) JoinRoom(room string) error {
	room = NormalizeRoomID(room)
	c.roomMu.Lock()
	c.room = room
	c.roomMu.Unlock()
	return c.Send(Message{Type: TypeJoinRoom, Room: room})
}

// Send queues msg for ordered delivery to the relay.
func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel of messages from the relay. It is closed
// once the connection is gone for good.
func (c *Client) Incoming() <-chan Message {
	return c.incoming
}

// Close shuts the transport down.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if conn := c.current(); conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(clientWriteWait))
			conn.Close()
		}
	})
}

func (c *Client) readPump() {
	defer close(c.incoming)

	for {
		conn := c.current()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				break
			}
			select {
			case c.incoming <- msg:
			case <-c.done:
				return
			}
		}
		// Stop the writer from draining into the dead socket while we redial.
		c.markDead(conn)

		select {
		case <-c.done:
			return
		default:
		}
		if !c.reconnect() {
			c.Close()
			return
		}
	}
}

// reconnect runs the dial retry loop. Returns false once the policy's
// attempts are exhausted or the client was closed.
func (c *Client) reconnect() bool {
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		delay := c.policy.Backoff(attempt)
		c.log.Info("signal connection lost, reconnecting",
			"attempt", attempt, "delay", delay)

		select {
		case <-time.After(delay):
		case <-c.done:
			return false
		}

		conn, err := c.dial()
		if err != nil {
			c.log.Warn("reconnect failed", "attempt", attempt, "err", err)
			continue
		}
		// Rejoin before publishing the connection so the relay readmits us
		// ahead of any signaling the writer replays.
		c.rejoin(conn)
		c.setConn(conn)
		return true
	}
	c.log.Error("reconnect attempts exhausted", "attempts", c.policy.MaxAttempts)
	return false
}

// rejoin writes the join directly to a not-yet-published connection, so it
// is first on the wire before the writer resumes.
func (c *Client) rejoin(conn *websocket.Conn) {
	c.roomMu.Lock()
	room := c.room
	c.roomMu.Unlock()
	if room == "" {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := conn.WriteJSON(Message{Type: TypeJoinRoom, Room: room}); err != nil {
		c.log.Warn("rejoin failed", "room", room, "err", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.outgoing:
			if !c.deliver(msg) {
				return
			}
		case <-ticker.C:
			if conn, ok := c.healthyConn(); ok {
				conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
				conn.WriteMessage(websocket.PingMessage, nil)
			}
		case <-c.done:
			return
		}
	}
}

// deliver writes msg to the relay, holding it across reconnects so queued
// signaling is replayed in order on the next connection rather than dropped
// into a dead socket. Returns false once the client shut down.
func (c *Client) deliver(msg Message) bool {
	for {
		conn, ok := c.healthyConn()
		if !ok {
			select {
			case <-c.redialed:
				continue
			case <-c.done:
				return false
			}
		}
		conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
		err := conn.WriteJSON(msg)
		if err == nil {
			return true
		}
		c.log.Warn("signal write failed, holding message for reconnect",
			"type", msg.Type, "err", err)
		c.markDead(conn)
	}
}
