package signal

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServerOptions tune the websocket front end. Zero values fall back to
// defaults.
type ServerOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	SendQueueSize   int
	MaxMessageSize  int64
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
}

func (o ServerOptions) withDefaults() ServerOptions {
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = 1024
	}
	if o.WriteBufferSize == 0 {
		o.WriteBufferSize = 1024
	}
	if o.SendQueueSize == 0 {
		o.SendQueueSize = 64
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout == 0 {
		o.PongTimeout = 60 * time.Second
	}
	return o
}

// Server is the websocket front end of the relay. Each connection gets a
// buffered send queue drained by a single writer, so delivery order per
// sender is preserved end to end.
type Server struct {
	reg      *Registry
	relay    *Relay
	opts     ServerOptions
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer creates a relay server.
func NewServer(log *slog.Logger, opts ServerOptions) *Server {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	reg := NewRegistry(log)
	return &Server{
		reg:   reg,
		relay: NewRelay(reg, log),
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// Viewers connect from arbitrary kiosk origins.
				return true
			},
		},
		log: log,
	}
}

// Registry exposes the underlying room registry for observability.
func (s *Server) Registry() *Registry { return s.reg }

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, s.opts.SendQueueSize),
		srv:  s,
	}
	go c.writePump()
	go c.readPump()
}

// wsClient is one websocket participant. It implements Member.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan Message
	srv  *Server
}

func (c *wsClient) ID() string { return c.id }

// Send queues msg for delivery. Non-blocking per the Member contract.
func (c *wsClient) Send(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.srv.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.srv.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.srv.opts.PongTimeout))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.log.Warn("websocket read error", "member", c.id, "err", err)
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.srv.opts.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleMessage(msg Message) {
	msg.Room = NormalizeRoomID(msg.Room)

	switch {
	case msg.Type == TypeJoinRoom:
		c.handleJoin(msg)
	case msg.Type == TypeStopShare:
		// Forward first so the peer learns the share ended, then evict the
		// sender so a later join starts from a clean room.
		c.srv.relay.Route(c, msg)
		c.srv.reg.Leave(c)
	case msg.IsSignal():
		c.srv.relay.Route(c, msg)
	default:
		c.srv.log.Warn("unknown message type", "type", msg.Type, "member", c.id)
	}
}

func (c *wsClient) handleJoin(msg Message) {
	if !ValidateRoomID(msg.Room) {
		c.Send(Message{Type: TypeError, Error: "invalid room id"})
		return
	}
	c.srv.reg.Join(msg.Room, c)
	c.Send(Message{Type: TypeJoined, Room: msg.Room})
	c.srv.relay.Route(c, Message{Type: TypePeerJoined, Room: msg.Room})
}

// close tears the participant down: leave the registry, tell the remaining
// room members, and close the socket.
func (c *wsClient) close() {
	if room, ok := c.srv.reg.RoomOf(c); ok {
		c.srv.reg.Leave(c)
		c.srv.relay.Route(c, Message{Type: TypePeerLeft, Room: room})
	}
	c.conn.Close()
}
