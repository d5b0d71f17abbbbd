package internal

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zefir/statki-go-backend/internal/ws"
)

const writeWait = 10 * time.Second

// ClientConn is one socket. Only its write loop writes to the connection.
type ClientConn struct {
	ID      uint64
	conn    net.Conn
	outbox  chan []byte
	limiter *rate.Limiter
	done    chan struct{}
	once    sync.Once

	// user and client are set once authenticated; read loop only.
	user   string
	client *Client

	log zerolog.Logger
}

func newClientConn(id uint64, conn net.Conn, queueSize int, limiter *rate.Limiter, log zerolog.Logger) *ClientConn {
	return &ClientConn{
		ID:      id,
		conn:    conn,
		outbox:  make(chan []byte, queueSize),
		limiter: limiter,
		done:    make(chan struct{}),
		log:     log.With().Uint64("conn", id).Logger(),
	}
}

// Send queues one message. A client that stops reading fills its outbox
// and gets disconnected.
func (c *ClientConn) Send(t MsgType, payload []byte) {
	c.enqueue(ws.Encode(uint16(t), payload))
}

func (c *ClientConn) enqueue(frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.outbox <- frame:
	default:
		c.log.Warn().Msg("outbox full, dropping connection")
		c.Close()
	}
}

// Shutdown closes the socket with a close frame after queued messages.
func (c *ClientConn) Shutdown() { c.enqueue(nil) }

func (c *ClientConn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *ClientConn) Done() <-chan struct{} { return c.done }

// writeLoop drains the outbox and pings the client every interval.
func (c *ClientConn) writeLoop(interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	ping := ws.Encode(uint16(ServerCmds.Ping), nil)

	write := func(frame []byte) bool {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteServer(c.conn, frame); err != nil {
			c.log.Debug().Err(err).Msg("write failed")
			c.Close()
			return false
		}
		return true
	}

	for {
		select {
		case frame := <-c.outbox:
			if frame == nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteClose(c.conn)
				c.Close()
				return
			}
			if !write(frame) {
				return
			}
		case <-tick:
			if !write(ping) {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Client is a logged in user with every socket they have open.
type Client struct {
	name  string
	mu    sync.Mutex
	conns map[uint64]*ClientConn
}

func (c *Client) Name() string { return c.name }

// Send delivers to every socket of the user.
func (c *Client) Send(t MsgType, payload []byte) {
	frame := ws.Encode(uint16(t), payload)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		conn.enqueue(frame)
	}
}

func (c *Client) ConnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// ClientHub maps usernames to their connected clients.
type ClientHub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientHub() *ClientHub {
	return &ClientHub{clients: make(map[string]*Client)}
}

func (h *ClientHub) Attach(user string, conn *ClientConn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[user]
	if !ok {
		client = &Client{name: user, conns: make(map[uint64]*ClientConn)}
		h.clients[user] = client
	}
	client.mu.Lock()
	client.conns[conn.ID] = conn
	client.mu.Unlock()
	return client
}

// Detach removes one socket and returns how many the user still has.
func (h *ClientHub) Detach(user string, conn *ClientConn) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[user]
	if !ok {
		return 0
	}
	client.mu.Lock()
	delete(client.conns, conn.ID)
	left := len(client.conns)
	client.mu.Unlock()
	if left == 0 {
		delete(h.clients, user)
	}
	return left
}

func (h *ClientHub) Get(user string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[user]
	return client, ok
}

func (h *ClientHub) Online(user string) bool {
	_, ok := h.Get(user)
	return ok
}

func (h *ClientHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
