package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/teamcodes/internal/server/sharedview"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is one websocket viewer connection. Frames are queued on send
// and flushed by WritePump; the hub owns closing send on unregister.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	token string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(h *Hub, conn *websocket.Conn, token string) *Client {
	return &Client{
		hub:   h,
		conn:  conn,
		token: token,
		send:  make(chan []byte, 16),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() { c.hub.register <- c }

// Enqueue marshals a state frame onto the outgoing queue. Slow consumers
// get dropped rather than blocking the session.
func (c *Client) Enqueue(st sharedview.State) bool {
	data, err := json.Marshal(st)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close drops this client: WritePump sends a close frame and the peer's
// read fails. Safe to call more than once.
func (c *Client) Close() { c.closeSend() }

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump consumes (and discards) client messages so pongs and close
// frames are processed. Returns when the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump flushes queued frames to the connection and keeps it alive
// with pings. Returns when send is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
