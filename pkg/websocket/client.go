package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client is a single dashboard connection.
type Client struct {
	ID   string
	Role string

	Send chan *Message

	conn *websocket.Conn
	hub  *Hub
	log  *zap.Logger

	mu      sync.Mutex
	caseKey string
	closed  bool
}

// NewClient wraps an upgraded connection. The caller registers the
// client with the hub and starts the pumps.
func NewClient(id string, conn *websocket.Conn, hub *Hub, role string, log *zap.Logger) *Client {
	return &Client{
		ID:   id,
		Role: role,
		Send: make(chan *Message, sendBufferSize),
		conn: conn,
		hub:  hub,
		log:  log,
	}
}

// GetCase returns the case room this client currently watches.
func (c *Client) GetCase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caseKey
}

func (c *Client) setCase(caseKey string) {
	c.mu.Lock()
	c.caseKey = caseKey
	c.mu.Unlock()
}

// SendMessage queues a message for delivery. Slow clients that cannot
// drain their buffer are disconnected rather than blocking the hub.
func (c *Client) SendMessage(msg *Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	select {
	case c.Send <- msg:
		c.mu.Unlock()
	default:
		c.closed = true
		close(c.Send)
		c.mu.Unlock()
		c.log.Warn("dashboard client send buffer full, dropping connection",
			zap.String("client_id", c.ID),
		)
	}
}

func (c *Client) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// ReadPump reads inbound messages and dispatches them through the hub.
// It runs until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("dashboard connection closed unexpectedly",
					zap.String("client_id", c.ID),
					zap.Error(err),
				)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug("malformed dashboard message",
				zap.String("client_id", c.ID),
				zap.Error(err),
			)
			continue
		}
		c.hub.HandleMessage(c, &msg)
	}
}

// WritePump flushes queued messages to the connection and keeps it
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
