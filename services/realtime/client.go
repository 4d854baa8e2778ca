package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Websocket tunables
const (
	WriteTimeout   = 10 * time.Second
	PongTimeout    = 60 * time.Second
	PingInterval   = 30 * time.Second
	MaxMessageSize = 4096
	SendBufferSize = 256
)

var (
	// ErrSendBufferFull means the client is not draining its outbound queue
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned when sending on a closed client
	ErrConnectionClosed = errors.New("connection closed")
)

// MessageHandler consumes inbound frames for a client
type MessageHandler interface {
	HandleMessage(conn Connection, userID uint, raw []byte)
	Disconnect(conn Connection)
}

// NewUpgrader returns the websocket upgrader used by the connect endpoint
func NewUpgrader(checkOrigin func(r *http.Request) bool) websocket.Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

// Client adapts a gorilla websocket connection to Connection
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	logger *zap.Logger
}

func NewClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, SendBufferSize),
		closed: make(chan struct{}),
		logger: logger.With(zap.String("connection_id", id)),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues an event without blocking
func (c *Client) Send(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame once and tears the connection down
func (c *Client) Close(code int, reason string) error {
	err := ErrConnectionClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(WriteTimeout))
		if closeErr := c.conn.Close(); err == nil {
			err = closeErr
		}
	})
	return err
}

// Run pumps frames until the peer goes away or the client is closed.
// It blocks and always unregisters the client from handler on return.
func (c *Client) Run(handler MessageHandler, userID uint) {
	go c.writePump()
	c.readPump(handler, userID)
}

// writePump writes queued messages and keepalive pings
func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket_write_failed", zap.Error(err))
				c.conn.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// readPump reads client commands and hands them to handler
func (c *Client) readPump(handler MessageHandler, userID uint) {
	defer func() {
		handler.Disconnect(c)
		c.Close(websocket.CloseNormalClosure, "")
	}()

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket_read_error", zap.Uint("user_id", userID), zap.Error(err))
			}
			return
		}
		handler.HandleMessage(c, userID, message)
	}
}
