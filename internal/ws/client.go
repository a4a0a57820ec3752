package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// Client is one websocket connection exposed to the backplane. Deliver
// serializes an invocation envelope onto the send channel; a dedicated
// writer goroutine owns the socket.
type Client struct {
	conn      *websocket.Conn
	id        string
	userID    string
	send      chan []byte
	connected time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, id, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:      conn,
		id:        id,
		userID:    userID,
		send:      make(chan []byte, 256),
		connected: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Client) ID() string               { return c.id }
func (c *Client) UserID() string           { return c.userID }
func (c *Client) Context() context.Context { return c.ctx }

// Deliver queues a client-method invocation for the writer goroutine.
func (c *Client) Deliver(ctx context.Context, method string, args []any) error {
	b, err := json.Marshal(map[string]any{
		"type": "invoke",
		"payload": map[string]any{
			"method": method,
			"args":   args,
		},
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		// writer stalled; drop rather than block the fan-out
		return errors.New("send buffer full")
	}
}

// Close cancels the connection context and closes the socket. Safe to
// call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.cancel()
		close(c.send)
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}
