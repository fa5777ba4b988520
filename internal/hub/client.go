// internal/hub/client.go
package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const sendBufferSize = 256

var (
	ErrClientClosed   = errors.New("client connection closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Client is the websocket side of one player connection. Frames queued with
// Send are written by the client's write pump.
type Client struct {
	ID   string
	Conn *websocket.Conn

	send    chan []byte
	limiter *rate.Limiter // nil means unlimited

	mu      sync.Mutex
	closed  bool
	pending *time.Timer // deferred fan-out of a rate limited update
}

func NewClient(id string, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	return &Client{
		ID:      id,
		Conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		limiter: limiter,
	}
}

// Send queues data for the write pump. A client that has fallen a full
// buffer behind is treated as failed.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which then closes the websocket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	return nil
}

// allowUpdate reports whether another player_update fits the rate limit.
func (c *Client) allowUpdate() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// deferUpdate runs fn once the limiter has a token again. Calls made while
// one is already scheduled fold into it, so fn sees the latest state.
func (c *Client) deferUpdate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending != nil || c.limiter == nil {
		return
	}
	r := c.limiter.Reserve()
	if !r.OK() {
		return
	}
	// The callback blocks on mu until pending has been assigned.
	c.pending = time.AfterFunc(r.Delay(), func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		fn()
	})
}
