// Package logstream implements a stream-mode source adapter over a log
// websocket feed (GET|stream /logs/{platform}).
package logstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TradeDeck/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client streams log entries from one platform's websocket feed.
type Client struct {
	id           string
	url          string
	pingInterval time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithPingInterval sets the keepalive cadence.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// New creates a log stream adapter.
func New(id, url string, opts ...ClientOption) *Client {
	c := &Client{
		id:           id,
		url:          url,
		pingInterval: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SourceID() string             { return c.id }
func (c *Client) Kind() repository.PayloadKind { return repository.PayloadLogs }
func (c *Client) Mode() repository.AdapterMode { return repository.ModeStream }

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("logstream connect %s: %w", c.id, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Read streams raw log frames and errors. The channels close when the
// connection dies; the transport manager reconnects.
func (c *Client) Read(ctx context.Context) (<-chan json.RawMessage, <-chan error) {
	frames := make(chan json.RawMessage, 256)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- fmt.Errorf("logstream %s: not connected", c.id)
		close(frames)
		close(errs)
		return frames, errs
	}

	// keepalive loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	// read loop
	go func() {
		defer close(frames)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("logstream read %s: %w", c.id, err)
				return
			}
			select {
			case frames <- json.RawMessage(b):
			default:
				// drop on backpressure
			}
		}
	}()

	return frames, errs
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
