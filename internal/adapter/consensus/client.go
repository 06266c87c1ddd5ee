// Package consensus implements a stream-mode source adapter for the agent
// consensus feed, delivered over a Kafka topic.
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TradeDeck/internal/domain/repository"

	"github.com/segmentio/kafka-go"
)

// Client reads finalized consensus decisions from a Kafka topic. One reader,
// no consumer group fan-out: the aggregator needs ordered single-stream delivery.
type Client struct {
	id      string
	brokers []string
	topic   string
	groupID string

	mu     sync.Mutex
	reader *kafka.Reader
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithGroupID joins a consumer group instead of reading from the last offset.
func WithGroupID(groupID string) ClientOption {
	return func(c *Client) { c.groupID = groupID }
}

// New creates a consensus feed adapter.
func New(id string, brokers []string, topic string, opts ...ClientOption) *Client {
	c := &Client{id: id, brokers: brokers, topic: topic}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SourceID() string             { return c.id }
func (c *Client) Kind() repository.PayloadKind { return repository.PayloadConsensus }
func (c *Client) Mode() repository.AdapterMode { return repository.ModeStream }

// Connect creates the Kafka reader. The first fetch happens in Read.
func (c *Client) Connect(ctx context.Context) error {
	cfg := kafka.ReaderConfig{
		Brokers:     c.brokers,
		Topic:       c.topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     time.Second,
	}
	if c.groupID != "" {
		cfg.GroupID = c.groupID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		_ = c.reader.Close()
	}
	c.reader = kafka.NewReader(cfg)
	return nil
}

// Read streams raw decision payloads. The channels close on a fetch error; the
// transport manager recreates the reader via Connect.
func (c *Client) Read(ctx context.Context) (<-chan json.RawMessage, <-chan error) {
	payloads := make(chan json.RawMessage, 64)
	errs := make(chan error, 1)

	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader == nil {
		errs <- fmt.Errorf("consensus %s: not connected", c.id)
		close(payloads)
		close(errs)
		return payloads, errs
	}

	go func() {
		defer close(payloads)
		defer close(errs)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("consensus read %s: %w", c.id, err)
				}
				return
			}
			select {
			case payloads <- json.RawMessage(msg.Value):
			default:
				// drop on backpressure
			}
		}
	}()

	return payloads, errs
}

// Close closes the Kafka reader.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		err := c.reader.Close()
		c.reader = nil
		return err
	}
	return nil
}
