// Package httppoll implements poll-mode source adapters over plain HTTP JSON
// endpoints: platform-router status, trade history, and open positions.
package httppoll

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"TradeDeck/internal/domain/repository"
	xhttp "TradeDeck/pkg/http"
)

// Poller fetches one JSON endpoint at a fixed cadence.
type Poller struct {
	id       string
	kind     repository.PayloadKind
	url      string
	query    url.Values
	interval time.Duration
	client   *xhttp.Client
}

// PollerOption configures Poller.
type PollerOption func(*Poller)

// WithQuery adds a fixed query parameter to every poll.
func WithQuery(key, value string) PollerOption {
	return func(p *Poller) { p.query.Set(key, value) }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *xhttp.Client) PollerOption {
	return func(p *Poller) { p.client = c }
}

// New creates a poll adapter for an arbitrary JSON endpoint.
func New(id string, kind repository.PayloadKind, rawURL string, interval time.Duration, opts ...PollerOption) *Poller {
	p := &Poller{
		id:       id,
		kind:     kind,
		url:      rawURL,
		query:    url.Values{},
		interval: interval,
		client:   xhttp.NewClient(xhttp.WithClientTimeout(10 * time.Second)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewStatus polls GET /platform-router/status.
func NewStatus(id, rawURL string, interval time.Duration, opts ...PollerOption) *Poller {
	return New(id, repository.PayloadPlatformStatus, rawURL, interval, opts...)
}

// NewHistory polls GET /platform-router/history?limit=N.
func NewHistory(id, rawURL string, interval time.Duration, limit int, opts ...PollerOption) *Poller {
	opts = append([]PollerOption{WithQuery("limit", strconv.Itoa(limit))}, opts...)
	return New(id, repository.PayloadTradeHistory, rawURL, interval, opts...)
}

// NewPositions polls GET /positions/all.
func NewPositions(id, rawURL string, interval time.Duration, opts ...PollerOption) *Poller {
	return New(id, repository.PayloadPositions, rawURL, interval, opts...)
}

func (p *Poller) SourceID() string             { return p.id }
func (p *Poller) Kind() repository.PayloadKind { return p.kind }
func (p *Poller) Mode() repository.AdapterMode { return repository.ModePoll }
func (p *Poller) Interval() time.Duration      { return p.interval }
func (p *Poller) Close() error                 { return nil }

// Poll fetches the endpoint and returns the raw payload.
func (p *Poller) Poll(ctx context.Context) (json.RawMessage, error) {
	return p.client.GetRaw(ctx, p.url, p.query)
}
