// Package transport owns adapter connection lifecycles: per-source goroutines,
// jittered exponential backoff, liveness reporting, and handoff of normalized
// batches to the serialized apply queue.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"TradeDeck/internal/domain/models"
	"TradeDeck/internal/domain/repository"
	"TradeDeck/pkg/logger"
)

// SourceState is the per-source connection state machine position.
type SourceState string

const (
	StateDisconnected SourceState = "DISCONNECTED"
	StateConnecting   SourceState = "CONNECTING"
	StateConnected    SourceState = "CONNECTED"
	StateReconnecting SourceState = "RECONNECTING"
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 30 * time.Second
	defaultMaxPending  = 1000
)

// Normalizer is the slice of the ingest layer the manager needs.
type Normalizer interface {
	Normalize(sourceID string, kind repository.PayloadKind, raw json.RawMessage) ([]models.Event, error)
}

// ManagerOption configures Manager.
type ManagerOption func(*Manager)

// WithBackoff sets the reconnect backoff base and cap.
func WithBackoff(base, cap time.Duration) ManagerOption {
	return func(m *Manager) {
		if base > 0 {
			m.backoffBase = base
		}
		if cap > 0 {
			m.backoffCap = cap
		}
	}
}

// WithMaxPending caps the per-source coalesced backlog when the apply queue is full.
func WithMaxPending(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxPending = n
		}
	}
}

type source struct {
	adapter repository.Adapter
	cancel  context.CancelFunc

	mu      sync.Mutex
	state   SourceState
	pending []models.Event
}

func (s *source) setState(st SourceState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *source) getState() SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Manager runs one goroutine per connected source. A source's failures and
// backoff cycles never block or slow another source's delivery: the only shared
// path is the bounded apply queue, and sends to it never block.
type Manager struct {
	log        *logger.Logger
	metrics    repository.Metrics
	normalizer Normalizer
	heartbeat  repository.HeartbeatSink
	out        chan<- []models.Event

	backoffBase time.Duration
	backoffCap  time.Duration
	maxPending  int

	mu      sync.Mutex
	sources map[string]*source
	wg      sync.WaitGroup
}

// NewManager creates a manager publishing normalized batches to out.
func NewManager(log *logger.Logger, metrics repository.Metrics, normalizer Normalizer, heartbeat repository.HeartbeatSink, out chan<- []models.Event, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:         log,
		metrics:     metrics,
		normalizer:  normalizer,
		heartbeat:   heartbeat,
		out:         out,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		maxPending:  defaultMaxPending,
		sources:     make(map[string]*source),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect registers an adapter and starts its delivery loop.
func (m *Manager) Connect(ctx context.Context, adapter repository.Adapter) error {
	id := adapter.SourceID()

	m.mu.Lock()
	if _, exists := m.sources[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("source %s already connected", id)
	}
	srcCtx, cancel := context.WithCancel(ctx)
	src := &source{adapter: adapter, cancel: cancel, state: StateConnecting}
	m.sources[id] = src
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer src.setState(StateDisconnected)
		defer m.metrics.RecordSourceUp(id, false)

		switch a := adapter.(type) {
		case repository.Streamer:
			m.runStream(srcCtx, src, a)
		case repository.Poller:
			m.runPoll(srcCtx, src, a)
		default:
			m.log.Error("adapter implements neither Poller nor Streamer", logger.String("source", id))
		}
	}()
	return nil
}

// Disconnect cancels a source's loop and closes its adapter.
func (m *Manager) Disconnect(sourceID string) error {
	m.mu.Lock()
	src, ok := m.sources[sourceID]
	if ok {
		delete(m.sources, sourceID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("source %s not connected", sourceID)
	}
	src.cancel()
	return src.adapter.Close()
}

// Shutdown disconnects every source and waits for their loops to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sources := make([]*source, 0, len(m.sources))
	for _, src := range m.sources {
		sources = append(sources, src)
	}
	m.sources = make(map[string]*source)
	m.mu.Unlock()

	for _, src := range sources {
		src.cancel()
		_ = src.adapter.Close()
	}
	m.wg.Wait()
}

// State reports the connection state for one source.
func (m *Manager) State(sourceID string) SourceState {
	m.mu.Lock()
	src, ok := m.sources[sourceID]
	m.mu.Unlock()
	if !ok {
		return StateDisconnected
	}
	return src.getState()
}

// Overall folds per-source states into the top-level UI indicator.
func (m *Manager) Overall() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sources) == 0 {
		return models.StateDisconnected
	}
	connected := 0
	for _, src := range m.sources {
		if src.getState() == StateConnected {
			connected++
		}
	}
	switch connected {
	case len(m.sources):
		return models.StateConnected
	case 0:
		return models.StateDisconnected
	default:
		return models.StateConnecting
	}
}

func (m *Manager) runPoll(ctx context.Context, src *source, p repository.Poller) {
	id := p.SourceID()
	interval := p.Interval()
	if interval <= 0 {
		interval = 5 * time.Second
	}

	attempt := 0
	for {
		raw, err := p.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			terr := &models.TransportError{SourceID: id, Err: err}
			m.heartbeat.OnHeartbeat(id, false, terr.Error())
			m.metrics.RecordSourceUp(id, false)
			src.setState(StateReconnecting)
			attempt++
			if !m.sleep(ctx, m.backoff(attempt)) {
				return
			}
			continue
		}

		if attempt > 0 || src.getState() != StateConnected {
			m.log.Info("source connected", logger.String("source", id))
		}
		attempt = 0
		src.setState(StateConnected)
		m.metrics.RecordSourceUp(id, true)
		m.heartbeat.OnHeartbeat(id, true, "")
		m.deliver(src, p.SourceID(), p.Kind(), raw)

		if !m.sleep(ctx, interval) {
			return
		}
	}
}

func (m *Manager) runStream(ctx context.Context, src *source, s repository.Streamer) {
	id := s.SourceID()
	attempt := 0
	for {
		src.setState(StateConnecting)
		if err := s.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			terr := &models.TransportError{SourceID: id, Err: err}
			m.heartbeat.OnHeartbeat(id, false, terr.Error())
			m.metrics.RecordSourceUp(id, false)
			src.setState(StateReconnecting)
			attempt++
			if !m.sleep(ctx, m.backoff(attempt)) {
				return
			}
			continue
		}

		m.log.Info("source connected", logger.String("source", id))
		attempt = 0
		src.setState(StateConnected)
		m.metrics.RecordSourceUp(id, true)
		m.heartbeat.OnHeartbeat(id, true, "")

		rawCh, errCh := s.Read(ctx)
		if !m.consumeStream(ctx, src, s, rawCh, errCh) {
			return
		}

		src.setState(StateReconnecting)
		m.metrics.RecordSourceUp(id, false)
		attempt++
		if !m.sleep(ctx, m.backoff(attempt)) {
			return
		}
	}
}

// consumeStream reads until the stream dies. Returns false when the context is done.
func (m *Manager) consumeStream(ctx context.Context, src *source, s repository.Streamer, rawCh <-chan json.RawMessage, errCh <-chan error) bool {
	id := s.SourceID()
	for {
		select {
		case <-ctx.Done():
			return false
		case raw, ok := <-rawCh:
			if !ok {
				m.heartbeat.OnHeartbeat(id, false, (&models.TransportError{SourceID: id, Err: errors.New("stream closed")}).Error())
				return true
			}
			m.heartbeat.OnHeartbeat(id, true, "")
			m.deliver(src, id, s.Kind(), raw)
		case err, ok := <-errCh:
			if !ok {
				return true
			}
			if err != nil {
				terr := &models.TransportError{SourceID: id, Err: err}
				m.heartbeat.OnHeartbeat(id, false, terr.Error())
				m.log.Warn("stream error", logger.String("source", id), logger.Error(err))
				return true
			}
		}
	}
}

// deliver normalizes a payload and hands the batch to the apply queue without
// blocking. When the queue is full the batch is coalesced into the source's
// pending backlog; beyond maxPending the oldest events are dropped (documented
// lossy degradation under sustained backpressure).
func (m *Manager) deliver(src *source, id string, kind repository.PayloadKind, raw json.RawMessage) {
	events, err := m.normalizer.Normalize(id, kind, raw)
	if err != nil {
		m.metrics.RecordNormalizationError(id)
		m.log.Warn("payload rejected", logger.String("source", id), logger.Error(err))
		return
	}
	if len(events) == 0 && len(src.pending) == 0 {
		return
	}
	m.metrics.RecordEventsIngested(id, string(kind), len(events))

	batch := append(src.pending, events...)
	src.pending = nil

	select {
	case m.out <- batch:
	default:
		if over := len(batch) - m.maxPending; over > 0 {
			batch = batch[over:]
			m.metrics.RecordBatchDropped(id)
			m.log.Warn("apply queue full, oldest events dropped",
				logger.String("source", id),
				logger.Int("dropped", over))
		}
		src.pending = batch
	}
}

// backoff returns the jittered exponential delay for the given attempt.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.backoffBase
	for i := 1; i < attempt && d < m.backoffCap; i++ {
		d *= 2
	}
	if d > m.backoffCap {
		d = m.backoffCap
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// sleep waits or returns false when ctx is cancelled, so shutdown and
// Disconnect cancel pending backoff timers deterministically.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
