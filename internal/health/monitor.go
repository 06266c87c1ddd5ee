// Package health tracks per-source heartbeat recency and failure streaks.
package health

import (
	"sync"
	"time"

	"TradeDeck/internal/domain/models"
	"TradeDeck/pkg/logger"
)

// State is the per-source health state machine position.
type State string

const (
	StateHealthy   State = "HEALTHY"
	StateDegraded  State = "DEGRADED"
	StateUnhealthy State = "UNHEALTHY"
)

// DefaultFailureThreshold is the consecutive-failure count that flips a source
// from DEGRADED to UNHEALTHY.
const DefaultFailureThreshold = 3

// MonitorOption configures Monitor.
type MonitorOption func(*Monitor)

// WithThreshold overrides the failure threshold for one source.
func WithThreshold(sourceID string, n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.thresholds[sourceID] = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

type entry struct {
	state     State
	failures  int
	lastCheck time.Time
	lastError string
}

// Monitor derives a health verdict per source from heartbeats and forwards each
// verdict as a PlatformHealthUpdate event into the serialized apply path, so the
// store stays single-writer. Unhealthy sources are kept visible, never removed.
type Monitor struct {
	log              *logger.Logger
	emit             func(models.Event)
	defaultThreshold int
	thresholds       map[string]int
	now              func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewMonitor creates a monitor. emit receives one health event per heartbeat and
// must not block (the aggregator queue is bounded and lossy by design).
func NewMonitor(log *logger.Logger, emit func(models.Event), opts ...MonitorOption) *Monitor {
	m := &Monitor{
		log:              log,
		emit:             emit,
		defaultThreshold: DefaultFailureThreshold,
		thresholds:       make(map[string]int),
		now:              time.Now,
		entries:          make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnHeartbeat records one liveness signal for a source.
//
// HEALTHY -> (ok=false) DEGRADED -> (threshold consecutive failures) UNHEALTHY
// -> (ok=true) HEALTHY. healthy=false in the emitted update means UNHEALTHY; a
// degraded source still counts as healthy until the streak crosses the threshold.
func (m *Monitor) OnHeartbeat(sourceID string, ok bool, errMsg string) {
	m.mu.Lock()
	e, exists := m.entries[sourceID]
	if !exists {
		e = &entry{state: StateHealthy}
		m.entries[sourceID] = e
	}

	prev := e.state
	if ok {
		e.failures = 0
		e.state = StateHealthy
		e.lastError = ""
	} else {
		e.failures++
		e.lastError = errMsg
		if e.failures >= m.threshold(sourceID) {
			e.state = StateUnhealthy
		} else {
			e.state = StateDegraded
		}
	}
	e.lastCheck = m.now()
	update := m.updateLocked(sourceID, e)
	m.mu.Unlock()

	if e.state != prev {
		m.log.Info("source health transition",
			logger.String("source", sourceID),
			logger.String("from", string(prev)),
			logger.String("to", string(e.state)),
			logger.Int("failures", e.failures))
	}
	m.emit(models.Event{
		SourceID:   sourceID,
		Kind:       models.KindHealth,
		ReceivedAt: update.LastCheck,
		Health:     &update,
	})
}

// Status returns the current verdict for one source.
func (m *Monitor) Status(sourceID string) (models.PlatformHealthUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sourceID]
	if !ok {
		return models.PlatformHealthUpdate{}, false
	}
	return m.updateLocked(sourceID, e), true
}

// All returns the current verdict for every source seen so far.
func (m *Monitor) All() map[string]models.PlatformHealthUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.PlatformHealthUpdate, len(m.entries))
	for id, e := range m.entries {
		out[id] = m.updateLocked(id, e)
	}
	return out
}

// StateOf returns the state machine position for one source.
func (m *Monitor) StateOf(sourceID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[sourceID]; ok {
		return e.state
	}
	return StateHealthy
}

func (m *Monitor) threshold(sourceID string) int {
	if n, ok := m.thresholds[sourceID]; ok {
		return n
	}
	return m.defaultThreshold
}

func (m *Monitor) updateLocked(sourceID string, e *entry) models.PlatformHealthUpdate {
	return models.PlatformHealthUpdate{
		SourceID:            sourceID,
		Healthy:             e.state != StateUnhealthy,
		ConsecutiveFailures: e.failures,
		LastCheck:           e.lastCheck,
		ErrorMessage:        e.lastError,
	}
}
