// Package state holds the canonical aggregate and publishes immutable snapshots.
package state

import (
	"sync"
	"sync/atomic"
	"time"

	"TradeDeck/internal/derive"
	"TradeDeck/internal/domain/models"
	"TradeDeck/internal/domain/repository"
	"TradeDeck/pkg/logger"
)

// DefaultCapacity bounds the rolling history buffers (logs, trades, consensus).
const DefaultCapacity = 200

// StoreOption configures Store.
type StoreOption func(*Store)

// WithCapacity sets the rolling buffer capacity.
func WithCapacity(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store applies normalized event batches and publishes one immutable Snapshot per
// batch. Apply is single-writer; Read is lock-free against the published pointer.
// Values reachable from a published snapshot are never mutated in place; merges
// always install freshly allocated entries.
type Store struct {
	log     *logger.Logger
	metrics repository.Metrics
	engine  *derive.Engine

	capacity int
	now      func() time.Time

	mu         sync.Mutex
	positions  map[models.PositionKey]*models.PositionUpdate
	trades     map[string]*models.TradeEvent
	tradeOrder []string
	logs       *Ring[*models.LogEvent]
	consensus  *Ring[*models.ConsensusDecision]
	health     map[string]*models.PlatformHealthUpdate
	lastSeq    map[string]uint64

	// countedFills outlives the bounded trade buffer so a fill evicted from it
	// and later redelivered is never counted into the PnL totals twice
	countedFills map[string]struct{}

	filledTrades  int
	winningTrades int
	realizedPnl   float64
	anomalies     uint64

	current atomic.Pointer[models.Snapshot]
}

// NewStore creates a store with an empty published snapshot.
func NewStore(log *logger.Logger, metrics repository.Metrics, engine *derive.Engine, opts ...StoreOption) *Store {
	s := &Store{
		log:       log,
		metrics:   metrics,
		engine:    engine,
		capacity:  DefaultCapacity,
		now:       time.Now,
		positions:    make(map[models.PositionKey]*models.PositionUpdate),
		trades:       make(map[string]*models.TradeEvent),
		health:       make(map[string]*models.PlatformHealthUpdate),
		lastSeq:      make(map[string]uint64),
		countedFills: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logs = NewRing[*models.LogEvent](s.capacity)
	s.consensus = NewRing[*models.ConsensusDecision](s.capacity)
	s.current.Store(&models.Snapshot{
		Positions:   map[models.PositionKey]*models.PositionUpdate{},
		AgentHealth: map[string]*models.PlatformHealthUpdate{},
		AsOf:        s.now(),
	})
	return s
}

// Read returns the latest committed snapshot. Never nil, never blocks.
func (s *Store) Read() *models.Snapshot {
	return s.current.Load()
}

// Apply merges a batch of events and commits exactly one new snapshot.
func (s *Store) Apply(events []models.Event) {
	start := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range events {
		ev := &events[i]
		if !s.admitSequence(ev) {
			continue
		}
		switch ev.Kind {
		case models.KindLog:
			if ev.Log != nil {
				s.logs.Push(ev.Log)
			}
		case models.KindTrade:
			if ev.Trade != nil {
				s.mergeTrade(ev.Trade)
			}
		case models.KindPosition:
			if ev.Position != nil {
				s.mergePosition(ev.Position)
			}
		case models.KindConsensus:
			if ev.Consensus != nil {
				s.consensus.Push(ev.Consensus)
			}
		case models.KindHealth:
			if ev.Health != nil {
				s.mergeHealth(ev.Health)
			}
		}
	}

	s.publish()
	s.metrics.RecordApplyLatency(time.Since(start).Seconds())
}

// admitSequence enforces per-source monotonic sequence numbers for sequenced
// events. Sequence zero means unsequenced (health updates from the monitor).
func (s *Store) admitSequence(ev *models.Event) bool {
	if ev.Sequence == 0 {
		return true
	}
	if last := s.lastSeq[ev.SourceID]; ev.Sequence <= last {
		s.recordAnomaly(models.AnomalyDuplicateSeq, ev.SourceID, "")
		return false
	}
	s.lastSeq[ev.SourceID] = ev.Sequence
	return true
}

func (s *Store) mergeTrade(t *models.TradeEvent) {
	next := *t
	prev, seen := s.trades[t.ID]
	if seen && prev.Status.Regresses(next.Status) {
		s.recordAnomaly(models.AnomalyStatusRegression, t.SourceID, t.ID)
		s.log.Warn("trade status regression ignored",
			logger.String("trade_id", t.ID),
			logger.String("from", string(prev.Status)),
			logger.String("to", string(next.Status)))
		return
	}

	if next.Status == models.StatusFilled {
		if _, counted := s.countedFills[t.ID]; !counted {
			s.countedFills[t.ID] = struct{}{}
			s.filledTrades++
			s.realizedPnl += next.RealizedPnl
			if next.RealizedPnl > 0 {
				s.winningTrades++
			}
		}
	}

	s.trades[t.ID] = &next
	if seen {
		return
	}
	s.tradeOrder = append(s.tradeOrder, t.ID)
	if len(s.tradeOrder) > s.capacity {
		evicted := s.tradeOrder[0]
		s.tradeOrder = s.tradeOrder[1:]
		delete(s.trades, evicted)
	}
}

func (s *Store) mergePosition(p *models.PositionUpdate) {
	key := models.PositionKey{SourceID: p.SourceID, Symbol: p.Symbol}
	if p.Size <= 0 {
		delete(s.positions, key)
		return
	}
	next := *p
	s.positions[key] = &next
}

// mergeHealth overwrites latest-wins. A failed check accumulates the streak;
// only a clean success resets it. A failure is an unhealthy verdict or any
// update carrying an error or a non-zero streak (a degraded source still
// reports healthy=true until its threshold).
func (s *Store) mergeHealth(h *models.PlatformHealthUpdate) {
	next := *h
	if !next.Healthy || next.ErrorMessage != "" || next.ConsecutiveFailures > 0 {
		if prev, ok := s.health[h.SourceID]; ok && next.ConsecutiveFailures <= prev.ConsecutiveFailures {
			next.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		}
		if next.ConsecutiveFailures == 0 {
			next.ConsecutiveFailures = 1
		}
	}
	s.health[h.SourceID] = &next
}

func (s *Store) recordAnomaly(kind models.AnomalyKind, source, detail string) {
	s.anomalies++
	s.metrics.RecordMergeAnomaly(string(kind))
	anom := models.MergeAnomaly{Kind: kind, SourceID: source, Detail: detail}
	s.log.Debug("merge anomaly", logger.String("anomaly", anom.Error()))
}

// publish materializes an immutable snapshot from the working state and swaps it
// in. Buffer trims already happened during the merge phase, so the snapshot and
// the trim commit together.
func (s *Store) publish() {
	now := s.now()
	prev := s.current.Load()
	if now.Before(prev.AsOf) {
		now = prev.AsOf
	}

	positions := make(map[models.PositionKey]*models.PositionUpdate, len(s.positions))
	for k, v := range s.positions {
		positions[k] = v
	}
	health := make(map[string]*models.PlatformHealthUpdate, len(s.health))
	for k, v := range s.health {
		health[k] = v
	}
	trades := make([]*models.TradeEvent, 0, len(s.tradeOrder))
	for _, id := range s.tradeOrder {
		trades = append(trades, s.trades[id])
	}

	derived := s.engine.Recompute(derive.Draft{
		Positions:      s.positions,
		Health:         s.health,
		FilledTrades:   s.filledTrades,
		WinningTrades:  s.winningTrades,
		RealizedPnl:    s.realizedPnl,
		MergeAnomalies: s.anomalies,
	}, now)

	s.current.Store(&models.Snapshot{
		Positions:        positions,
		RecentTrades:     trades,
		RecentLogs:       s.logs.Items(),
		AgentHealth:      health,
		ConsensusHistory: s.consensus.Items(),
		Derived:          derived,
		AsOf:             now,
	})
	s.metrics.RecordSnapshotPublished()
}
