// Package derive recomputes aggregate dashboard figures from a snapshot draft.
// Every computation here is a pure function of its inputs so the engine stays
// independently testable.
package derive

import (
	"time"

	"TradeDeck/internal/domain/models"
)

// DefaultStaleness is the age beyond which a source's lastCheck makes the whole
// aggregate unhealthy.
const DefaultStaleness = 15 * time.Second

// Draft is the store's working state at the end of a batch, before publish.
type Draft struct {
	Positions      map[models.PositionKey]*models.PositionUpdate
	Health         map[string]*models.PlatformHealthUpdate
	FilledTrades   int
	WinningTrades  int
	RealizedPnl    float64
	MergeAnomalies uint64
}

// Engine derives metrics from per-source capital allocations and health freshness.
type Engine struct {
	allocations map[string]float64
	registered  []string
	staleness   time.Duration
}

// NewEngine creates a metrics engine. allocations maps sourceID to allocated
// capital; registered lists every source whose health gates overallHealthy.
func NewEngine(allocations map[string]float64, registered []string, staleness time.Duration) *Engine {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Engine{allocations: allocations, registered: registered, staleness: staleness}
}

// Recompute derives aggregate figures from the draft as of now.
func (e *Engine) Recompute(d Draft, now time.Time) models.DerivedMetrics {
	var unrealized float64
	for _, p := range d.Positions {
		unrealized += p.UnrealizedPnl
	}

	var capital float64
	for _, a := range e.allocations {
		capital += a
	}

	total := d.RealizedPnl + unrealized

	var pnlPct float64
	if capital > 0 {
		pnlPct = total / capital * 100
	}

	var winRate float64
	if d.FilledTrades > 0 {
		winRate = float64(d.WinningTrades) / float64(d.FilledTrades)
	}

	return models.DerivedMetrics{
		PortfolioValue: capital + unrealized,
		TotalPnl:       total,
		PnlPercent:     pnlPct,
		WinRate:        winRate,
		OverallHealthy: e.overallHealthy(d.Health, now),
		MergeAnomalies: d.MergeAnomalies,
	}
}

// overallHealthy is true iff every registered source reports healthy and none is
// stale. A source that never reported counts as unhealthy.
func (e *Engine) overallHealthy(health map[string]*models.PlatformHealthUpdate, now time.Time) bool {
	for _, id := range e.registered {
		h, ok := health[id]
		if !ok || !h.Healthy {
			return false
		}
		if now.Sub(h.LastCheck) > e.staleness {
			return false
		}
	}
	return len(e.registered) > 0
}
