package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"TradeDeck/internal/domain/models"
)

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func healthAt(healthy bool, lastCheck time.Time) *models.PlatformHealthUpdate {
	return &models.PlatformHealthUpdate{Healthy: healthy, LastCheck: lastCheck}
}

func TestRecomputePortfolioFigures(t *testing.T) {
	e := NewEngine(map[string]float64{"a": 6000, "b": 4000}, []string{"a"}, time.Minute)

	got := e.Recompute(Draft{
		Positions: map[models.PositionKey]*models.PositionUpdate{
			{SourceID: "a", Symbol: "BTC"}: {UnrealizedPnl: 150},
			{SourceID: "b", Symbol: "ETH"}: {UnrealizedPnl: -50},
		},
		FilledTrades:  4,
		WinningTrades: 3,
		RealizedPnl:   400,
	}, now)

	assert.Equal(t, 10100.0, got.PortfolioValue)
	assert.Equal(t, 500.0, got.TotalPnl)
	assert.Equal(t, 5.0, got.PnlPercent)
	assert.Equal(t, 0.75, got.WinRate)
}

func TestWinRateZeroWithoutFills(t *testing.T) {
	e := NewEngine(nil, nil, time.Minute)

	got := e.Recompute(Draft{FilledTrades: 0, WinningTrades: 0}, now)

	assert.Equal(t, 0.0, got.WinRate)
}

func TestPnlPercentZeroWithoutCapital(t *testing.T) {
	e := NewEngine(nil, nil, time.Minute)

	got := e.Recompute(Draft{RealizedPnl: 250}, now)

	assert.Equal(t, 0.0, got.PnlPercent)
	assert.Equal(t, 250.0, got.TotalPnl)
}

func TestOverallHealthyRequiresEverySource(t *testing.T) {
	e := NewEngine(nil, []string{"a", "b"}, time.Minute)

	health := map[string]*models.PlatformHealthUpdate{
		"a": healthAt(true, now),
		"b": healthAt(true, now),
	}
	assert.True(t, e.Recompute(Draft{Health: health}, now).OverallHealthy)

	health["b"] = healthAt(false, now)
	assert.False(t, e.Recompute(Draft{Health: health}, now).OverallHealthy)

	delete(health, "b")
	assert.False(t, e.Recompute(Draft{Health: health}, now).OverallHealthy)
}

func TestOverallHealthyFailsOnStaleSource(t *testing.T) {
	e := NewEngine(nil, []string{"a"}, 15*time.Second)

	health := map[string]*models.PlatformHealthUpdate{
		"a": healthAt(true, now.Add(-20*time.Second)),
	}
	assert.False(t, e.Recompute(Draft{Health: health}, now).OverallHealthy)

	health["a"] = healthAt(true, now.Add(-10*time.Second))
	assert.True(t, e.Recompute(Draft{Health: health}, now).OverallHealthy)
}

func TestOverallHealthyFalseWithoutRegisteredSources(t *testing.T) {
	e := NewEngine(nil, nil, time.Minute)

	assert.False(t, e.Recompute(Draft{}, now).OverallHealthy)
}
