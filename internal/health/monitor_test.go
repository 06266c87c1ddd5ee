package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeDeck/internal/domain/models"
	"TradeDeck/pkg/logger"
)

func newTestMonitor(opts ...MonitorOption) (*Monitor, *[]models.Event) {
	var emitted []models.Event
	m := NewMonitor(logger.Nop(), func(ev models.Event) {
		emitted = append(emitted, ev)
	}, opts...)
	return m, &emitted
}

func TestHealthyToDegradedToUnhealthy(t *testing.T) {
	m, _ := newTestMonitor()

	m.OnHeartbeat("router", true, "")
	assert.Equal(t, StateHealthy, m.StateOf("router"))

	m.OnHeartbeat("router", false, "timeout")
	assert.Equal(t, StateDegraded, m.StateOf("router"))

	m.OnHeartbeat("router", false, "timeout")
	assert.Equal(t, StateDegraded, m.StateOf("router"))

	m.OnHeartbeat("router", false, "timeout")
	assert.Equal(t, StateUnhealthy, m.StateOf("router"))
}

func TestDegradedStillReportsHealthy(t *testing.T) {
	m, emitted := newTestMonitor()

	m.OnHeartbeat("router", false, "timeout")

	require.Len(t, *emitted, 1)
	update := (*emitted)[0].Health
	require.NotNil(t, update)
	assert.True(t, update.Healthy)
	assert.Equal(t, 1, update.ConsecutiveFailures)
	assert.Equal(t, "timeout", update.ErrorMessage)
}

func TestUnhealthyReportsHealthyFalse(t *testing.T) {
	m, emitted := newTestMonitor()

	for i := 0; i < DefaultFailureThreshold; i++ {
		m.OnHeartbeat("router", false, "refused")
	}

	last := (*emitted)[len(*emitted)-1].Health
	require.NotNil(t, last)
	assert.False(t, last.Healthy)
	assert.Equal(t, DefaultFailureThreshold, last.ConsecutiveFailures)
}

func TestSuccessResetsStreak(t *testing.T) {
	m, emitted := newTestMonitor()

	for i := 0; i < 5; i++ {
		m.OnHeartbeat("router", false, "refused")
	}
	assert.Equal(t, StateUnhealthy, m.StateOf("router"))

	m.OnHeartbeat("router", true, "")
	assert.Equal(t, StateHealthy, m.StateOf("router"))

	last := (*emitted)[len(*emitted)-1].Health
	assert.True(t, last.Healthy)
	assert.Equal(t, 0, last.ConsecutiveFailures)
	assert.Empty(t, last.ErrorMessage)
}

func TestPerSourceThresholdOverride(t *testing.T) {
	m, _ := newTestMonitor(WithThreshold("flaky", 1))

	m.OnHeartbeat("flaky", false, "err")
	assert.Equal(t, StateUnhealthy, m.StateOf("flaky"))

	m.OnHeartbeat("stable", false, "err")
	assert.Equal(t, StateDegraded, m.StateOf("stable"))
}

func TestEmittedEventsAreUnsequencedHealthEvents(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) }
	m, emitted := newTestMonitor(WithClock(clock))

	m.OnHeartbeat("router", true, "")

	require.Len(t, *emitted, 1)
	ev := (*emitted)[0]
	assert.Equal(t, models.KindHealth, ev.Kind)
	assert.Equal(t, uint64(0), ev.Sequence)
	assert.Equal(t, "router", ev.SourceID)
	assert.Equal(t, clock(), ev.Health.LastCheck)
}

func TestAllListsEverySource(t *testing.T) {
	m, _ := newTestMonitor()

	m.OnHeartbeat("a", true, "")
	m.OnHeartbeat("b", false, "err")

	all := m.All()
	require.Len(t, all, 2)
	assert.True(t, all["a"].Healthy)
	assert.Equal(t, 1, all["b"].ConsecutiveFailures)
}

func TestStatusUnknownSource(t *testing.T) {
	m, _ := newTestMonitor()

	_, ok := m.Status("never-seen")
	assert.False(t, ok)
	assert.Equal(t, StateHealthy, m.StateOf("never-seen"))
}
