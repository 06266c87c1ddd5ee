package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeDeck/internal/broadcast"
	"TradeDeck/internal/derive"
	"TradeDeck/internal/domain/models"
	"TradeDeck/internal/state"
	"TradeDeck/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordEventsIngested(string, string, int) {}
func (nopMetrics) RecordNormalizationError(string)          {}
func (nopMetrics) RecordMergeAnomaly(string)                {}
func (nopMetrics) RecordBatchDropped(string)                {}
func (nopMetrics) RecordSnapshotPublished()                 {}
func (nopMetrics) RecordApplyLatency(float64)               {}
func (nopMetrics) RecordSourceUp(string, bool)              {}

func newTestAggregator(t *testing.T) (*Aggregator, *state.Store, *broadcast.Broadcaster) {
	t.Helper()
	engine := derive.NewEngine(nil, nil, time.Minute)
	store := state.NewStore(logger.Nop(), nopMetrics{}, engine)
	bcast := broadcast.New(logger.Nop())
	return NewAggregator(logger.Nop(), store, bcast, 8), store, bcast
}

func TestAggregatorAppliesAndBroadcasts(t *testing.T) {
	agg, store, bcast := newTestAggregator(t)

	published := make(chan *models.Snapshot, 1)
	unsub := bcast.Subscribe(func(s *models.Snapshot) { published <- s })
	defer unsub()

	agg.Start(context.Background())
	defer agg.Stop()

	agg.Queue() <- []models.Event{{
		SourceID: "hl",
		Sequence: 1,
		Kind:     models.KindLog,
		Log:      &models.LogEvent{SourceID: "hl", Sequence: 1, Message: "hello"},
	}}

	select {
	case snap := <-published:
		require.Len(t, snap.RecentLogs, 1)
		assert.Equal(t, "hello", snap.RecentLogs[0].Message)
		assert.Same(t, store.Read(), snap)
	case <-time.After(time.Second):
		t.Fatal("no snapshot broadcast")
	}
}

func TestEmitEnqueuesSingleEvent(t *testing.T) {
	agg, store, _ := newTestAggregator(t)

	agg.Start(context.Background())
	defer agg.Stop()

	agg.Emit(models.Event{
		SourceID: "monitor",
		Kind:     models.KindHealth,
		Health:   &models.PlatformHealthUpdate{SourceID: "hl", Healthy: true, LastCheck: time.Now()},
	})

	assert.Eventually(t, func() bool {
		_, ok := store.Read().AgentHealth["hl"]
		return ok
	}, time.Second, time.Millisecond)
}

func TestEmitNeverBlocksWhenStopped(t *testing.T) {
	agg, _, _ := newTestAggregator(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			agg.Emit(models.Event{SourceID: "x", Kind: models.KindHealth})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked with no consumer")
	}
}

func TestAggregatorRestartsAfterStop(t *testing.T) {
	agg, store, _ := newTestAggregator(t)

	agg.Start(context.Background())
	agg.Stop()

	agg.Start(context.Background())
	defer agg.Stop()

	agg.Emit(models.Event{
		SourceID: "monitor",
		Kind:     models.KindHealth,
		Health:   &models.PlatformHealthUpdate{SourceID: "hl", Healthy: true, LastCheck: time.Now()},
	})

	assert.Eventually(t, func() bool {
		_, ok := store.Read().AgentHealth["hl"]
		return ok
	}, time.Second, time.Millisecond)
}

func TestSelfLogCollectorFeedsLogView(t *testing.T) {
	agg, store, _ := newTestAggregator(t)
	agg.Start(context.Background())
	defer agg.Stop()

	c := NewSelfLogCollector(agg)
	c.AddLog("error", "apply queue full", map[string]interface{}{"source": "hl"}, "internal/transport/manager.go:300")

	assert.Eventually(t, func() bool {
		logs := store.Read().RecentLogs
		return len(logs) == 1 &&
			logs[0].SourceID == SelfSourceID &&
			logs[0].Level == models.LevelError &&
			logs[0].Context["caller"] == "internal/transport/manager.go:300"
	}, time.Second, time.Millisecond)
}
