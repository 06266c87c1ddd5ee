package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeDeck/internal/domain/models"
	"TradeDeck/internal/domain/repository"
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

// passthroughNormalizer emits one log event per payload, tagged with the raw
// payload as its message.
type passthroughNormalizer struct {
	mu  sync.Mutex
	seq uint64
}

func (n *passthroughNormalizer) Normalize(sourceID string, _ repository.PayloadKind, raw json.RawMessage) ([]models.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return []models.Event{{
		SourceID: sourceID,
		Sequence: n.seq,
		Kind:     models.KindLog,
		Log:      &models.LogEvent{SourceID: sourceID, Sequence: n.seq, Message: string(raw)},
	}}, nil
}

type heartbeatRecord struct {
	sourceID string
	ok       bool
}

type recordingSink struct {
	mu    sync.Mutex
	beats []heartbeatRecord
}

func (s *recordingSink) OnHeartbeat(sourceID string, ok bool, _ string) {
	s.mu.Lock()
	s.beats = append(s.beats, heartbeatRecord{sourceID, ok})
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []heartbeatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]heartbeatRecord(nil), s.beats...)
}

// fakePoller serves queued responses, then blocks until cancelled.
type fakePoller struct {
	id        string
	responses chan pollResponse
}

type pollResponse struct {
	raw json.RawMessage
	err error
}

func newFakePoller(id string) *fakePoller {
	return &fakePoller{id: id, responses: make(chan pollResponse, 16)}
}

func (p *fakePoller) SourceID() string            { return p.id }
func (p *fakePoller) Kind() repository.PayloadKind { return repository.PayloadLogs }
func (p *fakePoller) Mode() repository.AdapterMode { return repository.ModePoll }
func (p *fakePoller) Close() error                 { return nil }
func (p *fakePoller) Interval() time.Duration      { return time.Millisecond }

func (p *fakePoller) Poll(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-p.responses:
		return r.raw, r.err
	}
}

func newTestManager(out chan []models.Event, opts ...ManagerOption) (*Manager, *recordingSink) {
	sink := &recordingSink{}
	opts = append([]ManagerOption{WithBackoff(time.Millisecond, 4*time.Millisecond)}, opts...)
	m := NewManager(logger.Nop(), nopMetrics{}, &passthroughNormalizer{}, sink, out, opts...)
	return m, sink
}

func waitForBatch(t *testing.T, out chan []models.Event) []models.Event {
	t.Helper()
	select {
	case batch := <-out:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
		return nil
	}
}

func TestPollDeliversNormalizedBatches(t *testing.T) {
	out := make(chan []models.Event, 16)
	m, sink := newTestManager(out)
	defer m.Shutdown()

	p := newFakePoller("router")
	p.responses <- pollResponse{raw: json.RawMessage(`{"n":1}`)}

	require.NoError(t, m.Connect(context.Background(), p))

	batch := waitForBatch(t, out)
	require.Len(t, batch, 1)
	assert.Equal(t, "router", batch[0].SourceID)
	assert.Equal(t, `{"n":1}`, batch[0].Log.Message)

	beats := sink.snapshot()
	require.NotEmpty(t, beats)
	assert.True(t, beats[0].ok)
}

func TestPollFailureHeartbeatsAndRetries(t *testing.T) {
	out := make(chan []models.Event, 16)
	m, sink := newTestManager(out)
	defer m.Shutdown()

	p := newFakePoller("router")
	p.responses <- pollResponse{err: errors.New("connection refused")}
	p.responses <- pollResponse{raw: json.RawMessage(`{"n":2}`)}

	require.NoError(t, m.Connect(context.Background(), p))

	batch := waitForBatch(t, out)
	require.Len(t, batch, 1)
	assert.Equal(t, `{"n":2}`, batch[0].Log.Message)

	beats := sink.snapshot()
	require.GreaterOrEqual(t, len(beats), 2)
	assert.False(t, beats[0].ok, "failure must heartbeat down before the retry")
}

func TestFailingSourceDoesNotStallOthers(t *testing.T) {
	out := make(chan []models.Event, 64)
	m, _ := newTestManager(out)
	defer m.Shutdown()

	dead := newFakePoller("dead")
	for i := 0; i < 16; i++ {
		dead.responses <- pollResponse{err: errors.New("refused")}
	}
	live := newFakePoller("live")
	for i := 0; i < 4; i++ {
		live.responses <- pollResponse{raw: json.RawMessage(`{}`)}
	}

	require.NoError(t, m.Connect(context.Background(), dead))
	require.NoError(t, m.Connect(context.Background(), live))

	delivered := 0
	deadline := time.After(2 * time.Second)
	for delivered < 4 {
		select {
		case batch := <-out:
			for _, ev := range batch {
				require.Equal(t, "live", ev.SourceID)
				delivered++
			}
		case <-deadline:
			t.Fatalf("only %d live batches delivered", delivered)
		}
	}
}

func TestConnectTwiceRejected(t *testing.T) {
	out := make(chan []models.Event, 1)
	m, _ := newTestManager(out)
	defer m.Shutdown()

	p := newFakePoller("router")
	require.NoError(t, m.Connect(context.Background(), p))
	assert.Error(t, m.Connect(context.Background(), p))
}

func TestOverallFoldsSourceStates(t *testing.T) {
	out := make(chan []models.Event, 16)
	m, _ := newTestManager(out)
	defer m.Shutdown()

	assert.Equal(t, models.StateDisconnected, m.Overall())

	p := newFakePoller("router")
	p.responses <- pollResponse{raw: json.RawMessage(`{}`)}
	require.NoError(t, m.Connect(context.Background(), p))

	waitForBatch(t, out)
	assert.Eventually(t, func() bool {
		return m.Overall() == models.StateConnected
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectUnknownSource(t *testing.T) {
	out := make(chan []models.Event, 1)
	m, _ := newTestManager(out)
	defer m.Shutdown()

	assert.Error(t, m.Disconnect("ghost"))
}

func TestShutdownStopsBackoffPromptly(t *testing.T) {
	out := make(chan []models.Event, 1)
	sink := &recordingSink{}
	m := NewManager(logger.Nop(), nopMetrics{}, &passthroughNormalizer{}, sink, out,
		WithBackoff(time.Hour, time.Hour))

	p := newFakePoller("router")
	p.responses <- pollResponse{err: errors.New("refused")}
	require.NoError(t, m.Connect(context.Background(), p))

	// wait until the failure heartbeat proves the loop is inside backoff
	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) > 0
	}, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hung on backoff timer")
	}
	assert.Equal(t, StateDisconnected, m.State("router"))
}

func TestBacklogCoalescedWhenQueueFull(t *testing.T) {
	out := make(chan []models.Event) // unbuffered and never drained
	sink := &recordingSink{}
	m := NewManager(logger.Nop(), nopMetrics{}, &passthroughNormalizer{}, sink, out,
		WithMaxPending(2))

	src := &source{}
	m.deliver(src, "router", repository.PayloadLogs, json.RawMessage(`{"n":1}`))
	m.deliver(src, "router", repository.PayloadLogs, json.RawMessage(`{"n":2}`))
	m.deliver(src, "router", repository.PayloadLogs, json.RawMessage(`{"n":3}`))

	// the oldest event beyond maxPending is gone; the newest two are held
	require.Len(t, src.pending, 2)
	assert.Equal(t, `{"n":2}`, src.pending[0].Log.Message)
	assert.Equal(t, `{"n":3}`, src.pending[1].Log.Message)
}
