package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeDeck/internal/broadcast"
	"TradeDeck/internal/domain/models"
	"TradeDeck/pkg/logger"
)

type fixedReader struct {
	snap *models.Snapshot
}

func (r *fixedReader) Read() *models.Snapshot { return r.snap }

type fixedConn struct {
	state models.ConnectionState
}

func (c *fixedConn) Overall() models.ConnectionState { return c.state }

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Positions: map[models.PositionKey]*models.PositionUpdate{
			{SourceID: "hl", Symbol: "BTC"}: {SourceID: "hl", Symbol: "BTC", Size: 1.5},
		},
		RecentTrades: []*models.TradeEvent{
			{ID: "t1", Symbol: "BTC", Status: models.StatusFilled},
			{ID: "t2", Symbol: "ETH", Status: models.StatusPending},
		},
		RecentLogs: []*models.LogEvent{
			{SourceID: "hl", Sequence: 1, Level: models.LevelInfo, Message: "a"},
			{SourceID: "hl", Sequence: 2, Level: models.LevelError, Message: "b"},
		},
		AgentHealth: map[string]*models.PlatformHealthUpdate{
			"hl": {SourceID: "hl", Healthy: true, LastCheck: time.Now()},
		},
		ConsensusHistory: []*models.ConsensusDecision{
			{Symbol: "BTC", AggregateSignal: "buy"},
		},
		Derived: models.DerivedMetrics{OverallHealthy: true},
		AsOf:    time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestServer(conn models.ConnectionState) *echo.Echo {
	h := NewSnapshotHandler(logger.Nop(), &fixedReader{snap: testSnapshot()}, &fixedConn{state: conn}, broadcast.New(logger.Nop()))
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func get(t *testing.T, e *echo.Echo, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestGetSnapshot(t *testing.T) {
	e := newTestServer(models.StateConnected)
	rec, body := get(t, e, "/api/v1/snapshot")

	assert.Equal(t, http.StatusOK, rec.Code)

	var data snapshotResponse
	require.NoError(t, json.Unmarshal(body["data"], &data))
	assert.Equal(t, models.StateConnected, data.Connection)
	require.NotNil(t, data.Snapshot)
	assert.Len(t, data.Snapshot.RecentTrades, 2)
	assert.True(t, data.Snapshot.Derived.OverallHealthy)
}

func TestGetTradesWithLimit(t *testing.T) {
	e := newTestServer(models.StateConnected)
	rec, body := get(t, e, "/api/v1/trades?limit=1")

	assert.Equal(t, http.StatusOK, rec.Code)

	var trades []*models.TradeEvent
	require.NoError(t, json.Unmarshal(body["data"], &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "t2", trades[0].ID)
}

func TestGetLogsFilteredByLevel(t *testing.T) {
	e := newTestServer(models.StateConnected)
	_, body := get(t, e, "/api/v1/logs?level=ERROR")

	var logs []*models.LogEvent
	require.NoError(t, json.Unmarshal(body["data"], &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "b", logs[0].Message)
}

func TestGetPositions(t *testing.T) {
	e := newTestServer(models.StateConnected)
	_, body := get(t, e, "/api/v1/positions")

	var positions []*models.PositionUpdate
	require.NoError(t, json.Unmarshal(body["data"], &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "BTC", positions[0].Symbol)
}

func TestGetConsensus(t *testing.T) {
	e := newTestServer(models.StateConnected)
	_, body := get(t, e, "/api/v1/consensus")

	var decisions []*models.ConsensusDecision
	require.NoError(t, json.Unmarshal(body["data"], &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, "buy", decisions[0].AggregateSignal)
}

func TestReadyzReflectsConnection(t *testing.T) {
	rec, _ := get(t, newTestServer(models.StateConnected), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = get(t, newTestServer(models.StateDisconnected), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
