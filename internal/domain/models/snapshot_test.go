package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTripsThroughJSON(t *testing.T) {
	snap := Snapshot{
		Positions: map[PositionKey]*PositionUpdate{
			{SourceID: "hyperliquid", Symbol: "BTC"}: {SourceID: "hyperliquid", Symbol: "BTC", Size: 1.5},
		},
		AgentHealth: map[string]*PlatformHealthUpdate{
			"hyperliquid": {SourceID: "hyperliquid", Healthy: true},
		},
		AsOf: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}

	b, err := json.Marshal(&snap)
	require.NoError(t, err)

	var got Snapshot
	require.NoError(t, json.Unmarshal(b, &got))

	p, ok := got.Position("hyperliquid", "BTC")
	require.True(t, ok)
	assert.Equal(t, 1.5, p.Size)
	assert.True(t, got.AsOf.Equal(snap.AsOf))
}

func TestPositionKeyTextEncoding(t *testing.T) {
	k := PositionKey{SourceID: "hyperliquid", Symbol: "ETH"}

	b, err := k.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "hyperliquid/ETH", string(b))

	var back PositionKey
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, k, back)

	assert.Error(t, back.UnmarshalText([]byte("no-separator")))
}
