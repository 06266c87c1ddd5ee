package models

import (
	"fmt"
	"strings"
	"time"
)

// PositionKey identifies at most one live position.
type PositionKey struct {
	SourceID string
	Symbol   string
}

func (k PositionKey) String() string { return k.SourceID + "/" + k.Symbol }

// MarshalText lets the positions map serialize as a flat JSON object.
func (k PositionKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText lets consumers decode a published snapshot back into a Snapshot.
func (k *PositionKey) UnmarshalText(b []byte) error {
	source, symbol, ok := strings.Cut(string(b), "/")
	if !ok {
		return fmt.Errorf("malformed position key %q", b)
	}
	k.SourceID, k.Symbol = source, symbol
	return nil
}

// DerivedMetrics are the aggregate figures recomputed on every commit.
type DerivedMetrics struct {
	PortfolioValue float64 `json:"portfolio_value"`
	TotalPnl       float64 `json:"total_pnl"`
	PnlPercent     float64 `json:"pnl_percent"`
	WinRate        float64 `json:"win_rate"`
	OverallHealthy bool    `json:"overall_healthy"`
	MergeAnomalies uint64  `json:"merge_anomalies"`
}

// Snapshot is the single immutable aggregate published to all consumers.
// Once published it must never be mutated; the store builds a fresh one per batch.
type Snapshot struct {
	Positions        map[PositionKey]*PositionUpdate  `json:"positions"`
	RecentTrades     []*TradeEvent                    `json:"recent_trades"`
	RecentLogs       []*LogEvent                      `json:"recent_logs"`
	AgentHealth      map[string]*PlatformHealthUpdate `json:"agent_health"`
	ConsensusHistory []*ConsensusDecision             `json:"consensus_history"`
	Derived          DerivedMetrics                   `json:"derived"`
	AsOf             time.Time                        `json:"as_of"`
}

// Position returns the live position for a key, if present.
func (s *Snapshot) Position(sourceID, symbol string) (*PositionUpdate, bool) {
	p, ok := s.Positions[PositionKey{SourceID: sourceID, Symbol: symbol}]
	return p, ok
}

// Trade returns the stored trade by id, if present in the recent buffer.
func (s *Snapshot) Trade(id string) (*TradeEvent, bool) {
	for _, t := range s.RecentTrades {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// ConnectionState is the top-level indicator exposed to UI consumers.
type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateConnecting   ConnectionState = "connecting"
	StateDisconnected ConnectionState = "disconnected"
)

func (c ConnectionState) String() string { return string(c) }
