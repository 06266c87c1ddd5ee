package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"TradeDeck/pkg/util"
)

// wireTime accepts RFC3339 strings, unix seconds, and unix milliseconds, since
// the upstream adapters do not agree on a timestamp encoding.
type wireTime struct {
	time.Time
}

func (w *wireTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if t, ok := util.ParseTime(s); ok {
			w.Time = t
		}
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	// values past year 33658 in seconds are millisecond stamps
	if n > 1e12 {
		w.Time = time.UnixMilli(int64(n))
	} else {
		w.Time = time.Unix(int64(n), 0)
	}
	return nil
}

// Upstream shapes, per adapter contract. Unknown fields are dropped by the
// struct decoders except for log entries, which keep them in a context bag.

type wirePlatformHealth struct {
	Healthy             bool     `json:"healthy"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	LastCheck           wireTime `json:"last_check"`
	ErrorMessage        string   `json:"error_message"`
}

type wirePlatformStatus struct {
	Health struct {
		Platforms        map[string]wirePlatformHealth `json:"platforms"`
		OverallHealthy   bool                          `json:"overall_healthy"`
		TotalPlatforms   int                           `json:"total_platforms"`
		HealthyPlatforms int                           `json:"healthy_platforms"`
	} `json:"health"`
}

type wireTrade struct {
	ID          string   `json:"id"`
	Timestamp   wireTime `json:"timestamp"`
	Platform    string   `json:"platform"`
	Symbol      string   `json:"symbol"`
	Side        string   `json:"side"`
	Quantity    float64  `json:"quantity"`
	Price       float64  `json:"price"`
	Status      string   `json:"status"`
	LatencyMs   int64    `json:"latency_ms"`
	RealizedPnl float64  `json:"realized_pnl"`
}

type wireTradeHistory struct {
	Trades []wireTrade `json:"trades"`
}

type wirePosition struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Size          float64  `json:"size"`
	EntryPrice    float64  `json:"entry_price"`
	UnrealizedPnl float64  `json:"unrealized_pnl"`
	Leverage      float64  `json:"leverage"`
	LastUpdated   wireTime `json:"last_updated"`
}

type wirePositions struct {
	Platforms map[string][]wirePosition `json:"platforms"`
}

type wireVote struct {
	AgentID    string  `json:"agent_id"`
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
}

type wireConsensus struct {
	Timestamp           wireTime   `json:"timestamp"`
	Symbol              string     `json:"symbol"`
	AgentVotes          []wireVote `json:"agent_votes"`
	ConsensusSignal     string     `json:"consensus_signal"`
	ConsensusConfidence float64    `json:"consensus_confidence"`
	Executed            bool       `json:"executed"`
}
