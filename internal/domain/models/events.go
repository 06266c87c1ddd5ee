package models

import "time"

// EventKind discriminates the closed set of canonical event variants.
type EventKind string

const (
	KindLog       EventKind = "log"
	KindTrade     EventKind = "trade"
	KindPosition  EventKind = "position"
	KindConsensus EventKind = "consensus"
	KindHealth    EventKind = "health"
)

// Event is the canonical envelope every adapter payload is normalized into.
// Exactly one of the typed payload pointers is set, matching Kind.
type Event struct {
	SourceID   string
	Sequence   uint64
	Kind       EventKind
	ReceivedAt time.Time

	Log       *LogEvent
	Trade     *TradeEvent
	Position  *PositionUpdate
	Consensus *ConsensusDecision
	Health    *PlatformHealthUpdate
}

// LogLevel is the severity of a LogEvent.
type LogLevel string

const (
	LevelDebug    LogLevel = "DEBUG"
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// LogEvent is an immutable log line from a platform or from the aggregator itself.
type LogEvent struct {
	SourceID  string         `json:"source_id"`
	Sequence  uint64         `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Tags      []string       `json:"tags,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeStatus is the lifecycle state of an execution. Ordered: a trade may only
// move forward (Pending -> Partial -> Filled/Cancelled), never back.
type TradeStatus string

const (
	StatusPending   TradeStatus = "PENDING"
	StatusPartial   TradeStatus = "PARTIAL"
	StatusFilled    TradeStatus = "FILLED"
	StatusCancelled TradeStatus = "CANCELLED"
)

// rank orders statuses for regression detection.
func (s TradeStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusPartial:
		return 1
	case StatusFilled, StatusCancelled:
		return 2
	default:
		return -1
	}
}

// Regresses reports whether moving from s to next would walk the lifecycle backwards.
func (s TradeStatus) Regresses(next TradeStatus) bool {
	return next.rank() < s.rank()
}

// TradeEvent is an execution record, unique by ID. A later event with the same ID
// is a status transition, never a duplicate row.
type TradeEvent struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	SourceID    string      `json:"source_id"`
	Symbol      string      `json:"symbol"`
	Side        TradeSide   `json:"side"`
	Quantity    float64     `json:"quantity"`
	Price       float64     `json:"price"`
	Status      TradeStatus `json:"status"`
	LatencyMs   int64       `json:"latency_ms"`
	RealizedPnl float64     `json:"realized_pnl"`
}

// PositionUpdate reports the live position for a (source, symbol) key.
// Size zero means the position is closed and the key must be removed.
type PositionUpdate struct {
	SourceID      string    `json:"source_id"`
	Symbol        string    `json:"symbol"`
	Side          TradeSide `json:"side"`
	Size          float64   `json:"size"`
	EntryPrice    float64   `json:"entry_price"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	Leverage      float64   `json:"leverage"`
	LastUpdated   time.Time `json:"last_updated"`
}

// AgentVote is one agent's contribution to a consensus round.
type AgentVote struct {
	AgentID    string  `json:"agent_id"`
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
}

// ConsensusDecision is a finalized agent-consensus round. Read-only history entry.
type ConsensusDecision struct {
	Timestamp           time.Time   `json:"timestamp"`
	Symbol              string      `json:"symbol"`
	Votes               []AgentVote `json:"votes"`
	AggregateSignal     string      `json:"aggregate_signal"`
	AggregateConfidence float64     `json:"aggregate_confidence"`
	Executed            bool        `json:"executed"`
}

// PlatformHealthUpdate carries the health verdict for one source.
type PlatformHealthUpdate struct {
	SourceID            string    `json:"source_id"`
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastCheck           time.Time `json:"last_check"`
	ErrorMessage        string    `json:"error_message,omitempty"`
}
