package repository

import (
	"context"
	"encoding/json"
	"time"

	"TradeDeck/internal/domain/models"
)

// PayloadKind tells the normalizer which wire shape a raw payload carries.
type PayloadKind string

const (
	PayloadPlatformStatus PayloadKind = "platform_status"
	PayloadTradeHistory   PayloadKind = "trade_history"
	PayloadPositions      PayloadKind = "positions"
	PayloadLogs           PayloadKind = "logs"
	PayloadConsensus      PayloadKind = "consensus"
)

// AdapterMode declares how a source delivers data.
type AdapterMode string

const (
	ModePoll   AdapterMode = "poll"
	ModeStream AdapterMode = "stream"
)

// Adapter is the canonical contract every upstream integration exposes.
// Implementations are external collaborators; the aggregator treats them as
// untrusted and independently fallible.
type Adapter interface {
	SourceID() string
	Kind() PayloadKind
	Mode() AdapterMode
	Close() error
}

// Poller is an Adapter delivering data on demand. Poll returns the full native
// payload; re-returning already-seen items is expected and deduplicated downstream.
type Poller interface {
	Adapter
	Interval() time.Duration
	Poll(ctx context.Context) (json.RawMessage, error)
}

// Streamer is an Adapter maintaining a persistent push connection. Read channels
// close when the connection dies; the transport manager reconnects.
type Streamer interface {
	Adapter
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan json.RawMessage, <-chan error)
}

// Metrics is the aggregator's instrumentation surface.
type Metrics interface {
	RecordEventsIngested(source string, kind string, n int)
	RecordNormalizationError(source string)
	RecordMergeAnomaly(kind string)
	RecordBatchDropped(source string)
	RecordSnapshotPublished()
	RecordApplyLatency(seconds float64)
	RecordSourceUp(source string, up bool)
}

// SnapshotReader is the read side handed to consumers (HTTP handlers, mirrors).
type SnapshotReader interface {
	Read() *models.Snapshot
}

// HeartbeatSink receives per-source liveness signals from the transport layer.
type HeartbeatSink interface {
	OnHeartbeat(sourceID string, ok bool, errMsg string)
}
