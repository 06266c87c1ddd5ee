// Package ingest maps native adapter payloads into canonical events.
//
// The normalizer owns per-source sequence assignment and idempotent re-delivery
// handling: poll-based adapters re-return already-seen items, and those are
// discarded here so the store only sees fresh mutations. Malformed records are
// dropped with a warning; the rest of the batch continues.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"TradeDeck/internal/domain/models"
	"TradeDeck/internal/domain/repository"
	"TradeDeck/pkg/logger"
)

// maxSeenTrades bounds the per-source trade dedup map. When exceeded the map is
// reset; re-delivered trades then become no-op upserts in the store.
const maxSeenTrades = 10000

// tracker holds per-source normalization state.
type tracker struct {
	seq           uint64
	lastLogSeq    uint64
	seenTrades    map[string]models.TradeStatus
	openPositions map[string]struct{}
	lastConsensus map[string]time.Time
}

// Normalizer converts raw payloads into canonical event batches.
type Normalizer struct {
	log     *logger.Logger
	metrics repository.Metrics

	mu      sync.Mutex
	sources map[string]*tracker
}

// NewNormalizer creates a normalizer.
func NewNormalizer(log *logger.Logger, metrics repository.Metrics) *Normalizer {
	return &Normalizer{
		log:     log,
		metrics: metrics,
		sources: make(map[string]*tracker),
	}
}

// Normalize maps one raw payload into canonical events. A nil error with an
// empty slice means everything in the payload was already seen.
func (n *Normalizer) Normalize(sourceID string, kind repository.PayloadKind, raw json.RawMessage) ([]models.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	tr, ok := n.sources[sourceID]
	if !ok {
		tr = &tracker{
			seenTrades:    make(map[string]models.TradeStatus),
			openPositions: make(map[string]struct{}),
			lastConsensus: make(map[string]time.Time),
		}
		n.sources[sourceID] = tr
	}

	switch kind {
	case repository.PayloadPlatformStatus:
		return n.platformStatus(sourceID, tr, raw)
	case repository.PayloadTradeHistory:
		return n.tradeHistory(sourceID, tr, raw)
	case repository.PayloadPositions:
		return n.positions(sourceID, tr, raw)
	case repository.PayloadLogs:
		return n.logs(sourceID, tr, raw)
	case repository.PayloadConsensus:
		return n.consensus(sourceID, tr, raw)
	default:
		return nil, &models.NormalizationError{SourceID: sourceID, Reason: fmt.Sprintf("unknown payload kind %q", kind)}
	}
}

func (n *Normalizer) envelope(sourceID string, tr *tracker, kind models.EventKind) models.Event {
	tr.seq++
	return models.Event{
		SourceID:   sourceID,
		Sequence:   tr.seq,
		Kind:       kind,
		ReceivedAt: time.Now(),
	}
}

func (n *Normalizer) dropRecord(sourceID, reason string) {
	n.metrics.RecordNormalizationError(sourceID)
	n.log.Warn("malformed record dropped",
		logger.String("source", sourceID),
		logger.String("reason", reason))
}

func (n *Normalizer) platformStatus(sourceID string, tr *tracker, raw json.RawMessage) ([]models.Event, error) {
	var st wirePlatformStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, &models.NormalizationError{SourceID: sourceID, Reason: err.Error()}
	}

	events := make([]models.Event, 0, len(st.Health.Platforms))
	for id, h := range st.Health.Platforms {
		if id == "" {
			n.dropRecord(sourceID, "platform health without id")
			continue
		}
		ev := n.envelope(sourceID, tr, models.KindHealth)
		ev.Health = &models.PlatformHealthUpdate{
			SourceID:            id,
			Healthy:             h.Healthy,
			ConsecutiveFailures: h.ConsecutiveFailures,
			LastCheck:           h.LastCheck.Time,
			ErrorMessage:        h.ErrorMessage,
		}
		events = append(events, ev)
	}
	return events, nil
}

func (n *Normalizer) tradeHistory(sourceID string, tr *tracker, raw json.RawMessage) ([]models.Event, error) {
	var trades []wireTrade
	if err := json.Unmarshal(raw, &trades); err != nil {
		var wrapped wireTradeHistory
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, &models.NormalizationError{SourceID: sourceID, Reason: err.Error()}
		}
		trades = wrapped.Trades
	}

	if len(tr.seenTrades) > maxSeenTrades {
		tr.seenTrades = make(map[string]models.TradeStatus)
	}

	var events []models.Event
	for _, t := range trades {
		if t.ID == "" || t.Symbol == "" {
			n.dropRecord(sourceID, "trade without id or symbol")
			continue
		}
		status := models.TradeStatus(strings.ToUpper(t.Status))
		switch status {
		case models.StatusPending, models.StatusPartial, models.StatusFilled, models.StatusCancelled:
		default:
			n.dropRecord(sourceID, "trade "+t.ID+" with unknown status "+t.Status)
			continue
		}
		if prev, seen := tr.seenTrades[t.ID]; seen && prev == status {
			continue // poll re-delivery
		}
		tr.seenTrades[t.ID] = status

		platform := t.Platform
		if platform == "" {
			platform = sourceID
		}
		ev := n.envelope(sourceID, tr, models.KindTrade)
		ev.Trade = &models.TradeEvent{
			ID:          t.ID,
			Timestamp:   t.Timestamp.Time,
			SourceID:    platform,
			Symbol:      t.Symbol,
			Side:        models.TradeSide(strings.ToUpper(t.Side)),
			Quantity:    t.Quantity,
			Price:       t.Price,
			Status:      status,
			LatencyMs:   t.LatencyMs,
			RealizedPnl: t.RealizedPnl,
		}
		events = append(events, ev)
	}
	return events, nil
}

func (n *Normalizer) positions(sourceID string, tr *tracker, raw json.RawMessage) ([]models.Event, error) {
	var wrapped wirePositions
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &models.NormalizationError{SourceID: sourceID, Reason: err.Error()}
	}
	byPlatform := wrapped.Platforms
	if byPlatform == nil {
		byPlatform = map[string][]wirePosition{}
		if err := json.Unmarshal(raw, &byPlatform); err != nil {
			return nil, &models.NormalizationError{SourceID: sourceID, Reason: err.Error()}
		}
	}

	var events []models.Event
	current := make(map[string]struct{})
	for platform, positions := range byPlatform {
		for _, p := range positions {
			if p.Symbol == "" {
				n.dropRecord(sourceID, "position without symbol on "+platform)
				continue
			}
			key := platform + "/" + p.Symbol
			current[key] = struct{}{}
			ev := n.envelope(sourceID, tr, models.KindPosition)
			ev.Position = &models.PositionUpdate{
				SourceID:      platform,
				Symbol:        p.Symbol,
				Side:          models.TradeSide(strings.ToUpper(p.Side)),
				Size:          p.Size,
				EntryPrice:    p.EntryPrice,
				UnrealizedPnl: p.UnrealizedPnl,
				Leverage:      p.Leverage,
				LastUpdated:   p.LastUpdated.Time,
			}
			events = append(events, ev)
		}
	}

	// a key open last poll but absent now was closed upstream
	for key := range tr.openPositions {
		if _, still := current[key]; still {
			continue
		}
		platform, symbol, ok := strings.Cut(key, "/")
		if !ok {
			continue
		}
		ev := n.envelope(sourceID, tr, models.KindPosition)
		ev.Position = &models.PositionUpdate{
			SourceID:    platform,
			Symbol:      symbol,
			Size:        0,
			LastUpdated: time.Now(),
		}
		events = append(events, ev)
	}
	tr.openPositions = current
	return events, nil
}

// logs decodes entries as loose maps so fields beyond the known set survive in
// the context bag instead of being silently lost.
func (n *Normalizer) logs(sourceID string, tr *tracker, raw json.RawMessage) ([]models.Event, error) {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		var single map[string]json.RawMessage
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, &models.NormalizationError{SourceID: sourceID, Reason: err.Error()}
		}
		entries = []map[string]json.RawMessage{single}
	}

	var events []models.Event
	for _, entry := range entries {
		le, seq, err := n.decodeLogEntry(sourceID, entry)
		if err != nil {
			n.dropRecord(sourceID, err.Error())
			continue
		}
		if seq != 0 {
			if seq <= tr.lastLogSeq {
				continue // re-delivered or out-of-order duplicate
			}
			tr.lastLogSeq = seq
		} else {
			tr.lastLogSeq++
			seq = tr.lastLogSeq
		}
		le.Sequence = seq

		ev := n.envelope(sourceID, tr, models.KindLog)
		ev.Log = le
		events = append(events, ev)
	}
	return events, nil
}

func (n *Normalizer) decodeLogEntry(sourceID string, entry map[string]json.RawMessage) (*models.LogEvent, uint64, error) {
	le := &models.LogEvent{SourceID: sourceID, Timestamp: time.Now()}
	var seq uint64
	ctx := make(map[string]any)

	for k, v := range entry {
		switch k {
		case "message":
			if json.Unmarshal(v, &le.Message) != nil {
				return nil, 0, fmt.Errorf("log entry with non-string message")
			}
		case "level":
			var s string
			if json.Unmarshal(v, &s) == nil {
				le.Level = normalizeLevel(s)
			}
		case "timestamp":
			var wt wireTime
			if wt.UnmarshalJSON(v) == nil && !wt.IsZero() {
				le.Timestamp = wt.Time
			}
		case "sequence":
			_ = json.Unmarshal(v, &seq)
		case "platform":
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				le.SourceID = s
			}
		case "tags":
			_ = json.Unmarshal(v, &le.Tags)
		case "context":
			var m map[string]any
			if json.Unmarshal(v, &m) == nil {
				for ck, cv := range m {
					ctx[ck] = cv
				}
			}
		default:
			var anyv any
			if json.Unmarshal(v, &anyv) == nil {
				ctx[k] = anyv
			}
		}
	}

	if le.Message == "" {
		return nil, 0, fmt.Errorf("log entry without message")
	}
	if le.Level == "" {
		le.Level = models.LevelInfo
	}
	if len(ctx) > 0 {
		le.Context = ctx
	}
	return le, seq, nil
}

func normalizeLevel(s string) models.LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG", "TRACE":
		return models.LevelDebug
	case "INFO":
		return models.LevelInfo
	case "WARN", "WARNING":
		return models.LevelWarning
	case "ERROR":
		return models.LevelError
	case "CRITICAL", "FATAL":
		return models.LevelCritical
	default:
		return models.LevelInfo
	}
}

func (n *Normalizer) consensus(sourceID string, tr *tracker, raw json.RawMessage) ([]models.Event, error) {
	var decisions []wireConsensus
	if err := json.Unmarshal(raw, &decisions); err != nil {
		var single wireConsensus
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, &models.NormalizationError{SourceID: sourceID, Reason: err.Error()}
		}
		decisions = []wireConsensus{single}
	}

	var events []models.Event
	for _, d := range decisions {
		if d.Symbol == "" {
			n.dropRecord(sourceID, "consensus decision without symbol")
			continue
		}
		if d.Timestamp.IsZero() {
			d.Timestamp.Time = time.Now()
		}
		// decisions for different symbols may legitimately share a timestamp,
		// so the redelivery watermark is per symbol
		if !d.Timestamp.After(tr.lastConsensus[d.Symbol]) {
			continue // already finalized and recorded
		}
		tr.lastConsensus[d.Symbol] = d.Timestamp.Time

		votes := make([]models.AgentVote, 0, len(d.AgentVotes))
		for _, v := range d.AgentVotes {
			votes = append(votes, models.AgentVote{
				AgentID:    v.AgentID,
				Signal:     v.Signal,
				Confidence: v.Confidence,
			})
		}
		ev := n.envelope(sourceID, tr, models.KindConsensus)
		ev.Consensus = &models.ConsensusDecision{
			Timestamp:           d.Timestamp.Time,
			Symbol:              d.Symbol,
			Votes:               votes,
			AggregateSignal:     d.ConsensusSignal,
			AggregateConfidence: d.ConsensusConfidence,
			Executed:            d.Executed,
		}
		events = append(events, ev)
	}
	return events, nil
}
