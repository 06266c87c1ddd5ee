package usecase

import (
	"sync/atomic"
	"time"

	"TradeDeck/internal/domain/models"
)

// SelfSourceID is the source id under which the aggregator's own warn/error
// logs appear in the snapshot.
const SelfSourceID = "aggregator"

// SelfLogCollector feeds the aggregator's own warn/error lines back through the
// ingest path as LogEvents, so the dashboard's log view includes the aggregator
// itself. Install via logger.SetCollector.
type SelfLogCollector struct {
	agg *Aggregator
	seq atomic.Uint64
}

// NewSelfLogCollector creates the hook.
func NewSelfLogCollector(agg *Aggregator) *SelfLogCollector {
	return &SelfLogCollector{agg: agg}
}

// AddLog implements logger.Collector.
func (c *SelfLogCollector) AddLog(level, msg string, fields map[string]interface{}, caller string) {
	lvl := models.LevelWarning
	if level == "error" {
		lvl = models.LevelError
	}

	ctx := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		ctx[k] = v
	}
	ctx["caller"] = caller

	c.agg.Emit(models.Event{
		SourceID:   SelfSourceID,
		Kind:       models.KindLog,
		ReceivedAt: time.Now(),
		Log: &models.LogEvent{
			SourceID:  SelfSourceID,
			Sequence:  c.seq.Add(1),
			Timestamp: time.Now(),
			Level:     lvl,
			Message:   msg,
			Context:   ctx,
		},
	})
}
