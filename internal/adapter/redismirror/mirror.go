// Package redismirror mirrors each published snapshot into Redis so sibling
// dashboard processes can read the latest state without connecting upstream.
// The mirror is transient: nothing survives the key's natural overwrite cycle.
package redismirror

import (
	"context"
	"encoding/json"
	"time"

	"TradeDeck/internal/domain/models"
	"TradeDeck/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Mirror is a broadcaster subscriber writing snapshots to Redis.
type Mirror struct {
	log     *logger.Logger
	client  *redis.Client
	key     string
	channel string
	timeout time.Duration
}

// New creates a mirror.
func New(log *logger.Logger, client *redis.Client, key, channel string) *Mirror {
	return &Mirror{
		log:     log,
		client:  client,
		key:     key,
		channel: channel,
		timeout: 5 * time.Second,
	}
}

// Publish stores the snapshot under the configured key and notifies the pub/sub
// channel. Intended as a broadcast.Broadcaster callback; failures are logged and
// skipped, never propagated to the write path.
func (m *Mirror) Publish(snap *models.Snapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		m.log.Error("snapshot marshal failed", logger.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.client.Set(ctx, m.key, b, 0).Err(); err != nil {
		m.log.Warn("snapshot mirror set failed", logger.Error(err))
		return
	}
	if err := m.client.Publish(ctx, m.channel, snap.AsOf.UnixMilli()).Err(); err != nil {
		m.log.Warn("snapshot mirror publish failed", logger.Error(err))
	}
}

// Close closes the Redis client.
func (m *Mirror) Close() error {
	return m.client.Close()
}
