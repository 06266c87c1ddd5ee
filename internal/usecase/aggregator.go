// Package usecase wires the ingest pipeline: bounded queue in, serialized
// apply, snapshot broadcast out.
package usecase

import (
	"context"
	"sync"

	"TradeDeck/internal/broadcast"
	"TradeDeck/internal/domain/models"
	"TradeDeck/internal/state"
	"TradeDeck/pkg/logger"
)

// Aggregator drains the bounded event queue with a single goroutine, so state
// store mutation is never concurrent with itself. Ordering across sources is
// arrival-into-queue order; per-source ordering is the normalizer's sequence.
type Aggregator struct {
	log   *logger.Logger
	store *state.Store
	bcast *broadcast.Broadcaster
	queue chan []models.Event

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewAggregator creates the pipeline with a queue of the given size.
func NewAggregator(log *logger.Logger, store *state.Store, bcast *broadcast.Broadcaster, queueSize int) *Aggregator {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Aggregator{
		log:   log,
		store: store,
		bcast: bcast,
		queue: make(chan []models.Event, queueSize),
	}
}

// Queue is the bounded handoff the transport manager delivers batches into.
func (a *Aggregator) Queue() chan<- []models.Event { return a.queue }

// Emit enqueues a single event without blocking. Used by the health monitor and
// the self-observation log hook; dropped silently when the queue is full.
func (a *Aggregator) Emit(ev models.Event) {
	select {
	case a.queue <- []models.Event{ev}:
	default:
	}
}

// Start launches the apply loop. Channels are created per launch, so a stopped
// aggregator can be started again.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	stopCh := make(chan struct{})
	done := make(chan struct{})
	a.stopCh = stopCh
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case batch := <-a.queue:
				if len(batch) == 0 {
					continue
				}
				a.store.Apply(batch)
				a.bcast.Publish(a.store.Read())
			}
		}
	}()
}

// Stop terminates the apply loop and waits for it to exit.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	stopCh := a.stopCh
	done := a.done
	a.mu.Unlock()

	close(stopCh)
	<-done
}
