// Package broadcast fans committed snapshots out to registered consumers.
package broadcast

import (
	"sync"

	"TradeDeck/internal/domain/models"
	"TradeDeck/pkg/logger"
)

type subscriber struct {
	mailbox chan *models.Snapshot
	done    chan struct{}
}

// Broadcaster delivers each committed snapshot to every subscriber at most once.
// Each subscriber owns a depth-1 latest-wins mailbox drained by its own
// goroutine, so a slow consumer only ever skips to the newest snapshot and can
// never stall the write path.
type Broadcaster struct {
	log *logger.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

// New creates a broadcaster.
func New(log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		log:  log,
		subs: make(map[uint64]*subscriber),
	}
}

// Subscribe registers a callback invoked with each new snapshot. The returned
// function unsubscribes; calling it more than once is safe.
func (b *Broadcaster) Subscribe(fn func(*models.Snapshot)) func() {
	sub := &subscriber{
		mailbox: make(chan *models.Snapshot, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-sub.done:
				return
			case snap := <-sub.mailbox:
				fn(snap)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish offers the snapshot to every subscriber without blocking. A mailbox
// that still holds an undelivered snapshot is overwritten with the newer one.
func (b *Broadcaster) Publish(snap *models.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.mailbox <- snap:
		default:
			select {
			case <-sub.mailbox:
			default:
			}
			select {
			case sub.mailbox <- snap:
			default:
			}
		}
	}
}

// Close unsubscribes everyone and waits for delivery goroutines to finish.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
}
