package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeDeck/internal/domain/models"
	"TradeDeck/pkg/logger"
)

func snapshotAt(sec int) *models.Snapshot {
	return &models.Snapshot{AsOf: time.Date(2026, 8, 1, 0, 0, sec, 0, time.UTC)}
}

func TestSubscriberReceivesPublishedSnapshot(t *testing.T) {
	b := New(logger.Nop())
	defer b.Close()

	got := make(chan *models.Snapshot, 1)
	unsub := b.Subscribe(func(s *models.Snapshot) { got <- s })
	defer unsub()

	want := snapshotAt(1)
	b.Publish(want)

	select {
	case s := <-got:
		assert.Same(t, want, s)
	case <-time.After(time.Second):
		t.Fatal("snapshot never delivered")
	}
}

func TestSlowConsumerSkipsToNewest(t *testing.T) {
	b := New(logger.Nop())
	defer b.Close()

	block := make(chan struct{})
	var received []*models.Snapshot
	done := make(chan struct{})
	unsub := b.Subscribe(func(s *models.Snapshot) {
		<-block
		received = append(received, s)
		if s.AsOf.Second() == 9 {
			close(done)
		}
	})
	defer unsub()

	// the consumer is stuck on the first delivery; intermediate snapshots
	// must be overwritten, not queued
	b.Publish(snapshotAt(1))
	time.Sleep(20 * time.Millisecond) // let the drain goroutine pick it up
	b.Publish(snapshotAt(2))
	b.Publish(snapshotAt(3))
	b.Publish(snapshotAt(9))
	close(block)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("final snapshot never delivered")
	}

	require.Len(t, received, 2)
	assert.Equal(t, 1, received[0].AsOf.Second())
	assert.Equal(t, 9, received[1].AsOf.Second())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(logger.Nop())
	defer b.Close()

	got := make(chan *models.Snapshot, 4)
	unsub := b.Subscribe(func(s *models.Snapshot) { got <- s })

	unsub()
	unsub() // second call must be a no-op

	b.Publish(snapshotAt(1))

	select {
	case <-got:
		t.Fatal("delivery after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverBlocksWithoutSubscribers(t *testing.T) {
	b := New(logger.Nop())
	defer b.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(snapshotAt(i % 60))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestSubscribeAfterCloseIsNoop(t *testing.T) {
	b := New(logger.Nop())
	b.Close()

	unsub := b.Subscribe(func(*models.Snapshot) { t.Error("delivery on closed broadcaster") })
	b.Publish(snapshotAt(1))
	unsub()
}
