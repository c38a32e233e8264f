package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue()

	ok := q.Enqueue(Event{Type: EventTypeFlush, Gen: 3, TimerSeq: 7})
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, EventTypeFlush, got.Type)
	assert.Equal(t, uint64(3), got.Gen)
	assert.Equal(t, uint64(7), got.TimerSeq)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for i := uint64(1); i <= 3; i++ {
		q.Enqueue(Event{Type: EventTypeRemote, Gen: i})
	}

	for i := uint64(1); i <= 3; i++ {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, e.Gen)
	}
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(Event{Type: EventTypeFlush})
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait() was not signalled")
	}
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close() // idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(Event{Type: EventTypeFlush}), "enqueue after close should fail")

	select {
	case _, ok := <-q.Wait():
		assert.False(t, ok, "signal channel should be closed")
	default:
		t.Fatal("Wait() should not block after close")
	}
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()
	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.Enqueue(Event{Type: EventTypeRemote})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "flush", EventTypeFlush.String())
	assert.Equal(t, "remote", EventTypeRemote.String())
	assert.Equal(t, "feed_failed", EventTypeFeedFailed.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
