package engine

import (
	"sync"

	"github.com/roach88/rollcall/internal/attendance"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeFlush asks the loop to persist the active buffer.
	EventTypeFlush EventType = iota + 1
	// EventTypeRemote carries coalesced changes from the store feed.
	EventTypeRemote
	// EventTypeFeedFailed reports that the active subscription closed with an error.
	EventTypeFeedFailed
)

func (t EventType) String() string {
	switch t {
	case EventTypeFlush:
		return "flush"
	case EventTypeRemote:
		return "remote"
	case EventTypeFeedFailed:
		return "feed_failed"
	}
	return "unknown"
}

// Event is one unit of work for the Run loop.
//
// Gen ties the event to the session that produced it; the loop drops events
// whose generation is no longer active.
type Event struct {
	Type     EventType
	Gen      uint64
	Date     string
	TimerSeq uint64
	Changes  []attendance.Change
	Err      error

	// Result, when set, receives the outcome of a flush.
	Result chan<- error
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that timer callbacks and feed forwarders never
// block on a busy loop.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the backing array does not pin change slices.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
