package engine

import (
	"sync"
	"time"
)

// SaveState reflects the persistence status of the active day.
type SaveState string

const (
	StateIdle   SaveState = "idle"
	StateDirty  SaveState = "dirty"
	StateSaving SaveState = "saving"
	StateSaved  SaveState = "saved"
	StateError  SaveState = "error"
)

// Transition is one observed SaveState change.
type Transition struct {
	From SaveState `json:"from"`
	To   SaveState `json:"to"`
	Date string    `json:"date"`
	At   time.Time `json:"at"`
}

// DefaultObserverBuffer is the channel capacity given to state observers.
const DefaultObserverBuffer = 16

// stateMachine holds the current SaveState and fans transitions out to
// observers. Sends never block: an observer whose buffer is full misses the
// transition and can fall back to Current.
type stateMachine struct {
	mu        sync.Mutex
	current   SaveState
	observers map[int]chan Transition
	nextID    int
	dropped   int
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current:   StateIdle,
		observers: make(map[int]chan Transition),
	}
}

// set moves to `to`. Setting the current state again is not a transition.
func (m *stateMachine) set(to SaveState, date string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return false
	}
	tr := Transition{From: m.current, To: to, Date: date, At: at}
	m.current = to

	for _, ch := range m.observers {
		select {
		case ch <- tr:
		default:
			m.dropped++
		}
	}
	return true
}

func (m *stateMachine) Current() SaveState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// subscribe registers an observer. The returned cancel func unregisters it
// and closes the channel.
func (m *stateMachine) subscribe(buffer int) (<-chan Transition, func()) {
	if buffer <= 0 {
		buffer = DefaultObserverBuffer
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Transition, buffer)
	m.observers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.observers[id]; ok {
				delete(m.observers, id)
				close(ch)
			}
		})
	}
}

// Dropped returns how many transitions were discarded for slow observers.
func (m *stateMachine) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// closeAll unregisters every observer.
func (m *stateMachine) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.observers {
		delete(m.observers, id)
		close(ch)
	}
}
