package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_StartsIdle(t *testing.T) {
	m := newStateMachine()
	assert.Equal(t, StateIdle, m.Current())
}

func TestStateMachine_NotifiesObservers(t *testing.T) {
	m := newStateMachine()
	ch, cancel := m.subscribe(4)
	defer cancel()

	assert.True(t, m.set(StateDirty, dayA, epoch))
	assert.False(t, m.set(StateDirty, dayA, epoch), "same state is not a transition")
	assert.True(t, m.set(StateSaving, dayA, epoch))

	tr := <-ch
	assert.Equal(t, Transition{From: StateIdle, To: StateDirty, Date: dayA, At: epoch}, tr)
	tr = <-ch
	assert.Equal(t, StateSaving, tr.To)
	assert.Len(t, ch, 0)
}

func TestStateMachine_SlowObserverDropsNotBlocks(t *testing.T) {
	m := newStateMachine()
	ch, cancel := m.subscribe(1)
	defer cancel()

	m.set(StateDirty, dayA, epoch)
	m.set(StateSaving, dayA, epoch)
	m.set(StateSaved, dayA, epoch)

	assert.Equal(t, StateSaved, m.Current())
	assert.Equal(t, 2, m.Dropped())
	tr := <-ch
	assert.Equal(t, StateDirty, tr.To)
}

func TestStateMachine_CancelClosesChannel(t *testing.T) {
	m := newStateMachine()
	ch, cancel := m.subscribe(0)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	m.set(StateDirty, dayA, epoch)
}

func TestStateMachine_CloseAllThenCancel(t *testing.T) {
	m := newStateMachine()
	ch, cancel := m.subscribe(0)
	m.closeAll()

	_, ok := <-ch
	require.False(t, ok)
	assert.NotPanics(t, cancel)
}
