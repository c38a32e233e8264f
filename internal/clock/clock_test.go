package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReal_AfterFunc(t *testing.T) {
	c := New()
	fired := make(chan struct{})
	c.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestReal_StopPreventsFiring(t *testing.T) {
	c := New()
	fired := make(chan struct{}, 1)
	tm := c.AfterFunc(50*time.Millisecond, func() { fired <- struct{}{} })
	require.True(t, tm.Stop())

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(100 * time.Millisecond):
	}
	assert.False(t, tm.Stop())
}
