package engine

import (
	"github.com/roach88/rollcall/internal/attendance"
)

// forward drains the session's subscription into the event queue. Whatever
// is available at once is coalesced per key (last change wins) into one
// remote event tagged with the session generation.
//
// It exits when the subscription closes; s.done is closed on exit.
func (e *Engine) forward(s *session) {
	defer close(s.done)

	changes := s.sub.Changes()
	for {
		c, ok := <-changes
		if !ok {
			e.feedClosed(s)
			return
		}

		batch := newCoalescer()
		batch.add(c)

	drain:
		for {
			select {
			case c, ok := <-changes:
				if !ok {
					e.enqueueRemote(s, batch)
					e.feedClosed(s)
					return
				}
				batch.add(c)
			default:
				break drain
			}
		}
		e.enqueueRemote(s, batch)
	}
}

func (e *Engine) enqueueRemote(s *session, b *coalescer) {
	e.queue.Enqueue(Event{
		Type:    EventTypeRemote,
		Gen:     s.gen,
		Date:    s.date,
		Changes: b.changes(),
	})
}

// feedClosed reports a subscription that ended on its own.
func (e *Engine) feedClosed(s *session) {
	err := s.sub.Err()
	if err == nil {
		return
	}
	e.queue.Enqueue(Event{Type: EventTypeFeedFailed, Gen: s.gen, Date: s.date, Err: err})
}

// applyRemote merges a remote event into the active buffer if it belongs to
// the active session. Called only from the Run goroutine.
func (e *Engine) applyRemote(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil || s.gen != ev.Gen {
		e.logger.Debug("dropping remote changes for inactive session", "date", ev.Date, "gen", ev.Gen, "changes", len(ev.Changes))
		return
	}

	discarded, unknown := s.buffer.applyRemote(ev.Changes, e.writer)
	if len(discarded) > 0 {
		e.logger.Info("remote changes replaced pending edits", "date", s.date, "roll_nos", discarded)
	}
	if len(unknown) > 0 {
		e.logger.Warn("ignoring remote records not on the roster", "date", s.date, "roll_nos", unknown)
	}

	if !s.buffer.hasPending() {
		e.state.set(StateSaved, s.date, e.clock.Now())
	}
}

// feedFailed records a subscription failure. The feed is not reopened;
// the next Open of the date subscribes again.
func (e *Engine) feedFailed(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil || s.gen != ev.Gen {
		return nil
	}
	err := attendance.NewSubscriptionError(ev.Date, ev.Err)
	e.lastErr = err
	return err
}

// coalescer keeps the last change per key, in first-seen key order.
type coalescer struct {
	order []string
	last  map[string]attendance.Change
}

func newCoalescer() *coalescer {
	return &coalescer{last: make(map[string]attendance.Change)}
}

func (c *coalescer) add(ch attendance.Change) {
	if _, ok := c.last[ch.RollNo]; !ok {
		c.order = append(c.order, ch.RollNo)
	}
	c.last[ch.RollNo] = ch
}

func (c *coalescer) changes() []attendance.Change {
	out := make([]attendance.Change, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.last[k])
	}
	return out
}
