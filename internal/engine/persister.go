package engine

import (
	"context"
	"errors"

	"github.com/roach88/rollcall/internal/attendance"
)

// armLocked (re)starts the debounce timer of s. Only the most recent timer
// counts: its sequence number is carried by the flush event, and the loop
// drops flushes whose number is stale. Caller holds e.mu.
func (e *Engine) armLocked(s *session) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerSeq++
	ev := Event{Type: EventTypeFlush, Gen: s.gen, Date: s.date, TimerSeq: s.timerSeq}
	s.timer = e.clock.AfterFunc(e.cfg.Debounce, func() {
		e.queue.Enqueue(ev)
	})
}

// Flush persists pending edits now instead of waiting for the debounce
// timer. It requires a running loop and returns the flush outcome.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return attendance.ErrNoActiveDay
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
	result := make(chan error, 1)
	ev := Event{Type: EventTypeFlush, Gen: s.gen, Date: s.date, TimerSeq: s.timerSeq, Result: result}
	e.mu.Unlock()

	if !e.queue.Enqueue(ev) {
		return errors.New("engine: stopped")
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush writes the full snapshot of the active buffer as one batch.
// Called only from the Run goroutine.
func (e *Engine) flush(ctx context.Context, ev Event) error {
	e.mu.Lock()
	s := e.session
	if s == nil || s.gen != ev.Gen || s.timerSeq != ev.TimerSeq {
		e.mu.Unlock()
		e.logger.Debug("dropping stale flush", "date", ev.Date, "gen", ev.Gen, "timer_seq", ev.TimerSeq)
		return nil
	}
	s.timer = nil
	if !s.buffer.hasPending() {
		e.mu.Unlock()
		return nil
	}

	records, flushed := s.buffer.snapshot()
	now := e.clock.Now()
	batch := attendance.Batch{
		ID:   e.ids.Generate(),
		Date: s.date,
		Day: &attendance.Day{
			Date:       s.date,
			ClassLabel: e.cfg.ClassLabel,
			MarkedAt:   now,
			MarkedBy:   e.cfg.Operator.MarkedBy(),
		},
		Records: records,
		Writer:  e.writer,
	}
	e.state.set(StateSaving, s.date, now)
	e.mu.Unlock()

	res, err := e.store.Commit(ctx, batch)

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.session
	if cur == nil || cur.gen != s.gen {
		// The date changed while the batch was in flight. The write still
		// landed (or failed) for the old date; the new session is unaffected.
		e.logger.Info("flush finished after date change", "date", s.date, "batch_id", batch.ID, "error", err)
		return nil
	}

	if err != nil {
		ferr := attendance.NewFlushError(s.date, err)
		e.lastErr = ferr
		e.state.set(StateError, s.date, e.clock.Now())
		return ferr
	}

	s.buffer.confirm(flushed)
	if s.buffer.hasPending() {
		e.state.set(StateDirty, s.date, e.clock.Now())
	} else {
		e.state.set(StateSaved, s.date, e.clock.Now())
	}
	e.logger.Info("attendance saved",
		"date", s.date,
		"batch_id", batch.ID,
		"edits", len(flushed),
		"changed", res.Changed,
		"seq", res.LastSeq,
	)
	return nil
}
