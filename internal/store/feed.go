package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
)

// feedBatch bounds how many change rows one poll reads.
const feedBatch = 256

// subscription tails the changes table for one date.
type subscription struct {
	store *Store
	date  string
	out   chan attendance.Change

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe opens a change feed for date.
//
// The feed starts with one "added" change per stored record, taken from a
// consistent snapshot, and continues with every change logged after that
// snapshot. The subscription ends when Cancel is called, ctx is done, or a
// read fails; in the last case Err reports the failure.
func (s *Store) Subscribe(ctx context.Context, date string) (attendance.Subscription, error) {
	initial, lastSeq, err := s.snapshot(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", date, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		store:  s,
		date:   date,
		out:    make(chan attendance.Change),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(subCtx, initial, lastSeq)
	return sub, nil
}

func (s *Store) snapshot(ctx context.Context, date string) ([]attendance.Change, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	records, err := readRecords(ctx, tx, date)
	if err != nil {
		return nil, 0, err
	}
	var lastSeq int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM changes WHERE date = ?
	`, date).Scan(&lastSeq); err != nil {
		return nil, 0, fmt.Errorf("snapshot seq: %w", err)
	}

	rollNos := make([]string, 0, len(records))
	for rollNo := range records {
		rollNos = append(rollNos, rollNo)
	}
	sort.Strings(rollNos)

	initial := make([]attendance.Change, 0, len(records))
	for _, rollNo := range rollNos {
		r := records[rollNo]
		initial = append(initial, attendance.Change{
			Seq:    lastSeq,
			Date:   date,
			RollNo: rollNo,
			Kind:   attendance.ChangeAdded,
			Record: &r,
		})
	}
	return initial, lastSeq, nil
}

func (sub *subscription) run(ctx context.Context, initial []attendance.Change, lastSeq int64) {
	defer close(sub.done)
	defer close(sub.out)

	for _, c := range initial {
		if !sub.send(ctx, c) {
			return
		}
	}

	ticker := time.NewTicker(sub.store.feedPoll)
	defer ticker.Stop()

	for {
		// Grab the wake channel before reading so a commit landing between
		// the read and the wait is not missed.
		wake := sub.store.wakeChan()

		changes, err := readChanges(ctx, sub.store.db, sub.date, lastSeq, feedBatch)
		if err != nil {
			if ctx.Err() == nil {
				sub.setErr(err)
			}
			return
		}
		for _, c := range changes {
			if !sub.send(ctx, c) {
				return
			}
			lastSeq = c.Seq
		}
		if len(changes) == feedBatch {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (sub *subscription) send(ctx context.Context, c attendance.Change) bool {
	select {
	case sub.out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (sub *subscription) setErr(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.err = fmt.Errorf("change feed %s: %w", sub.date, err)
}

func (sub *subscription) Changes() <-chan attendance.Change {
	return sub.out
}

// Cancel stops the feed and waits for its goroutine to exit.
func (sub *subscription) Cancel() {
	sub.cancel()
	<-sub.done
}

func (sub *subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}
