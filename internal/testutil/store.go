package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/rollcall/internal/attendance"
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("injected store failure")

// MemStore is an in-memory record store with the same commit and feed
// semantics as the SQLite store, plus failure injection for tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemStore struct {
	mu      sync.Mutex
	days    map[string]attendance.Day
	records map[string]attendance.RecordMap
	changes []attendance.Change
	seq     int64
	subs    map[*memSub]struct{}

	failCommits   int
	failErr       error
	failSubscribe error
	beforeCommit  func(attendance.Batch)
	applied       []attendance.Batch
	attempts      int
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		days:    make(map[string]attendance.Day),
		records: make(map[string]attendance.RecordMap),
		subs:    make(map[*memSub]struct{}),
	}
}

// FailCommits makes the next n commits fail with err (ErrInjected if nil).
func (s *MemStore) FailCommits(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	s.failCommits = n
	s.failErr = err
}

// FailSubscribe makes every Subscribe call fail with err until cleared with nil.
func (s *MemStore) FailSubscribe(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSubscribe = err
}

// BeforeCommit installs a hook that runs before each commit is applied,
// without the store lock held. Tests use it to interleave a competing writer.
func (s *MemStore) BeforeCommit(fn func(attendance.Batch)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeCommit = fn
}

// BreakFeeds closes every open subscription with err.
func (s *MemStore) BreakFeeds(err error) {
	s.mu.Lock()
	subs := make([]*memSub, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*memSub]struct{})
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

// Applied returns the batches that were applied, in commit order.
func (s *MemStore) Applied() []attendance.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]attendance.Batch, len(s.applied))
	copy(out, s.applied)
	return out
}

// Attempts returns the number of Commit calls, failed ones included.
func (s *MemStore) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Changes returns the change log for date.
func (s *MemStore) Changes(date string) []attendance.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attendance.Change
	for _, c := range s.changes {
		if c.Date == date {
			out = append(out, c)
		}
	}
	return out
}

// Subscribers returns the number of open subscriptions.
func (s *MemStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *MemStore) ReadDay(ctx context.Context, date string) (*attendance.Day, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[date]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *MemStore) ReadRecords(ctx context.Context, date string) (attendance.RecordMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[date].Clone(), nil
}

func (s *MemStore) Commit(ctx context.Context, b attendance.Batch) (attendance.CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return attendance.CommitResult{}, err
	}

	s.mu.Lock()
	s.attempts++
	hook := s.beforeCommit
	if s.failCommits > 0 {
		s.failCommits--
		err := s.failErr
		s.mu.Unlock()
		return attendance.CommitResult{}, err
	}
	s.mu.Unlock()

	if hook != nil {
		hook(b)
	}

	for _, r := range b.Records {
		if err := r.Validate(); err != nil {
			return attendance.CommitResult{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, hasDay := s.days[b.Date]
	if b.CreateOnly && hasDay {
		return attendance.CommitResult{Applied: false, LastSeq: s.seq}, nil
	}

	if b.Day != nil {
		d := *b.Day
		if hasDay {
			d.CreatedAt = existing.CreatedAt
			d.SeedHash = existing.SeedHash
		} else if d.CreatedAt.IsZero() {
			d.CreatedAt = d.MarkedAt
		}
		s.days[b.Date] = d
	}

	recs := s.records[b.Date]
	if recs == nil {
		recs = make(attendance.RecordMap)
		s.records[b.Date] = recs
	}

	res := attendance.CommitResult{Applied: true}
	for _, r := range b.Records {
		prev, ok := recs[r.RollNo]
		if ok && prev.Equal(r) {
			continue
		}
		kind := attendance.ChangeAdded
		if ok {
			kind = attendance.ChangeModified
		}
		recs[r.RollNo] = r
		s.appendChangeLocked(b.Date, r.RollNo, kind, &r, b.Writer)
		res.Changed++
	}
	res.LastSeq = s.seq
	s.applied = append(s.applied, b)
	return res, nil
}

// DeleteRecord removes a record and emits a tombstone on the feed.
func (s *MemStore) DeleteRecord(ctx context.Context, date, rollNo, writer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.records[date]
	if _, ok := recs[rollNo]; !ok {
		return nil
	}
	delete(recs, rollNo)
	s.appendChangeLocked(date, rollNo, attendance.ChangeRemoved, nil, writer)
	return nil
}

func (s *MemStore) Subscribe(ctx context.Context, date string) (attendance.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSubscribe != nil {
		return nil, s.failSubscribe
	}

	sub := newMemSub(s, date)
	for _, r := range s.records[date] {
		r := r
		sub.push(attendance.Change{Seq: s.seq, Date: date, RollNo: r.RollNo, Kind: attendance.ChangeAdded, Record: &r})
	}
	s.subs[sub] = struct{}{}
	go sub.pump()
	return sub, nil
}

func (s *MemStore) appendChangeLocked(date, rollNo string, kind attendance.ChangeKind, r *attendance.Record, writer string) {
	s.seq++
	c := attendance.Change{Seq: s.seq, Date: date, RollNo: rollNo, Kind: kind, Writer: writer}
	if r != nil {
		cp := *r
		c.Record = &cp
	}
	s.changes = append(s.changes, c)
	for sub := range s.subs {
		if sub.date == date {
			sub.push(c)
		}
	}
}

func (s *MemStore) detach(sub *memSub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// memSub buffers changes without bound and pumps them into its channel.
type memSub struct {
	store *MemStore
	date  string
	out   chan attendance.Change

	mu      sync.Mutex
	pending []attendance.Change
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
	err     error
}

func newMemSub(s *MemStore, date string) *memSub {
	return &memSub{
		store:  s,
		date:   date,
		out:    make(chan attendance.Change),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (m *memSub) push(c attendance.Change) {
	m.mu.Lock()
	m.pending = append(m.pending, c)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *memSub) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			select {
			case <-m.signal:
				continue
			case <-m.done:
				return
			}
		}
		c := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		select {
		case m.out <- c:
		case <-m.done:
			return
		}
	}
}

func (m *memSub) Changes() <-chan attendance.Change {
	return m.out
}

func (m *memSub) Cancel() {
	m.once.Do(func() {
		m.store.detach(m)
		close(m.done)
	})
}

func (m *memSub) fail(err error) {
	m.once.Do(func() {
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		close(m.done)
	})
}

func (m *memSub) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
