package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/clock"
	"github.com/roach88/rollcall/internal/roster"
)

// Store is the record store the engine reads, writes and subscribes to.
// Implemented by store.Store (SQLite) and testutil.MemStore.
type Store interface {
	ReadDay(ctx context.Context, date string) (*attendance.Day, error)
	ReadRecords(ctx context.Context, date string) (attendance.RecordMap, error)
	Commit(ctx context.Context, b attendance.Batch) (attendance.CommitResult, error)
	Subscribe(ctx context.Context, date string) (attendance.Subscription, error)
}

// DefaultDebounce is the quiet period after the last edit before a flush.
const DefaultDebounce = 1500 * time.Millisecond

// FallbackMarkedBy is written as markedBy when the operator has no id.
const FallbackMarkedBy = "admin"

// Operator identifies who drives the engine.
type Operator struct {
	ID    string
	Admin bool
}

// MarkedBy is the markedBy value written by this operator's flushes.
func (o Operator) MarkedBy() string {
	if o.ID == "" {
		return FallbackMarkedBy
	}
	return o.ID
}

// Config holds the per-class settings of an Engine.
type Config struct {
	ClassLabel string
	Roster     *roster.Roster
	Operator   Operator
	Debounce   time.Duration
	Policy     ConflictPolicy
}

// Engine synchronizes one operator's attendance edits for one active date
// with the record store.
//
// Thread-safety model:
//   - SetStatus and all readers: safe from any goroutine, never wait on I/O
//   - Open, Flush: safe from any goroutine, perform store I/O
//   - Run: must be called from exactly one goroutine
//
// Flushes and remote merges happen only in the Run loop.
type Engine struct {
	store  Store
	cfg    Config
	clock  clock.Clock
	ids    IDGenerator
	logger *slog.Logger
	writer string

	queue *eventQueue
	state *stateMachine
	seq   sequencer

	// openMu serializes Open calls; mu guards the session.
	openMu  sync.Mutex
	mu      sync.Mutex
	gen     uint64
	session *session
	lastErr error
}

// session is the context object of the active date. Everything that must
// stop when the date changes hangs off it.
type session struct {
	date     string
	gen      uint64
	buffer   *buffer
	timer    clock.Timer
	timerSeq uint64
	sub      attendance.Subscription
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for debounce timers and timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the batch id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWriterID sets the writer id stamped on change rows. Defaults to a
// fresh id from the generator.
func WithWriterID(id string) Option {
	return func(e *Engine) {
		e.writer = id
	}
}

// New creates an Engine. The roster in cfg is required.
func New(s Store, cfg Config, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.Roster == nil || cfg.Roster.Len() == 0 {
		return nil, errors.New("engine: roster is empty")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	policy, err := ParseConflictPolicy(string(cfg.Policy))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	cfg.Policy = policy

	e := &Engine{
		store:  s,
		cfg:    cfg,
		clock:  clock.New(),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		queue:  newEventQueue(),
		state:  newStateMachine(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.writer == "" {
		e.writer = e.ids.Generate()
	}
	e.logger = e.logger.With("writer", e.writer)
	return e, nil
}

// Open makes date the active day.
//
// The previous session, if any, is torn down first: its debounce timer is
// cancelled, its unflushed edits are dropped with a warning, and its
// subscription is detached before the new one is attached. Then the day is
// initialized (see EnsureDay) and a change feed subscription is opened.
// Reopening the active date keeps its unflushed edits and re-arms the timer.
//
// An initialization or subscription failure is returned, but the session is
// still activated with whatever could be loaded, so the operator can keep
// editing. Calling Open again for the same date retries.
func (e *Engine) Open(ctx context.Context, date string) error {
	if _, err := attendance.ParseDate(date); err != nil {
		return err
	}

	e.openMu.Lock()
	defer e.openMu.Unlock()

	old := e.detach(date)
	if old != nil {
		e.waitDetached(old)
	}

	records, initErr := e.EnsureDay(ctx, date)
	if initErr != nil {
		e.logger.Error("day initialization failed", "date", date, "error", initErr)
		e.setLastErr(initErr)
		e.state.set(StateIdle, date, e.clock.Now())
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub, subErr := e.store.Subscribe(subCtx, date)
	if subErr != nil {
		subErr = attendance.NewSubscriptionError(date, subErr)
		e.logger.Error("subscription failed", "date", date, "error", subErr)
		e.setLastErr(subErr)
	}

	e.mu.Lock()
	e.gen++
	s := &session{
		date:   date,
		gen:    e.gen,
		buffer: newBuffer(date, e.cfg.Roster, e.cfg.Policy, records),
		sub:    sub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if old != nil && old.date == date {
		s.buffer.carry(old.buffer)
		if s.buffer.hasPending() {
			e.state.set(StateDirty, date, e.clock.Now())
			e.armLocked(s)
		}
	}
	e.session = s
	e.mu.Unlock()

	if sub != nil {
		go e.forward(s)
	} else {
		close(s.done)
	}

	e.logger.Info("day opened", "date", date, "students", e.cfg.Roster.Len())
	return errors.Join(initErr, subErr)
}

// detach removes the active session under the lock and returns it so the
// caller can wait for its forwarder. Unflushed edits are logged and dropped
// unless next is the same date, in which case Open carries them over.
func (e *Engine) detach(next string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.session
	e.session = nil
	e.gen++
	if old == nil || old.date != next || !old.buffer.hasPending() {
		e.state.set(StateIdle, next, e.clock.Now())
	}
	if old == nil {
		return nil
	}

	if old.timer != nil {
		old.timer.Stop()
		old.timer = nil
	}
	if old.date == next {
		return old
	}
	if dropped := old.buffer.pendingRollNos(); len(dropped) > 0 {
		e.logger.Warn("dropping unflushed edits",
			"date", old.date,
			"roll_nos", dropped,
		)
	}
	return old
}

func (e *Engine) waitDetached(s *session) {
	if s.sub != nil {
		s.sub.Cancel()
	}
	s.cancel()
	<-s.done
}

// SetStatus records an operator edit for the active date.
//
// The edit is visible to readers immediately, SaveState becomes dirty and
// the debounce timer is re-armed. Nothing here touches the store.
func (e *Engine) SetStatus(rollNo string, status attendance.Status, odType attendance.ODType) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.Operator.Admin {
		return attendance.ErrReadOnly
	}
	s := e.session
	if s == nil {
		return attendance.ErrNoActiveDay
	}
	if !e.cfg.Roster.Contains(rollNo) {
		return attendance.NewUnknownStudentError(rollNo)
	}
	edit := attendance.Edit{
		RollNo:     rollNo,
		Status:     status,
		ODType:     odType,
		OccurredAt: e.clock.Now(),
	}
	if err := edit.Validate(); err != nil {
		return err
	}

	s.buffer.set(edit, e.seq.next())
	e.state.set(StateDirty, s.date, edit.OccurredAt)
	e.armLocked(s)

	e.logger.Debug("status set",
		"date", s.date,
		"roll_no", rollNo,
		"status", status,
		"od_type", odType,
	)
	return nil
}

// Date returns the active date, or "" before the first Open.
func (e *Engine) Date() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.date
}

// Records returns the visible record of every roster member in roster order.
func (e *Engine) Records() []attendance.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.buffer.records()
}

// RecordMap returns the visible records keyed by roll number.
func (e *Engine) RecordMap() attendance.RecordMap {
	out := make(attendance.RecordMap)
	for _, r := range e.Records() {
		out[r.RollNo] = r
	}
	return out
}

// Record returns the visible record for one student.
func (e *Engine) Record(rollNo string) (attendance.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return attendance.Record{}, false
	}
	return e.session.buffer.record(rollNo)
}

// Counts tallies the visible records.
func (e *Engine) Counts() attendance.Counts {
	return attendance.CountsOf(e.Records())
}

// Filter returns visible records matching status (empty for all) and a
// name or roll number query.
func (e *Engine) Filter(status attendance.Status, query string) []attendance.Record {
	return attendance.Filter(e.Records(), status, query)
}

// Pending returns the roll numbers with unflushed edits.
func (e *Engine) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.buffer.pendingRollNos()
}

// State returns the current SaveState.
func (e *Engine) State() SaveState {
	return e.state.Current()
}

// SubscribeState registers a SaveState observer. Transitions are delivered
// on a channel with the given capacity; when it is full they are dropped.
// Call the returned func to unsubscribe.
func (e *Engine) SubscribeState(buffer int) (<-chan Transition, func()) {
	return e.state.subscribe(buffer)
}

// DroppedTransitions returns how many transitions slow observers missed.
func (e *Engine) DroppedTransitions() int {
	return e.state.Dropped()
}

// LastError returns the most recent initialization, flush or feed error.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Writer returns the writer id stamped on this engine's change rows.
func (e *Engine) Writer() string {
	return e.writer
}

// ClassLabel returns the configured class label.
func (e *Engine) ClassLabel() string {
	return e.cfg.ClassLabel
}

// Roster returns the configured roster.
func (e *Engine) Roster() *roster.Roster {
	return e.cfg.Roster
}

func (e *Engine) setLastErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Close() is called.
//
// ERROR HANDLING: a failed flush or feed is logged, recorded as LastError
// and reflected in SaveState; the loop keeps running. Nothing is retried
// automatically.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(e.logger, event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Close detaches the active session and stops the Run loop. Unflushed edits
// are dropped; call Flush first to keep them. Observers are closed first, so
// shutting down is not reported as a transition.
func (e *Engine) Close() {
	e.openMu.Lock()
	defer e.openMu.Unlock()

	e.state.closeAll()
	if old := e.detach(""); old != nil {
		e.waitDetached(old)
	}
	e.queue.Close()
}

// processEvent routes an event to its handler.
// Called only from the Run goroutine.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeFlush:
		err := e.flush(ctx, event)
		if event.Result != nil {
			event.Result <- err
		}
		return err

	case EventTypeRemote:
		e.applyRemote(event)
		return nil

	case EventTypeFeedFailed:
		return e.feedFailed(event)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func logEventError(logger *slog.Logger, event Event, err error) {
	logger.Error("event processing failed",
		"type", event.Type.String(),
		"date", event.Date,
		"gen", event.Gen,
		"error", err,
	)
}
