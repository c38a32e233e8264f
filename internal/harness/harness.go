package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/detectorsim"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/report"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/store"
	"github.com/roach88/rollcall/internal/testutil"
)

// Writer is the writer id of the engine under test.
const Writer = "operator"

// Epoch is the fake clock's starting time.
var Epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// AwaitTimeout bounds how long a step waits for the engine to settle.
var AwaitTimeout = 5 * time.Second

const (
	feedPoll     = 10 * time.Millisecond
	pollInterval = 2 * time.Millisecond
)

// Harness runs one scenario against a real engine on an in-memory store.
type Harness struct {
	store    *faultStore
	engine   *engine.Engine
	detector *detectorsim.Server
	clock    *testutil.FakeClock
	roster   *roster.Roster
	logger   *slog.Logger
	date     string
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sends engine and store logs to l instead of discarding them.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a fake clock and
// sequential batch ids, so runs are reproducible. A step that fails stops
// the scenario; assertions are still evaluated against where it stopped.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	rc := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&rc)
	}

	r, err := roster.New(scenario.Roster)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}

	st, err := store.Open(":memory:", store.WithFeedPoll(feedPoll))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	fs := newFaultStore(st)

	cfg, err := engineConfig(scenario, r)
	if err != nil {
		return nil, err
	}

	clk := testutil.NewFakeClock(Epoch)
	eng, err := engine.New(fs, cfg,
		engine.WithClock(clk),
		engine.WithIDGenerator(testutil.NewSequentialIDs("batch")),
		engine.WithLogger(rc.logger),
		engine.WithWriterID(Writer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		store:  fs,
		engine: eng,
		detector: detectorsim.New(fs, detectorsim.Config{Roster: r},
			detectorsim.WithClock(clk), detectorsim.WithLogger(rc.logger)),
		clock:  clk,
		roster: r,
		logger: rc.logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(ctx) }()

	transitions, _ := eng.SubscribeState(1024)
	traceDone := make(chan []TraceEvent, 1)
	go func() {
		var trace []TraceEvent
		for t := range transitions {
			trace = append(trace, TraceEvent{Date: t.Date, From: string(t.From), To: string(t.To)})
		}
		traceDone <- trace
	}()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Kind(), err))
			break
		}
		h.logger.Debug("scenario step completed", "scenario", scenario.Name, "step", i, "kind", step.Kind())
	}

	if h.date != "" {
		recs, err := st.ReadRecords(ctx, h.date)
		if err != nil {
			return nil, fmt.Errorf("failed to read records: %w", err)
		}
		result.Records = recs
		result.Report = report.Text(report.Build(h.date, cfg.ClassLabel, r, recs), report.Options{})
	}

	actx := &AssertionContext{Ctx: ctx, Harness: h, Result: result}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	eng.Close()
	<-runDone
	result.Trace = <-traceDone
	if result.Trace == nil {
		result.Trace = []TraceEvent{}
	}
	return result, nil
}

func engineConfig(s *Scenario, r *roster.Roster) (engine.Config, error) {
	policy, err := engine.ParseConflictPolicy(s.ConflictPolicy)
	if err != nil {
		return engine.Config{}, err
	}
	cfg := engine.Config{
		ClassLabel: s.ClassLabel,
		Roster:     r,
		Operator:   engine.Operator{ID: "operator", Admin: true},
		Debounce:   engine.DefaultDebounce,
		Policy:     policy,
	}
	if s.Operator != nil {
		cfg.Operator = engine.Operator{ID: s.Operator.ID, Admin: s.Operator.Admin}
	}
	if s.Debounce != "" {
		d, err := time.ParseDuration(s.Debounce)
		if err != nil {
			return engine.Config{}, fmt.Errorf("debounce: %w", err)
		}
		cfg.Debounce = d
	}
	return cfg, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch step.Kind() {
	case StepOpen:
		err := h.engine.Open(ctx, step.Open)
		h.date = step.Open
		return expectError(step.ExpectError, err)

	case StepSet:
		err := h.engine.SetStatus(step.Set.RollNo, attendance.Status(step.Set.Status), attendance.ODType(step.Set.ODType))
		return expectError(step.ExpectError, err)

	case StepAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil

	case StepFlush:
		return expectError(step.ExpectError, h.engine.Flush(ctx))

	case StepDetect:
		if err := h.requireDate(); err != nil {
			return err
		}
		if err := h.detector.Detect(ctx, h.date, step.Detect); err != nil {
			return err
		}
		return h.awaitRemote(ctx, step.Detect)

	case StepRemove:
		if err := h.requireDate(); err != nil {
			return err
		}
		if err := h.store.DeleteRecord(ctx, h.date, step.Remove, detectorsim.Writer); err != nil {
			return err
		}
		return h.awaitRemote(ctx, step.Remove)

	case StepFailCommits:
		h.store.failCommits(step.FailCommits)
		return nil

	case StepAwait:
		want := engine.SaveState(step.Await)
		return h.await(func() bool { return h.engine.State() == want },
			func() string { return fmt.Sprintf("save state %s, still %s", want, h.engine.State()) })

	default:
		return errors.New("step has no action")
	}
}

func (h *Harness) requireDate() error {
	if h.date == "" {
		return errors.New("no date opened yet")
	}
	return nil
}

// awaitRemote waits until the engine shows the stored value of rollNo, or
// keeps a pending edit on top of it.
func (h *Harness) awaitRemote(ctx context.Context, rollNo string) error {
	recs, err := h.store.ReadRecords(ctx, h.date)
	if err != nil {
		return err
	}
	want, ok := recs[rollNo]
	if !ok {
		s, _ := h.roster.Lookup(rollNo)
		want = attendance.ResetRecord(s, h.date)
	}
	return h.await(func() bool {
		if slices.Contains(h.engine.Pending(), rollNo) {
			return true
		}
		got, ok := h.engine.Record(rollNo)
		return ok && got.Equal(want)
	}, func() string { return fmt.Sprintf("feed to deliver %s", rollNo) })
}

// await polls cond until it holds or AwaitTimeout passes.
func (h *Harness) await(cond func() bool, what func() string) error {
	deadline := time.Now().Add(AwaitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s", what())
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// expectError matches err against an expected error code. An empty code
// expects success.
func expectError(code string, err error) error {
	if code == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("expected error %s, got success", code)
	}
	if !attendance.HasCode(err, attendance.ErrorCode(code)) {
		return fmt.Errorf("expected error %s, got %v", code, err)
	}
	return nil
}
