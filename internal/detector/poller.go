package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rollcall/internal/clock"
)

// Default poll intervals.
const (
	DefaultPollRunning   = 2 * time.Second
	DefaultPollIdle      = 15 * time.Second
	DefaultFrameInterval = 200 * time.Millisecond
)

// PollerConfig sets the poller intervals. Zero values take the defaults.
type PollerConfig struct {
	PollRunning   time.Duration
	PollIdle      time.Duration
	FrameInterval time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.PollRunning <= 0 {
		c.PollRunning = DefaultPollRunning
	}
	if c.PollIdle <= 0 {
		c.PollIdle = DefaultPollIdle
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	return c
}

// Snapshot is the latest view of the detector.
type Snapshot struct {
	Status      Status
	Available   bool
	Err         error
	CheckedAt   time.Time
	Polls       int
	Frame       Frame
	FrameAt     time.Time
	Frames      int
	FrameErrors int
}

// Poller keeps a Snapshot of the detector current. It polls status every
// PollRunning while the detector is scanning and every PollIdle otherwise,
// and while scanning refreshes the live frame every FrameInterval.
type Poller struct {
	client *Client
	cfg    PollerConfig
	clock  clock.Clock
	logger *slog.Logger

	refresh chan struct{}

	mu   sync.Mutex
	snap Snapshot
}

// NewPoller creates a poller. A nil clock means the system clock.
func NewPoller(c *Client, cfg PollerConfig, clk clock.Clock, logger *slog.Logger) *Poller {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:  c,
		cfg:     cfg.withDefaults(),
		clock:   clk,
		logger:  logger,
		refresh: make(chan struct{}, 1),
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	var frames *frameLoop
	defer func() { frames.stop() }()

	for {
		running := p.poll(ctx)

		switch {
		case running && frames == nil:
			frames = p.startFrames(ctx)
		case !running && frames != nil:
			frames.stop()
			frames = nil
		}

		interval := p.cfg.PollIdle
		if running {
			interval = p.cfg.PollRunning
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(interval):
		case <-p.refresh:
		}
	}
}

// frameLoop is a running frame refresher.
type frameLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *Poller) startFrames(ctx context.Context) *frameLoop {
	fctx, cancel := context.WithCancel(ctx)
	fl := &frameLoop{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(fl.done)
		p.frames(fctx)
	}()
	return fl
}

// stop cancels the refresher and waits for it. A nil loop is a no-op.
func (fl *frameLoop) stop() {
	if fl == nil {
		return
	}
	fl.cancel()
	<-fl.done
}

// poll fetches status once and reports whether the detector is running.
func (p *Poller) poll(ctx context.Context) bool {
	st, err := p.client.Status(ctx)
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap.Polls++
	p.snap.CheckedAt = now
	if err != nil {
		if ctx.Err() == nil && p.snap.Err == nil {
			p.logger.Warn("camera unavailable", "error", err)
		}
		p.snap.Available = false
		p.snap.Err = err
		p.snap.Status = Status{}
		return false
	}
	if p.snap.Err != nil {
		p.logger.Info("camera reachable again")
	}
	p.snap.Status = st
	p.snap.Available = st.Available
	p.snap.Err = nil
	return st.Running()
}

func (p *Poller) frames(ctx context.Context) {
	for {
		f, err := p.client.Frame(ctx)
		now := p.clock.Now()

		p.mu.Lock()
		if err != nil {
			if ctx.Err() == nil {
				p.snap.FrameErrors++
				p.logger.Debug("frame fetch failed", "error", err, "frame_errors", p.snap.FrameErrors)
			}
		} else {
			p.snap.Frame = f
			p.snap.FrameAt = now
			p.snap.Frames++
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.cfg.FrameInterval):
		}
	}
}

// Snapshot returns the latest detector view.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snap
	s.Status.Detected = append([]string(nil), p.snap.Status.Detected...)
	return s
}

// Refresh asks Run to poll now instead of waiting for the interval.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Start sends the start command and triggers an immediate status refresh.
func (p *Poller) Start(ctx context.Context, date string) (StartResult, error) {
	res, err := p.client.Start(ctx, date)
	if err != nil {
		return StartResult{}, err
	}
	if !res.OK {
		p.logger.Warn("camera refused to start", "date", date, "reason", res.Reason)
	} else {
		p.logger.Info("camera started", "date", date)
	}
	p.Refresh()
	return res, nil
}

// Stop sends the stop command and triggers an immediate status refresh.
func (p *Poller) Stop(ctx context.Context) error {
	if err := p.client.Stop(ctx); err != nil {
		return err
	}
	p.logger.Info("camera stopped")
	p.Refresh()
	return nil
}
