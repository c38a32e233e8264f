package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/detector"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/notify"
	"github.com/roach88/rollcall/internal/report"
)

// SessionOptions holds flags for the session command.
type SessionOptions struct {
	*RootOptions
	Date string
}

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

// NewSessionCommand creates the interactive session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open an interactive marking session",
		Long: `Open a day and mark attendance interactively.

Commands are read one per line from standard input:
  open <date|today>            switch the active day
  set <roll> <status> [od]     status is present|absent|late|od,
                               od is internal|external
  list [status] [query]        show records
  counts                       show counts
  pending                      show unsaved edits
  state                        show the save state
  flush                        save unsaved edits now
  report [present]             print the day summary
  camera status|start|stop     control the detector
  quit                         save and exit

Example:
  rollcall session --date 2024-05-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "day to open (YYYY-MM-DD, default today)")
	return cmd
}

func runSession(opts *SessionOptions, cmd *cobra.Command) error {
	date, err := resolveDate(opts.Date, time.Now())
	if err != nil {
		return err
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, err := a.newEngine()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = eng.Run(ctx)
	}()
	defer func() {
		eng.Close()
		<-runDone
	}()

	if nc := a.cfg.NotifyConfig(); nc.Enabled() {
		pub, err := notify.Connect(nc, a.cfg.ClassLabel, a.logger)
		if err != nil {
			a.logger.Warn("state notifications disabled", "broker", nc.Broker, "error", err)
		} else {
			ch, unsubscribe := eng.SubscribeState(engine.DefaultObserverBuffer)
			defer pub.Close()
			defer unsubscribe()
			go pub.Run(ctx, ch)
		}
	}

	sh := &shell{
		eng: eng,
		out: cmd.OutOrStdout(),
		now: time.Now,
	}

	if a.cfg.Detector.URL != "" {
		client, err := detector.NewClient(a.cfg.Detector.URL, a.cfg.Detector.Timeout)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid detector url", err)
		}
		sh.poller = detector.NewPoller(client, a.cfg.PollerConfig(), nil, a.logger)
		go func() { _ = sh.poller.Run(ctx) }()
	}

	if err := sh.exec(ctx, "open "+date); err != nil {
		return WrapExitError(ExitFailure, "failed to open day", err)
	}

	err = sh.loop(ctx, cmd.InOrStdin())

	if ferr := eng.Flush(ctx); ferr != nil && !errors.Is(ferr, attendance.ErrNoActiveDay) {
		return WrapExitError(ExitFailure, "unsaved edits could not be saved", ferr)
	}
	return err
}

// shell interprets session commands against an engine.
type shell struct {
	eng    *engine.Engine
	poller *detector.Poller
	out    io.Writer
	now    func() time.Time
}

// loop reads commands until EOF or quit. Command errors are printed and
// do not end the session.
func (s *shell) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		err := s.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "open":
		return s.open(ctx, args)
	case "set":
		return s.set(args)
	case "list", "ls":
		return s.list(args)
	case "counts":
		return s.counts()
	case "pending":
		s.pending()
		return nil
	case "state":
		s.state()
		return nil
	case "flush", "save":
		if err := s.eng.Flush(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "saved")
		return nil
	case "report":
		return s.report(args)
	case "camera":
		return s.camera(ctx, args)
	case "help", "?":
		fmt.Fprintln(s.out, "commands: open set list counts pending state flush report camera quit")
		return nil
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (s *shell) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: open <date|today>")
	}
	date, err := resolveDate(args[0], s.now())
	if err != nil {
		return err
	}
	if err := s.eng.Open(ctx, date); err != nil {
		// The day is active with defaults or without live updates.
		if !attendance.IsInitError(err) && !attendance.IsSubscriptionError(err) {
			return err
		}
		fmt.Fprintf(s.out, "warning: %v\n", err)
	}
	c := s.eng.Counts()
	fmt.Fprintf(s.out, "%s %s: %d students, %d present, %d absent\n",
		s.eng.ClassLabel(), date, c.Total, c.Present, c.Absent)
	return nil
}

func (s *shell) set(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: set <roll> <present|absent|late|od> [internal|external]")
	}
	status := attendance.Status(strings.ToLower(args[1]))
	var od attendance.ODType
	if len(args) == 3 {
		od = attendance.ODType(strings.ToLower(args[2]))
	}
	if err := s.eng.SetStatus(args[0], status, od); err != nil {
		return err
	}
	if r, ok := s.eng.Record(args[0]); ok {
		fmt.Fprintf(s.out, "%s %s -> %s\n", r.RollNo, r.Name, r.Label())
	}
	return nil
}

func (s *shell) list(args []string) error {
	var status attendance.Status
	var query string
	if len(args) > 0 {
		if st := attendance.Status(strings.ToLower(args[0])); st.Valid() {
			status, args = st, args[1:]
		}
	}
	query = strings.Join(args, " ")

	records := s.eng.Filter(status, query)
	if len(records) == 0 {
		fmt.Fprintln(s.out, "no matching records")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RollNo, r.Name, r.Label(), r.Source)
	}
	return tw.Flush()
}

func (s *shell) counts() error {
	if s.eng.Date() == "" {
		return attendance.ErrNoActiveDay
	}
	c := s.eng.Counts()
	fmt.Fprintf(s.out, "total %d  present %d  absent %d  late %d  od %d (internal %d, external %d)\n",
		c.Total, c.Present, c.Absent, c.Late, c.OD, c.ODInternal, c.ODExternal)
	return nil
}

func (s *shell) pending() {
	p := s.eng.Pending()
	if len(p) == 0 {
		fmt.Fprintln(s.out, "no unsaved edits")
		return
	}
	fmt.Fprintf(s.out, "unsaved: %s\n", strings.Join(p, ", "))
}

func (s *shell) state() {
	st := s.eng.State()
	if err := s.eng.LastError(); err != nil && st == engine.StateError {
		fmt.Fprintf(s.out, "%s: %v\n", st, err)
		return
	}
	fmt.Fprintln(s.out, st)
}

func (s *shell) report(args []string) error {
	date := s.eng.Date()
	if date == "" {
		return attendance.ErrNoActiveDay
	}
	opts := report.Options{ListPresent: len(args) > 0 && args[0] == "present"}
	rep := report.Build(date, s.eng.ClassLabel(), s.eng.Roster(), s.eng.RecordMap())
	_, err := fmt.Fprintln(s.out, report.Text(rep, opts))
	return err
}

func (s *shell) camera(ctx context.Context, args []string) error {
	if s.poller == nil {
		return errors.New("no detector configured")
	}
	if len(args) != 1 {
		return errors.New("usage: camera status|start|stop")
	}

	switch args[0] {
	case "status":
		snap := s.poller.Snapshot()
		if snap.Err != nil {
			fmt.Fprintf(s.out, "camera unavailable: %v\n", snap.Err)
			return nil
		}
		fmt.Fprintln(s.out, formatStatus(snap.Status))
		return nil
	case "start":
		date := s.eng.Date()
		if date == "" {
			return attendance.ErrNoActiveDay
		}
		res, err := s.poller.Start(ctx, date)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("camera refused to start: %s", res.Reason)
		}
		fmt.Fprintf(s.out, "camera scanning for %s\n", date)
		return nil
	case "stop":
		if err := s.poller.Stop(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "camera stopped")
		return nil
	default:
		return errors.New("usage: camera status|start|stop")
	}
}
