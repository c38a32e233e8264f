package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/store"
)

// app bundles what most commands need: config, logger, roster and store.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	roster *roster.Roster
	store  *store.Store
	out    *OutputFormatter
}

// loadConfig reads the config file named by --config, or rollcall.yaml when
// present, and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case opts.ConfigPath != "":
		c, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		c, err := config.Load(DefaultConfigPath)
		switch {
		case err == nil:
			cfg = c
		case errors.Is(err, fs.ErrNotExist):
			cfg = config.Default()
		default:
			return nil, err
		}
	}

	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.RosterPath != "" {
		cfg.Roster = opts.RosterPath
	}
	if opts.ClassLabel != "" {
		cfg.ClassLabel = opts.ClassLabel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Roster == "" {
		return nil, errors.New("no roster configured (set roster in the config file or pass --roster)")
	}
	return cfg, nil
}

// openApp loads config, roster and store. Failures are command errors.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger, err := config.NewLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log settings", err)
	}

	r, err := roster.Load(cfg.Roster)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load roster", err)
	}

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithFeedPoll(cfg.Sync.FeedPoll))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		roster: r,
		store:  st,
		out:    newFormatter(opts, cmd),
	}, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

// newEngine builds an engine from the config.
func (a *app) newEngine(opts ...engine.Option) (*engine.Engine, error) {
	opts = append([]engine.Option{engine.WithLogger(a.logger)}, opts...)
	return engine.New(a.store, engine.Config{
		ClassLabel: a.cfg.ClassLabel,
		Roster:     a.roster,
		Operator:   engine.Operator{ID: a.cfg.Operator.ID, Admin: a.cfg.Operator.Admin},
		Debounce:   a.cfg.Sync.Debounce,
		Policy:     a.cfg.Policy(),
	}, opts...)
}

// resolveDate validates date, defaulting to today in local time.
func resolveDate(date string, now time.Time) (string, error) {
	if date == "" || date == "today" {
		return now.Format(attendance.DateLayout), nil
	}
	if _, err := attendance.ParseDate(date); err != nil {
		return "", WrapExitError(ExitCommandError, "invalid date", err)
	}
	return date, nil
}

// discardLogger is used where log output would interleave with results.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
