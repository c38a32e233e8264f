package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/report"
)

// InitDayOptions holds flags for the init-day command.
type InitDayOptions struct {
	*RootOptions
	Date string
}

// InitDayResult is the JSON payload of init-day.
type InitDayResult struct {
	Date       string `json:"date"`
	ClassLabel string `json:"classLabel"`
	Students   int    `json:"students"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
	Stored     bool   `json:"stored"`
}

// NewInitDayCommand creates the init-day command.
func NewInitDayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitDayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init-day",
		Short: "Create a day's default records if it does not exist yet",
		Long: `Create the day document and one absent record per student.

Initialization is create-only: if the day already exists, its records are
left untouched and reported as they are.

Example:
  rollcall init-day --date 2024-05-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitDay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "date to initialize (YYYY-MM-DD, default today)")
	return cmd
}

func runInitDay(opts *InitDayOptions, cmd *cobra.Command) error {
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

	records, err := eng.EnsureDay(cmd.Context(), date)
	if err != nil {
		_ = a.out.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "day initialization failed", err)
	}

	// A read-only operator gets defaults without a stored day.
	day, err := a.store.ReadDay(cmd.Context(), date)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read day", err)
	}

	rep := report.Build(date, a.cfg.ClassLabel, a.roster, records)
	res := InitDayResult{
		Date:       date,
		ClassLabel: a.cfg.ClassLabel,
		Students:   rep.Counts.Total,
		Present:    rep.Counts.Present,
		Absent:     rep.Counts.Absent,
		Stored:     day != nil,
	}
	if !res.Stored {
		return a.out.Success(res, fmt.Sprintf("Day %s not created: operator is read-only (%s default to absent)",
			date, plural(res.Students, "student")))
	}
	text := fmt.Sprintf("Day %s ready for %s: %s, %d present, %d absent",
		date, a.cfg.ClassLabel, plural(res.Students, "student"), res.Present, res.Absent)
	return a.out.Success(res, text)
}
