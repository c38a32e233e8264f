package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Date        string
	ListPresent bool
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the attendance summary for a day",
		Long: `Print the plain-text attendance summary for a day from the store.

Example:
  rollcall report --date 2024-05-01
  rollcall report --date 2024-05-01 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "date to report (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&opts.ListPresent, "list-present", false, "also list present students")
	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	date, err := resolveDate(opts.Date, time.Now())
	if err != nil {
		return err
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	day, err := a.store.ReadDay(ctx, date)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read day", err)
	}
	if day == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("no attendance recorded for %s", date))
	}
	records, err := a.store.ReadRecords(ctx, date)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read records", err)
	}

	label := day.ClassLabel
	if label == "" {
		label = a.cfg.ClassLabel
	}
	rep := report.Build(date, label, a.roster, records)
	return a.out.Success(rep, report.Text(rep, report.Options{ListPresent: opts.ListPresent}))
}
