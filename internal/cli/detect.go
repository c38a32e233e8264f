package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/detectorsim"
)

// DetectOptions holds flags for the detect command.
type DetectOptions struct {
	*RootOptions
	Date string
}

// NewDetectCommand creates the detect command.
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DetectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "detect <roll-no>...",
		Short: "Record camera detections directly in the store",
		Long: `Write present/camera-detected records straight into the store, the way
the camera detector does. Open sessions pick them up from the change feed.

Example:
  rollcall detect --date 2024-05-01 24CS002 24CS007`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "date (YYYY-MM-DD, default today)")
	return cmd
}

func runDetect(opts *DetectOptions, rollNos []string, cmd *cobra.Command) error {
	date, err := resolveDate(opts.Date, time.Now())
	if err != nil {
		return err
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sim := detectorsim.New(a.store, detectorsim.Config{Roster: a.roster}, detectorsim.WithLogger(a.logger))
	for _, rollNo := range rollNos {
		if err := sim.Detect(cmd.Context(), date, rollNo); err != nil {
			_ = a.out.Error(ErrorCode(err), err.Error(), map[string]string{"roll_no": rollNo})
			return WrapExitError(ExitFailure, "detection failed", err)
		}
	}

	return a.out.Success(map[string]any{"date": date, "detected": rollNos},
		fmt.Sprintf("Recorded %s as present for %s", plural(len(rollNos), "student"), date))
}
