package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/detectorsim"
)

// DetectorSimOptions holds flags for the detector-sim command.
type DetectorSimOptions struct {
	*RootOptions
	Addr        string
	Script      string
	Interval    time.Duration
	FPS         float64
	Unavailable bool
}

// NewDetectorSimCommand creates the detector-sim command.
func NewDetectorSimCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DetectorSimOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "detector-sim",
		Short: "Serve a simulated camera detector",
		Long: `Serve the camera detector HTTP contract without a camera.

After start, the scripted roll numbers are recognized one per interval and
written to the store as present/camera-detected.

Example:
  rollcall detector-sim --addr :8000 --script 24CS002,24CS005 --interval 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetectorSim(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVar(&opts.Script, "script", "", "comma-separated roll numbers to recognize in order")
	cmd.Flags().DurationVar(&opts.Interval, "interval", detectorsim.DefaultInterval, "delay between recognitions")
	cmd.Flags().Float64Var(&opts.FPS, "fps", 15, "frame rate to report while running")
	cmd.Flags().BoolVar(&opts.Unavailable, "unavailable", false, "report the camera as unavailable")
	return cmd
}

func runDetectorSim(opts *DetectorSimOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var script []string
	for _, s := range strings.Split(opts.Script, ",") {
		if s = strings.TrimSpace(s); s != "" {
			if !a.roster.Contains(s) {
				return NewExitError(ExitCommandError, "script roll number not on the roster: "+s)
			}
			script = append(script, s)
		}
	}

	sim := detectorsim.New(a.store, detectorsim.Config{
		Roster:      a.roster,
		Script:      script,
		Interval:    opts.Interval,
		Unavailable: opts.Unavailable,
		FPS:         opts.FPS,
	}, detectorsim.WithLogger(a.logger))
	defer sim.Close()

	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      sim.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("detector simulator listening", "addr", opts.Addr, "script", len(script))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "detector simulator failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "detector simulator shutdown failed", err)
	}
	a.logger.Info("detector simulator stopped")
	return nil
}
