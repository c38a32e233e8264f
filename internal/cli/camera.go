package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/detector"
)

// CameraOptions holds flags for the camera commands.
type CameraOptions struct {
	*RootOptions
	URL  string
	Date string
}

// NewCameraCommand creates the camera command group.
func NewCameraCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CameraOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "camera",
		Short: "Control the camera presence detector",
		Long: `Query, start or stop the camera detector.

The detector URL comes from the config file (detector.url) or --url.

Example:
  rollcall camera status
  rollcall camera start --date 2024-05-01
  rollcall camera stop`,
	}
	cmd.PersistentFlags().StringVar(&opts.URL, "url", "", "detector base URL (overrides config)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show detector status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCamera(opts, cmd, cameraStatus)
		},
	}
	start := &cobra.Command{
		Use:   "start",
		Short: "Start scanning for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCamera(opts, cmd, cameraStart)
		},
	}
	start.Flags().StringVar(&opts.Date, "date", "", "date to scan for (YYYY-MM-DD, default today)")
	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop scanning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCamera(opts, cmd, cameraStop)
		},
	}

	cmd.AddCommand(status, start, stop)
	return cmd
}

type cameraAction func(ctx context.Context, c *detector.Client, opts *CameraOptions) (any, string, error)

func runCamera(opts *CameraOptions, cmd *cobra.Command, action cameraAction) error {
	out := newFormatter(opts.RootOptions, cmd)

	url := opts.URL
	timeout := detector.DefaultTimeout
	if url == "" {
		cfg, err := loadCameraConfig(opts.RootOptions)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		url, timeout = cfg.Detector.URL, cfg.Detector.Timeout
	}
	if url == "" {
		return NewExitError(ExitCommandError, "no detector configured (set detector.url or pass --url)")
	}

	client, err := detector.NewClient(url, timeout)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid detector url", err)
	}

	data, text, err := action(cmd.Context(), client, opts)
	if err != nil {
		_ = out.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "camera command failed", err)
	}
	return out.Success(data, text)
}

// loadCameraConfig reads the config without requiring a roster.
func loadCameraConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		if opts.ConfigPath == "" && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func cameraStatus(ctx context.Context, c *detector.Client, _ *CameraOptions) (any, string, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, "", err
	}
	return st, formatStatus(st), nil
}

func cameraStart(ctx context.Context, c *detector.Client, opts *CameraOptions) (any, string, error) {
	date, err := resolveDate(opts.Date, time.Now())
	if err != nil {
		return nil, "", err
	}
	res, err := c.Start(ctx, date)
	if err != nil {
		return nil, "", err
	}
	if !res.OK {
		return nil, "", fmt.Errorf("camera refused to start: %s", res.Reason)
	}
	return res, "Camera scanning for " + date, nil
}

func cameraStop(ctx context.Context, c *detector.Client, _ *CameraOptions) (any, string, error) {
	if err := c.Stop(ctx); err != nil {
		return nil, "", err
	}
	return map[string]bool{"ok": true}, "Camera stopped", nil
}

func formatStatus(st detector.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s", st.State)
	if !st.Available {
		b.WriteString(" (camera unavailable)")
	}
	if st.Running() {
		fmt.Fprintf(&b, "\nFPS: %.1f", st.FPS)
	}
	fmt.Fprintf(&b, "\nDetected: %d", len(st.Detected))
	if len(st.Detected) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(st.Detected, ", "))
	}
	return b.String()
}
