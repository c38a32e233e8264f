// Package detector talks to the camera presence detector.
//
// The detector is an independent service: it recognizes students and writes
// their records straight into the store. This package only drives its
// control surface (status, start, stop, live frame) and never blocks
// attendance editing; an unreachable detector is reported as unavailable.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
)

// DefaultTimeout bounds every detector request.
const DefaultTimeout = 5 * time.Second

// Detector states reported by GET /attendance/camera.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// Status is the detector's self-reported status.
type Status struct {
	State     string   `json:"state"`
	Detected  []string `json:"detected"`
	FPS       float64  `json:"fps"`
	Available bool     `json:"available"`
}

// Running reports whether the detector is scanning.
func (s Status) Running() bool {
	return s.State == StateRunning
}

// StartResult is the answer to a start command.
type StartResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Frame is one live camera image.
type Frame struct {
	Data        []byte
	ContentType string
}

// Client is an HTTP client for the detector contract.
type Client struct {
	base *url.URL
	http *http.Client
	now  func() time.Time
}

// NewClient creates a client for the detector at baseURL. A zero timeout
// means DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("detector url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("detector url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}, nil
}

// Status fetches GET /attendance/camera.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.doJSON(ctx, http.MethodGet, "/attendance/camera", nil, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Start asks the detector to scan for date. A refusal is not an error: it
// comes back as StartResult{OK: false, Reason: ...}.
func (c *Client) Start(ctx context.Context, date string) (StartResult, error) {
	var res StartResult
	body := map[string]string{"date": date}
	if err := c.doJSON(ctx, http.MethodPost, "/attendance/camera/start", body, &res); err != nil {
		return StartResult{}, err
	}
	if !res.OK && res.Reason == "" {
		res.Reason = "failed to start"
	}
	return res, nil
}

// Stop asks the detector to stop scanning.
func (c *Client) Stop(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/attendance/camera/stop", nil, nil)
}

// Frame fetches the current annotated frame. The query parameter defeats
// intermediate caches.
func (c *Client) Frame(ctx context.Context) (Frame, error) {
	q := url.Values{"t": {strconv.FormatInt(c.now().UnixMilli(), 10)}}
	resp, err := c.do(ctx, http.MethodGet, "/attendance/camera/frame?"+q.Encode(), nil)
	if err != nil {
		return Frame{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Frame{}, attendance.NewDetectorUnavailableError(fmt.Errorf("read frame: %w", err))
	}
	return Frame{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return attendance.NewDetectorUnavailableError(fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

// do sends a request and maps transport failures and non-2xx answers to
// DetectorUnavailable.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, attendance.NewDetectorUnavailableError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, attendance.NewDetectorUnavailableError(fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode))
	}
	return resp, nil
}
