// Package detectorsim is a stand-in for the camera detector service.
//
// It serves the detector HTTP contract and, while running, "recognizes" a
// scripted list of students one per interval, writing each straight into
// the record store the way the real detector does. It exists for local
// runs and tests; there is no image processing.
package detectorsim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/clock"
	"github.com/roach88/rollcall/internal/roster"
)

// Writer is the writer id stamped on records the simulator produces.
const Writer = "detector"

// DefaultInterval is the pause between scripted recognitions.
const DefaultInterval = time.Second

// Committer writes batches to the record store.
type Committer interface {
	Commit(ctx context.Context, b attendance.Batch) (attendance.CommitResult, error)
}

// Config configures the simulator.
type Config struct {
	Roster *roster.Roster
	// Script lists roll numbers recognized in order after Start.
	Script []string
	// Interval between scripted recognitions.
	Interval time.Duration
	// Unavailable makes Start refuse and status report available=false.
	Unavailable bool
	FPS         float64
}

// Server simulates the detector.
type Server struct {
	store  Committer
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
	router *mux.Router

	mu       sync.Mutex
	running  bool
	date     string
	detected []string
	cursor   int
	frames   int
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock driving the scan loop and record timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a simulator writing to store.
func New(store Committer, cfg Config, opts ...Option) *Server {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Server{
		store:  store,
		cfg:    cfg,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/attendance/camera", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/attendance/camera/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/attendance/camera/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/attendance/camera/frame", s.handleFrame).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP handler for the detector contract.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Detect records rollNo as present for date, as if the camera saw them.
func (s *Server) Detect(ctx context.Context, date, rollNo string) error {
	st, ok := s.cfg.Roster.Lookup(rollNo)
	if !ok {
		return attendance.NewUnknownStudentError(rollNo)
	}
	_, err := s.store.Commit(ctx, attendance.Batch{
		Date: date,
		Records: []attendance.Record{{
			RollNo:    st.RollNo,
			Name:      st.Name,
			Status:    attendance.StatusPresent,
			Source:    attendance.SourceCamera,
			UpdatedAt: s.clock.Now(),
		}},
		Writer: Writer,
	})
	if err != nil {
		return fmt.Errorf("detect %s: %w", rollNo, err)
	}

	s.mu.Lock()
	s.detected = append(s.detected, rollNo)
	s.mu.Unlock()

	s.logger.Info("student detected", "date", date, "roll_no", rollNo)
	return nil
}

// StartScan begins scanning for date. It returns a refusal reason when the
// camera is unavailable or already running.
func (s *Server) StartScan(date string) (bool, string) {
	if s.cfg.Unavailable {
		return false, "camera not available"
	}
	if _, err := attendance.ParseDate(date); err != nil {
		return false, err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false, "already running for " + s.date
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.date = date
	s.detected = nil
	s.cursor = 0
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.scan(ctx, date, s.done)

	s.logger.Info("scan started", "date", date, "script", len(s.cfg.Script))
	return true, ""
}

// StopScan stops scanning and waits for the scan loop to exit.
func (s *Server) StopScan() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scan stopped")
}

// Close stops any running scan.
func (s *Server) Close() {
	s.StopScan()
}

func (s *Server) scan(ctx context.Context, date string, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.Interval):
		}

		s.mu.Lock()
		if s.cursor >= len(s.cfg.Script) {
			s.mu.Unlock()
			continue
		}
		rollNo := s.cfg.Script[s.cursor]
		s.cursor++
		s.mu.Unlock()

		if err := s.Detect(ctx, date, rollNo); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scripted detection failed", "date", date, "roll_no", rollNo, "error", err)
		}
	}
}

type statusResponse struct {
	State     string   `json:"state"`
	Detected  []string `json:"detected"`
	FPS       float64  `json:"fps"`
	Available bool     `json:"available"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := statusResponse{
		State:     "idle",
		Detected:  append([]string{}, s.detected...),
		Available: !s.cfg.Unavailable,
	}
	if s.running {
		resp.State = "running"
		resp.FPS = s.cfg.FPS
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

type startRequest struct {
	Date string `json:"date"`
}

type startResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, startResponse{OK: false, Reason: "invalid request body"})
		return
	}
	ok, reason := s.StartScan(req.Date)
	writeJSON(w, http.StatusOK, startResponse{OK: ok, Reason: reason})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.StopScan()
	writeJSON(w, http.StatusOK, startResponse{OK: true})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.frames++
	n := s.frames
	running := s.running
	s.mu.Unlock()

	data, err := renderFrame(n, running)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// renderFrame draws a tiny frame whose shade changes with n, so consecutive
// frames differ.
func renderFrame(n int, running bool) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	shade := uint8(n * 16)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			c := shade
			if running && x == y {
				c = 255
			}
			img.SetGray(x, y, color.Gray{Y: c})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
