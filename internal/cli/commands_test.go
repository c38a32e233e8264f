package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/detectorsim"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/testutil"
)

const testDate = "2024-05-01"

const classYAML = `students:
  - roll_no: 24CS001
    name: Asha
  - roll_no: 24CS002
    name: Bilal
  - roll_no: 24CS003
    name: Chen
`

// writeWorkspace writes a config, a roster and an empty database location
// into a temp dir and returns the config path.
func writeWorkspace(t *testing.T, admin bool) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `class_label: CSE-A
database: rollcall.db
roster: class.yaml
operator:
  id: ms-rao
  admin: ` + map[bool]string{true: "true", false: "false"}[admin] + `
sync:
  debounce: 50ms
  feed_poll: 20ms
log:
  level: error
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rollcall.yaml"), []byte(cfg), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "class.yaml"), []byte(classYAML), 0644))
	return filepath.Join(dir, "rollcall.yaml")
}

type cmdResult struct {
	out string
	err error
}

func execute(t *testing.T, stdin string, args ...string) cmdResult {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return cmdResult{out: out.String(), err: err}
}

func TestInitDayCreatesDefaults(t *testing.T) {
	cfg := writeWorkspace(t, true)

	res := execute(t, "", "-c", cfg, "init-day", "--date", testDate)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Day 2024-05-01 ready for CSE-A: 3 students, 0 present, 3 absent")

	res = execute(t, "", "-c", cfg, "--format", "json", "init-day", "--date", testDate)
	require.NoError(t, res.err)
	var resp struct {
		Status string        `json:"status"`
		Data   InitDayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, InitDayResult{Date: testDate, ClassLabel: "CSE-A", Students: 3, Absent: 3, Stored: true}, resp.Data)
}

func TestInitDayReadOnlyOperator(t *testing.T) {
	cfg := writeWorkspace(t, false)

	res := execute(t, "", "-c", cfg, "init-day", "--date", testDate)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Day 2024-05-01 not created: operator is read-only (3 students default to absent)")

	res = execute(t, "set 24CS001 late\n", "-c", cfg, "session", "--date", testDate)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "error: READ_ONLY")

	res = execute(t, "", "-c", cfg, "report", "--date", testDate)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "no attendance recorded for 2024-05-01")
}

func TestInitDayInvalidDate(t *testing.T) {
	cfg := writeWorkspace(t, true)

	res := execute(t, "", "-c", cfg, "init-day", "--date", "05/01/2024")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
}

func TestDetectAndReport(t *testing.T) {
	cfg := writeWorkspace(t, true)
	require.NoError(t, execute(t, "", "-c", cfg, "init-day", "--date", testDate).err)

	res := execute(t, "", "-c", cfg, "detect", "--date", testDate, "24CS002", "24CS003")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Recorded 2 students as present for 2024-05-01")

	res = execute(t, "", "-c", cfg, "report", "--date", testDate, "--list-present")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "CSE-A")
	assert.Contains(t, res.out, "Bilal")

	res = execute(t, "", "-c", cfg, "--format", "json", "report", "--date", testDate)
	require.NoError(t, res.err)
	var resp struct {
		Data struct {
			Counts attendance.Counts `json:"counts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.out), &resp))
	assert.Equal(t, 3, resp.Data.Counts.Total)
	assert.Equal(t, 2, resp.Data.Counts.Present)
	assert.Equal(t, 1, resp.Data.Counts.Absent)
}

func TestDetectUnknownStudent(t *testing.T) {
	cfg := writeWorkspace(t, true)

	res := execute(t, "", "-c", cfg, "detect", "--date", testDate, "24CS999")
	require.Error(t, res.err)
	assert.Contains(t, res.out, "Error [UNKNOWN_STUDENT]")
}

func TestSessionMarksAndSaves(t *testing.T) {
	cfg := writeWorkspace(t, true)

	script := strings.Join([]string{
		"set 24CS001 late",
		"set 24CS003 od internal",
		"pending",
		"flush",
		"state",
		"list late",
		"set 24CS999 present",
		"bogus",
		"quit",
	}, "\n")
	res := execute(t, script, "-c", cfg, "session", "--date", testDate)
	require.NoError(t, res.err)

	assert.Contains(t, res.out, "CSE-A 2024-05-01: 3 students, 0 present, 3 absent")
	assert.Contains(t, res.out, "24CS001 Asha -> Late")
	assert.Contains(t, res.out, "24CS003 Chen -> Int OD")
	assert.Contains(t, res.out, "unsaved: 24CS001, 24CS003")
	assert.Contains(t, res.out, "saved\n")
	assert.Contains(t, res.out, "error: UNKNOWN_STUDENT")
	assert.Contains(t, res.out, `unknown command "bogus"`)

	res = execute(t, "", "-c", cfg, "report", "--date", testDate)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Late: 1 (33%)")
	assert.Contains(t, res.out, "Internal OD:")
}

func TestSessionSavesOnEOF(t *testing.T) {
	cfg := writeWorkspace(t, true)

	res := execute(t, "set 24CS002 present\n", "-c", cfg, "session", "--date", testDate)
	require.NoError(t, res.err)

	res = execute(t, "", "-c", cfg, "--format", "json", "report", "--date", testDate)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, `"present":1`)
}

func TestMissingRoster(t *testing.T) {
	res := execute(t, "", "--class", "CSE-A", "--db", filepath.Join(t.TempDir(), "x.db"), "report")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), "no roster configured")
}

func TestFlagOverridesConfig(t *testing.T) {
	cfg := writeWorkspace(t, true)
	db := filepath.Join(t.TempDir(), "other.db")

	res := execute(t, "", "-c", cfg, "--db", db, "--class", "CSE-B", "init-day", "--date", testDate)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "ready for CSE-B")
	_, err := os.Stat(db)
	assert.NoError(t, err)
}

func TestDetectorSimRejectsOffRosterScript(t *testing.T) {
	cfg := writeWorkspace(t, true)

	res := execute(t, "", "-c", cfg, "detector-sim", "--script", "24CS001,24CS404")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), "24CS404")
}

func TestCameraCommands(t *testing.T) {
	class := roster.MustNew(roster.Student{RollNo: "24CS001", Name: "Asha"})
	sim := detectorsim.New(testutil.NewMemStore(), detectorsim.Config{Roster: class, Interval: time.Hour})
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(func() {
		srv.Close()
		sim.Close()
	})

	res := execute(t, "", "camera", "status", "--url", srv.URL)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "State: idle")

	res = execute(t, "", "camera", "start", "--url", srv.URL, "--date", testDate)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Camera scanning for 2024-05-01")

	res = execute(t, "", "camera", "start", "--url", srv.URL, "--date", testDate)
	require.Error(t, res.err)
	assert.Contains(t, res.out, "already running")

	res = execute(t, "", "camera", "stop", "--url", srv.URL)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Camera stopped")
}

func TestCameraUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	res := execute(t, "", "--format", "json", "camera", "status", "--url", url)
	require.Error(t, res.err)
	assert.Contains(t, res.out, string(attendance.ErrCodeDetectorUnavailable))
}

func newShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	return newShellOn(t, testutil.NewMemStore())
}

func newShellOn(t *testing.T, st *testutil.MemStore) (*shell, *bytes.Buffer) {
	t.Helper()
	class := roster.MustNew(
		roster.Student{RollNo: "S1", Name: "Asha"},
		roster.Student{RollNo: "S2", Name: "Bilal"},
	)
	eng, err := engine.New(st, engine.Config{
		ClassLabel: "CSE-A",
		Roster:     class,
		Operator:   engine.Operator{ID: "ms-rao", Admin: true},
	}, engine.WithClock(testutil.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		eng.Close()
		cancel()
		<-done
	})

	out := &bytes.Buffer{}
	return &shell{eng: eng, out: out, now: func() time.Time { return time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC) }}, out
}

func TestShellBeforeOpen(t *testing.T) {
	sh, _ := newShell(t)
	ctx := context.Background()

	err := sh.exec(ctx, "set S1 late")
	assert.True(t, attendance.HasCode(err, attendance.ErrCodeNoActiveDay))
	assert.True(t, attendance.HasCode(sh.exec(ctx, "counts"), attendance.ErrCodeNoActiveDay))
	assert.True(t, attendance.HasCode(sh.exec(ctx, "report"), attendance.ErrCodeNoActiveDay))
	assert.EqualError(t, sh.exec(ctx, "camera status"), "no detector configured")
}

func TestShellCommands(t *testing.T) {
	sh, out := newShell(t)
	ctx := context.Background()

	require.NoError(t, sh.exec(ctx, "open today"))
	assert.Contains(t, out.String(), "CSE-A 2024-05-02: 2 students")
	assert.Equal(t, "2024-05-02", sh.eng.Date())

	require.NoError(t, sh.exec(ctx, "set S2 OD external"))
	r, ok := sh.eng.Record("S2")
	require.True(t, ok)
	assert.Equal(t, attendance.StatusOD, r.Status)
	assert.Equal(t, attendance.ODExternal, r.ODType)

	out.Reset()
	require.NoError(t, sh.exec(ctx, "list od"))
	assert.Contains(t, out.String(), "Bilal")
	assert.NotContains(t, out.String(), "Asha")

	out.Reset()
	require.NoError(t, sh.exec(ctx, "list present nobody"))
	assert.Equal(t, "no matching records\n", out.String())

	out.Reset()
	require.NoError(t, sh.exec(ctx, "counts"))
	assert.Contains(t, out.String(), "od 1 (internal 0, external 1)")

	out.Reset()
	require.NoError(t, sh.exec(ctx, "state"))
	assert.Equal(t, "dirty\n", out.String())

	require.Error(t, sh.exec(ctx, "set S1 late external"))
	require.Error(t, sh.exec(ctx, "set S1"))
	require.Error(t, sh.exec(ctx, "open"))
	require.NoError(t, sh.exec(ctx, "  "))
	assert.ErrorIs(t, sh.exec(ctx, "quit"), errQuit)
}

func TestShellLoopStopsOnQuit(t *testing.T) {
	sh, out := newShell(t)

	err := sh.loop(context.Background(), strings.NewReader("help\nquit\nopen today\n"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "commands:")
	assert.Empty(t, sh.eng.Date())
}

func TestResolveDate(t *testing.T) {
	now := time.Date(2024, 5, 3, 23, 0, 0, 0, time.UTC)

	d, err := resolveDate("", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-03", d)

	d, err = resolveDate("2024-02-29", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d)

	_, err = resolveDate("2024-02-30", now)
	require.Error(t, err)
}

func TestShellOpenKeepsGoingWhenFeedFails(t *testing.T) {
	st := testutil.NewMemStore()
	st.FailSubscribe(errors.New("feed offline"))
	sh, out := newShellOn(t, st)
	ctx := context.Background()

	require.NoError(t, sh.exec(ctx, "open 2024-05-01"))
	assert.Contains(t, out.String(), "warning: SUBSCRIPTION_FAILED")
	assert.Contains(t, out.String(), "CSE-A 2024-05-01: 2 students, 0 present, 2 absent")
	assert.Equal(t, "2024-05-01", sh.eng.Date())

	require.NoError(t, sh.exec(ctx, "set S1 late"))
	require.NoError(t, sh.exec(ctx, "flush"))
	recs, err := st.ReadRecords(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusLate, recs["S1"].Status)
}

func TestShellOpenKeepsGoingWhenInitFails(t *testing.T) {
	st := testutil.NewMemStore()
	st.FailCommits(1, nil)
	sh, out := newShellOn(t, st)
	ctx := context.Background()

	require.NoError(t, sh.exec(ctx, "open 2024-05-01"))
	assert.Contains(t, out.String(), "warning: INIT_FAILED")
	assert.Equal(t, "2024-05-01", sh.eng.Date())
	require.NoError(t, sh.exec(ctx, "set S2 present"))

	require.Error(t, sh.exec(ctx, "open 2024-13-40"))
	assert.Equal(t, "2024-05-01", sh.eng.Date())
}
