package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/attendance"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(map[string]string{"date": "2024-05-01"}, "ignored in json mode")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"date": "2024-05-01"}, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Success(map[string]int{"present": 3}, "Day 2024-05-01 ready")
	require.NoError(t, err)
	assert.Equal(t, "Day 2024-05-01 ready\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"roll_no": "24CS999"}
	require.NoError(t, formatter.Error("UNKNOWN_STUDENT", "unknown student 24CS999", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_STUDENT", resp.Error.Code)
	assert.Equal(t, "unknown student 24CS999", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("READ_ONLY", "operator cannot create days", "2024-05-01"))
			assert.Contains(t, buf.String(), "Error [READ_ONLY]: operator cannot create days")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: 2024-05-01")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad config")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitErrorMessage(t *testing.T) {
	err := WrapExitError(ExitFailure, "save failed", errors.New("disk full"))
	assert.Equal(t, "save failed: disk full", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "disk full")
	assert.Equal(t, "no roster", NewExitError(ExitCommandError, "no roster").Error())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, string(attendance.ErrCodeUnknownStudent),
		ErrorCode(fmt.Errorf("set: %w", attendance.NewUnknownStudentError("24CS999"))))
	assert.Equal(t, string(attendance.ErrCodeReadOnly), ErrorCode(attendance.ErrReadOnly))
	assert.Equal(t, "E_FAILED", ErrorCode(errors.New("boom")))
}
