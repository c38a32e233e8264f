package attendance

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/canon"
	"github.com/roach88/rollcall/internal/roster"
)

var class = roster.MustNew(
	roster.Student{RollNo: "A", Name: "Ann"},
	roster.Student{RollNo: "B", Name: "Ben"},
)

func TestRecordValidate_ODTypeRequiresOD(t *testing.T) {
	r := Record{RollNo: "A", Status: StatusPresent, ODType: ODInternal, Source: SourceManual}
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeInvalidRecord))

	r.Status = StatusOD
	assert.NoError(t, r.Validate())

	r.ODType = ODNone
	assert.NoError(t, r.Validate(), "plain OD without a type is allowed")
}

func TestRecordValidate_UnknownValues(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"empty roll", Record{Status: StatusAbsent, Source: SourceManual}},
		{"status", Record{RollNo: "A", Status: "gone", Source: SourceManual}},
		{"od type", Record{RollNo: "A", Status: StatusOD, ODType: "remote", Source: SourceManual}},
		{"source", Record{RollNo: "A", Status: StatusAbsent, Source: "robot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, HasCode(tt.rec.Validate(), ErrCodeInvalidRecord))
		})
	}
}

func TestEditValidate(t *testing.T) {
	assert.NoError(t, Edit{RollNo: "A", Status: StatusOD, ODType: ODExternal}.Validate())
	assert.Error(t, Edit{RollNo: "A", Status: StatusLate, ODType: ODExternal}.Validate())
}

func TestRecordDocument_NullODType(t *testing.T) {
	r := DefaultRecord(roster.Student{RollNo: "A", Name: "Ann"}, "2025-01-15")
	data, err := canon.Marshal(r.Document())
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"Ann","odType":null,"rollNo":"A","source":"auto-init","status":"absent","updatedAt":"2025-01-15T00:00:00Z"}`,
		string(data))
}

func TestRecordLabel(t *testing.T) {
	assert.Equal(t, "Present", Record{Status: StatusPresent}.Label())
	assert.Equal(t, "Int OD", Record{Status: StatusOD, ODType: ODInternal}.Label())
	assert.Equal(t, "Ext OD", Record{Status: StatusOD, ODType: ODExternal}.Label())
	assert.Equal(t, "OD", Record{Status: StatusOD}.Label())
}

func TestRecordEqual(t *testing.T) {
	a := Record{RollNo: "A", Status: StatusPresent, Source: SourceManual, UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := a
	b.UpdatedAt = a.UpdatedAt.In(time.FixedZone("IST", 19800))
	assert.True(t, a.Equal(b))

	b.Status = StatusLate
	assert.False(t, a.Equal(b))
}

func TestDefaults_AreDeterministic(t *testing.T) {
	d1, err := DefaultDay(class, "2025-01-15", "24CS")
	require.NoError(t, err)
	d2, err := DefaultDay(class, "2025-01-15", "24CS")
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	assert.Equal(t, MarkedByAutoInit, d1.MarkedBy)
	assert.Equal(t, DayStart("2025-01-15"), d1.CreatedAt)
	assert.Equal(t, d1.CreatedAt, d1.MarkedAt)
	assert.Len(t, d1.SeedHash, 64)

	recs := DefaultRecords(class, "2025-01-15")
	require.Len(t, recs, 2)
	assert.Equal(t, StatusAbsent, recs["B"].Status)
	assert.Equal(t, SourceAutoInit, recs["B"].Source)
}

func TestSeedHash_ChangesWithRoster(t *testing.T) {
	h1, err := SeedHash(class, "2025-01-15", "24CS")
	require.NoError(t, err)

	bigger := roster.MustNew(append(class.Students(), roster.Student{RollNo: "C", Name: "Cat"})...)
	h2, err := SeedHash(bigger, "2025-01-15", "24CS")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	h3, err := SeedHash(class, "2025-01-16", "24CS")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestResetRecord_IsManual(t *testing.T) {
	r := ResetRecord(roster.Student{RollNo: "A", Name: "Ann"}, "2025-01-15")
	assert.Equal(t, StatusAbsent, r.Status)
	assert.Equal(t, SourceManual, r.Source)
}

func TestChangeTombstone(t *testing.T) {
	assert.True(t, Change{Kind: ChangeRemoved}.Tombstone())
	assert.True(t, Change{Kind: ChangeModified}.Tombstone(), "nil record is a tombstone")
	assert.False(t, Change{Kind: ChangeAdded, Record: &Record{}}.Tombstone())
}

func TestError_FormatAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewFlushError("2025-01-15", cause)

	assert.Equal(t, "FLUSH_FAILED: attendance flush failed (date=2025-01-15): disk full", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("flush: %w", err)
	assert.True(t, IsFlushError(wrapped))
	assert.False(t, IsInitError(wrapped))
}

func TestError_Helpers(t *testing.T) {
	assert.True(t, IsInitError(NewInitError("2025-01-15", errors.New("x"))))
	assert.True(t, IsDetectorUnavailable(NewDetectorUnavailableError(errors.New("x"))))
	assert.True(t, HasCode(NewUnknownStudentError("Z"), ErrCodeUnknownStudent))
	assert.True(t, HasCode(ErrReadOnly, ErrCodeReadOnly))
	assert.True(t, HasCode(ErrNoActiveDay, ErrCodeNoActiveDay))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeReadOnly))

	assert.Equal(t, "UNKNOWN_STUDENT: roll number is not on the roster (roll_no=Z)", NewUnknownStudentError("Z").Error())
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("2025-01-15")
	assert.NoError(t, err)

	_, err = ParseDate("15/01/2025")
	assert.Error(t, err)
}

func TestFormatParseTime(t *testing.T) {
	ts := time.Date(2025, 1, 15, 9, 30, 0, 500, time.UTC)
	got, err := ParseTime(FormatTime(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))

	zero, err := ParseTime("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}
