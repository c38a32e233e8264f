package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/attendance"
)

func TestReadDay_Missing(t *testing.T) {
	s := createTestStore(t)
	day, err := s.ReadDay(context.Background(), testDate)
	require.NoError(t, err)
	assert.Nil(t, day)
}

func TestReadRecords_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	recs, err := s.ReadRecords(context.Background(), testDate)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestReadChanges_AfterSeqAndLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, roll := range []string{"A", "B", "C"} {
		_, err := s.Commit(ctx, attendance.Batch{Date: testDate, Records: []attendance.Record{testRecord(roll, attendance.StatusPresent, attendance.SourceCamera)}})
		require.NoError(t, err)
	}
	_, err := s.Commit(ctx, attendance.Batch{Date: "2025-01-16", Records: []attendance.Record{testRecord("A", attendance.StatusLate, attendance.SourceManual)}})
	require.NoError(t, err)

	all, err := s.ReadChanges(ctx, testDate, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	tail, err := s.ReadChanges(ctx, testDate, all[0].Seq, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "B", tail[0].RollNo)

	last, err := s.LastSeq(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, all[2].Seq, last)

	none, err := s.ReadChanges(ctx, "2030-01-01", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListDays(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, date := range []string{"2025-01-16", "2025-01-15"} {
		_, err := s.Commit(ctx, attendance.Batch{Date: date, Day: testDay(date), CreateOnly: true})
		require.NoError(t, err)
	}

	days, err := s.ListDays(ctx)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2025-01-15", days[0].Date)
	assert.Equal(t, "2025-01-16", days[1].Date)
}

func TestUnmarshalRecord_Invalid(t *testing.T) {
	_, err := unmarshalRecord("{")
	assert.Error(t, err)

	_, err = unmarshalRecord(`{"rollNo":"A","updatedAt":"yesterday"}`)
	assert.Error(t, err)
}
