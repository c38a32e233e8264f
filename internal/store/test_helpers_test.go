package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
)

const testDate = "2025-01-15"

// createTestStore creates a new store backed by a temp-dir database file.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testRecord creates a valid record with a fixed timestamp.
func testRecord(rollNo string, status attendance.Status, source attendance.Source) attendance.Record {
	return attendance.Record{
		RollNo:    rollNo,
		Name:      "Student " + rollNo,
		Status:    status,
		Source:    source,
		UpdatedAt: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

// testDay creates the day document an initializer would write.
func testDay(date string) *attendance.Day {
	start := attendance.DayStart(date)
	return &attendance.Day{
		Date:       date,
		ClassLabel: "24CS (Batch 2024)",
		CreatedAt:  start,
		MarkedAt:   start,
		MarkedBy:   attendance.MarkedByAutoInit,
		SeedHash:   "seed",
	}
}
