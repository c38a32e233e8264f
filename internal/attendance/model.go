package attendance

import (
	"fmt"
	"time"

	"github.com/roach88/rollcall/internal/canon"
)

// DateLayout is the ISO-8601 calendar date layout used for day keys.
const DateLayout = "2006-01-02"

// Status is a student's attendance status for a day.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusOD      Status = "od"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusOD}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusOD:
		return true
	}
	return false
}

// ODType qualifies an on-duty status. The zero value means "no type".
type ODType string

const (
	ODNone     ODType = ""
	ODInternal ODType = "internal"
	ODExternal ODType = "external"
)

// Valid reports whether t is a known on-duty type (including none).
func (t ODType) Valid() bool {
	switch t {
	case ODNone, ODInternal, ODExternal:
		return true
	}
	return false
}

// Source records which writer produced a record.
type Source string

const (
	SourceManual   Source = "manual"
	SourceCamera   Source = "camera-detected"
	SourceAutoInit Source = "auto-init"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceCamera, SourceAutoInit:
		return true
	}
	return false
}

// Record is one student's attendance for one day.
type Record struct {
	RollNo    string    `json:"rollNo"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	ODType    ODType    `json:"odType,omitempty"`
	Source    Source    `json:"source"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks field domains and the odType invariant:
// a non-empty ODType requires Status == StatusOD.
func (r Record) Validate() error {
	if r.RollNo == "" {
		return NewInvalidRecordError(r.RollNo, "roll number is required")
	}
	if !r.Status.Valid() {
		return NewInvalidRecordError(r.RollNo, fmt.Sprintf("unknown status %q", r.Status))
	}
	if !r.ODType.Valid() {
		return NewInvalidRecordError(r.RollNo, fmt.Sprintf("unknown od type %q", r.ODType))
	}
	if r.ODType != ODNone && r.Status != StatusOD {
		return NewInvalidRecordError(r.RollNo, fmt.Sprintf("od type %q requires status od, got %q", r.ODType, r.Status))
	}
	if !r.Source.Valid() {
		return NewInvalidRecordError(r.RollNo, fmt.Sprintf("unknown source %q", r.Source))
	}
	return nil
}

// Document returns the record as a canonical document. A missing od type is
// written as JSON null.
func (r Record) Document() canon.Object {
	var od any
	if r.ODType != ODNone {
		od = string(r.ODType)
	}
	return canon.Object{
		"rollNo":    r.RollNo,
		"name":      r.Name,
		"status":    string(r.Status),
		"odType":    od,
		"source":    string(r.Source),
		"updatedAt": FormatTime(r.UpdatedAt),
	}
}

// Label returns the short display label used in listings and reports.
func (r Record) Label() string {
	if r.Status == StatusOD {
		switch r.ODType {
		case ODInternal:
			return "Int OD"
		case ODExternal:
			return "Ext OD"
		}
		return "OD"
	}
	switch r.Status {
	case StatusPresent:
		return "Present"
	case StatusAbsent:
		return "Absent"
	case StatusLate:
		return "Late"
	}
	return string(r.Status)
}

// RecordMap maps roll numbers to records.
type RecordMap map[string]Record

// Clone returns a shallow copy of m.
func (m RecordMap) Clone() RecordMap {
	out := make(RecordMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Day is the metadata document for one date.
type Day struct {
	Date       string    `json:"date"`
	ClassLabel string    `json:"classLabel"`
	CreatedAt  time.Time `json:"createdAt"`
	MarkedAt   time.Time `json:"markedAt"`
	MarkedBy   string    `json:"markedBy"`
	SeedHash   string    `json:"seedHash,omitempty"`
}

// Edit is an operator change waiting in the local buffer.
type Edit struct {
	RollNo     string
	Status     Status
	ODType     ODType
	OccurredAt time.Time
}

// Validate checks the edit against the same invariant as Record.
func (e Edit) Validate() error {
	return Record{RollNo: e.RollNo, Status: e.Status, ODType: e.ODType, Source: SourceManual}.Validate()
}

// ParseDate validates an ISO-8601 calendar date and returns it unchanged.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// DayStart returns midnight UTC of date. Default payloads use it so that
// every initializer stamps the same time.
func DayStart(date string) time.Time {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}
	}
	return d.UTC()
}

// FormatTime renders t the way documents store it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime is the inverse of FormatTime. Empty input yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Equal reports whether two records carry the same document.
func (r Record) Equal(o Record) bool {
	return r.RollNo == o.RollNo &&
		r.Name == o.Name &&
		r.Status == o.Status &&
		r.ODType == o.ODType &&
		r.Source == o.Source &&
		r.UpdatedAt.Equal(o.UpdatedAt)
}
