package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/canon"
)

// recordBody mirrors attendance.Record.Document for decoding.
type recordBody struct {
	RollNo    string  `json:"rollNo"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	ODType    *string `json:"odType"`
	Source    string  `json:"source"`
	UpdatedAt string  `json:"updatedAt"`
}

// marshalRecord converts a record to canonical JSON TEXT for storage.
// Identical records always produce identical bodies, which is what lets
// Commit skip no-op writes.
func marshalRecord(r attendance.Record) (string, error) {
	data, err := canon.Marshal(r.Document())
	if err != nil {
		return "", fmt.Errorf("marshal record %s: %w", r.RollNo, err)
	}
	return string(data), nil
}

// unmarshalRecord parses a stored record body.
func unmarshalRecord(data string) (attendance.Record, error) {
	var b recordBody
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return attendance.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	updated, err := attendance.ParseTime(b.UpdatedAt)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("unmarshal record %s: updatedAt: %w", b.RollNo, err)
	}
	r := attendance.Record{
		RollNo:    b.RollNo,
		Name:      b.Name,
		Status:    attendance.Status(b.Status),
		Source:    attendance.Source(b.Source),
		UpdatedAt: updated,
	}
	if b.ODType != nil {
		r.ODType = attendance.ODType(*b.ODType)
	}
	return r, nil
}
