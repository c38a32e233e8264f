package attendance

import (
	"github.com/roach88/rollcall/internal/canon"
	"github.com/roach88/rollcall/internal/roster"
)

// MarkedByAutoInit is the markedBy value of a freshly initialized day.
const MarkedByAutoInit = "auto-init"

// DefaultRecord is the record every roster member starts the day with.
func DefaultRecord(s roster.Student, date string) Record {
	return Record{
		RollNo:    s.RollNo,
		Name:      s.Name,
		Status:    StatusAbsent,
		Source:    SourceAutoInit,
		UpdatedAt: DayStart(date),
	}
}

// ResetRecord is what a tombstone on the change feed turns a record into.
// Unlike DefaultRecord it is attributed to the operator.
func ResetRecord(s roster.Student, date string) Record {
	r := DefaultRecord(s, date)
	r.Source = SourceManual
	return r
}

// DefaultRecords builds the default record for every roster member.
func DefaultRecords(r *roster.Roster, date string) RecordMap {
	out := make(RecordMap, r.Len())
	for _, s := range r.Students() {
		out[s.RollNo] = DefaultRecord(s, date)
	}
	return out
}

// DefaultDay builds the day document written by the initializer, including
// the seed hash of the default payload.
func DefaultDay(r *roster.Roster, date, classLabel string) (Day, error) {
	seed, err := SeedHash(r, date, classLabel)
	if err != nil {
		return Day{}, err
	}
	start := DayStart(date)
	return Day{
		Date:       date,
		ClassLabel: classLabel,
		CreatedAt:  start,
		MarkedAt:   start,
		MarkedBy:   MarkedByAutoInit,
		SeedHash:   seed,
	}, nil
}

// SeedHash fingerprints the default payload for (date, class label, roster).
// Two initializers computing the same hash write byte-identical documents.
func SeedHash(r *roster.Roster, date, classLabel string) (string, error) {
	records := make([]any, 0, r.Len())
	for _, s := range r.Students() {
		records = append(records, DefaultRecord(s, date).Document())
	}
	return canon.Hash(canon.DomainDaySeed, canon.Object{
		"date":       date,
		"classLabel": classLabel,
		"records":    records,
	})
}
