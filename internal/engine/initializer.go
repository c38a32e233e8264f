package engine

import (
	"context"

	"github.com/roach88/rollcall/internal/attendance"
)

// EnsureDay returns the records of date, creating the day if needed.
//
// If the day exists its stored records are returned, with roster members
// missing from the store filled in as default absent records (not written).
// If it does not exist and the operator may write, the default day and one
// default record per roster member are committed as a single create-only
// batch. When that batch reports "not applied", another writer created the
// day between our read and our commit, and its records are read back.
//
// Read-only operators never write; they get the defaults.
//
// On failure the defaults are returned together with an InitError. Nothing
// is retried.
func (e *Engine) EnsureDay(ctx context.Context, date string) (attendance.RecordMap, error) {
	defaults := attendance.DefaultRecords(e.cfg.Roster, date)

	day, err := e.store.ReadDay(ctx, date)
	if err != nil {
		return defaults, attendance.NewInitError(date, err)
	}
	if day != nil {
		e.checkSeed(day)
		return e.readBack(ctx, date, defaults)
	}

	if !e.cfg.Operator.Admin {
		e.logger.Info("day not initialized; read-only operator uses defaults", "date", date)
		return defaults, nil
	}

	defDay, err := attendance.DefaultDay(e.cfg.Roster, date, e.cfg.ClassLabel)
	if err != nil {
		return defaults, attendance.NewInitError(date, err)
	}
	records := make([]attendance.Record, 0, len(defaults))
	for _, rollNo := range e.cfg.Roster.RollNos() {
		records = append(records, defaults[rollNo])
	}
	batch := attendance.Batch{
		ID:         e.ids.Generate(),
		Date:       date,
		Day:        &defDay,
		Records:    records,
		CreateOnly: true,
		Writer:     e.writer,
	}

	res, err := e.store.Commit(ctx, batch)
	if err != nil {
		return defaults, attendance.NewInitError(date, err)
	}
	if !res.Applied {
		e.logger.Info("day created concurrently by another writer", "date", date, "batch_id", batch.ID)
		return e.readBack(ctx, date, defaults)
	}

	e.logger.Info("day initialized",
		"date", date,
		"batch_id", batch.ID,
		"records", len(records),
		"seed_hash", defDay.SeedHash,
	)
	return defaults, nil
}

func (e *Engine) readBack(ctx context.Context, date string, defaults attendance.RecordMap) (attendance.RecordMap, error) {
	stored, err := e.store.ReadRecords(ctx, date)
	if err != nil {
		return defaults, attendance.NewInitError(date, err)
	}
	out := defaults.Clone()
	for rollNo, r := range stored {
		if _, onRoster := out[rollNo]; onRoster {
			out[rollNo] = r
		}
	}
	return out, nil
}

// checkSeed warns when the stored day was seeded from a different roster or
// class label than the one configured now.
func (e *Engine) checkSeed(day *attendance.Day) {
	if day.SeedHash == "" {
		return
	}
	want, err := attendance.SeedHash(e.cfg.Roster, day.Date, e.cfg.ClassLabel)
	if err != nil || want == day.SeedHash {
		return
	}
	e.logger.Warn("day was initialized from a different roster or class label",
		"date", day.Date,
		"stored_seed", day.SeedHash,
		"current_seed", want,
	)
}
