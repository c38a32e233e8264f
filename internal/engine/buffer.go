package engine

import (
	"fmt"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/roster"
)

// ConflictPolicy decides what a remote change does to a key that still has
// an unflushed local edit.
type ConflictPolicy string

const (
	// RemoteWins lets the later remote event overwrite the key and discard
	// its pending edit.
	RemoteWins ConflictPolicy = "remote-wins"
	// LocalWins keeps the pending edit on top of the new remote value until
	// it is flushed.
	LocalWins ConflictPolicy = "local-wins"
)

// ParseConflictPolicy validates a policy name. Empty means RemoteWins.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case "", RemoteWins:
		return RemoteWins, nil
	case LocalWins:
		return LocalWins, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q (want %s or %s)", s, RemoteWins, LocalWins)
}

// pendingEdit is a local edit not yet confirmed by a flush.
type pendingEdit struct {
	edit attendance.Edit
	seq  uint64
}

// entry is the two-phase state of one key: the last value known to be in
// the store, and an optional local edit on top of it.
type entry struct {
	committed attendance.Record
	pending   *pendingEdit
}

func (e *entry) view() attendance.Record {
	r := e.committed
	if e.pending != nil {
		r.Status = e.pending.edit.Status
		r.ODType = e.pending.edit.ODType
		r.Source = attendance.SourceManual
		r.UpdatedAt = e.pending.edit.OccurredAt
	}
	return r
}

// buffer is the local edit buffer for one date. It holds exactly one entry
// per roster member. Not safe for concurrent use; the engine lock guards it.
type buffer struct {
	date    string
	roster  *roster.Roster
	policy  ConflictPolicy
	entries map[string]*entry
}

// newBuffer seeds a buffer from base, filling roster members missing from
// base with the default absent record.
func newBuffer(date string, r *roster.Roster, policy ConflictPolicy, base attendance.RecordMap) *buffer {
	b := &buffer{
		date:    date,
		roster:  r,
		policy:  policy,
		entries: make(map[string]*entry, r.Len()),
	}
	for _, s := range r.Students() {
		rec, ok := base[s.RollNo]
		if !ok {
			rec = attendance.DefaultRecord(s, date)
		}
		b.entries[s.RollNo] = &entry{committed: rec}
	}
	return b
}

// set records a local edit. The caller validates the edit first.
func (b *buffer) set(edit attendance.Edit, seq uint64) {
	e := b.entries[edit.RollNo]
	e.pending = &pendingEdit{edit: edit, seq: seq}
}

// applyRemote overwrites entries with coalesced feed changes. Changes
// written by ownWriter are echoes of this engine's flushes, and changes equal
// to the committed value carry no news: both update the committed value but
// never discard a pending edit. Returns the roll numbers
// whose pending edits were discarded, and the keys skipped because they are
// not on the roster.
func (b *buffer) applyRemote(changes []attendance.Change, ownWriter string) (discarded, unknown []string) {
	for _, c := range changes {
		e, ok := b.entries[c.RollNo]
		if !ok {
			unknown = append(unknown, c.RollNo)
			continue
		}

		var next attendance.Record
		if c.Tombstone() {
			s, _ := b.roster.Lookup(c.RollNo)
			next = attendance.ResetRecord(s, b.date)
		} else {
			next = *c.Record
		}
		unchanged := next.Equal(e.committed)
		e.committed = next

		if e.pending == nil || unchanged || c.Writer == ownWriter || b.policy == LocalWins {
			continue
		}
		discarded = append(discarded, c.RollNo)
		e.pending = nil
	}
	return discarded, unknown
}

// snapshot returns every record in roster order plus the pending seq of
// each key included, for confirm.
func (b *buffer) snapshot() ([]attendance.Record, map[string]uint64) {
	records := make([]attendance.Record, 0, len(b.entries))
	flushed := make(map[string]uint64)
	for _, rollNo := range b.roster.RollNos() {
		e := b.entries[rollNo]
		records = append(records, e.view())
		if e.pending != nil {
			flushed[rollNo] = e.pending.seq
		}
	}
	return records, flushed
}

// confirm promotes flushed pending edits to committed. An edit made after
// the snapshot carries a newer seq and stays pending.
func (b *buffer) confirm(flushed map[string]uint64) {
	for rollNo, seq := range flushed {
		e := b.entries[rollNo]
		if e == nil || e.pending == nil || e.pending.seq != seq {
			continue
		}
		e.committed = e.view()
		e.pending = nil
	}
}

// carry copies the pending edits of prev, a buffer for the same date, on top
// of the freshly loaded committed values.
func (b *buffer) carry(prev *buffer) {
	for rollNo, pe := range prev.entries {
		if pe.pending == nil {
			continue
		}
		if e, ok := b.entries[rollNo]; ok {
			p := *pe.pending
			e.pending = &p
		}
	}
}

func (b *buffer) hasPending() bool {
	for _, e := range b.entries {
		if e.pending != nil {
			return true
		}
	}
	return false
}

// pendingRollNos lists keys with unflushed edits, in roster order.
func (b *buffer) pendingRollNos() []string {
	var out []string
	for _, rollNo := range b.roster.RollNos() {
		if b.entries[rollNo].pending != nil {
			out = append(out, rollNo)
		}
	}
	return out
}

// records returns the visible record of every roster member, in roster order.
func (b *buffer) records() []attendance.Record {
	out := make([]attendance.Record, 0, len(b.entries))
	for _, rollNo := range b.roster.RollNos() {
		out = append(out, b.entries[rollNo].view())
	}
	return out
}

func (b *buffer) record(rollNo string) (attendance.Record, bool) {
	e, ok := b.entries[rollNo]
	if !ok {
		return attendance.Record{}, false
	}
	return e.view(), true
}
