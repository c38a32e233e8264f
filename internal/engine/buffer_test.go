package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/attendance"
)

func edit(rollNo string, status attendance.Status, od attendance.ODType) attendance.Edit {
	return attendance.Edit{RollNo: rollNo, Status: status, ODType: od, OccurredAt: epoch}
}

func remote(rollNo string, status attendance.Status, writer string) attendance.Change {
	s, _ := class.Lookup(rollNo)
	r := attendance.Record{RollNo: rollNo, Name: s.Name, Status: status, Source: attendance.SourceCamera, UpdatedAt: epoch.Add(time.Second)}
	return attendance.Change{Date: dayA, RollNo: rollNo, Kind: attendance.ChangeModified, Record: &r, Writer: writer}
}

func TestParseConflictPolicy(t *testing.T) {
	p, err := ParseConflictPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RemoteWins, p)

	p, err = ParseConflictPolicy("local-wins")
	require.NoError(t, err)
	assert.Equal(t, LocalWins, p)

	_, err = ParseConflictPolicy("newest")
	assert.Error(t, err)
}

func TestBuffer_SeedsDefaultsForMissingMembers(t *testing.T) {
	base := attendance.RecordMap{"S2": {RollNo: "S2", Name: "Student Two", Status: attendance.StatusLate, Source: attendance.SourceManual}}
	b := newBuffer(dayA, class, RemoteWins, base)

	recs := b.records()
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"S1", "S2", "S3"}, []string{recs[0].RollNo, recs[1].RollNo, recs[2].RollNo})
	assert.Equal(t, attendance.StatusAbsent, recs[0].Status)
	assert.Equal(t, attendance.StatusLate, recs[1].Status)
	assert.False(t, b.hasPending())
}

func TestBuffer_SnapshotAndConfirm(t *testing.T) {
	b := newBuffer(dayA, class, RemoteWins, nil)
	b.set(edit("S1", attendance.StatusPresent, ""), 1)
	b.set(edit("S3", attendance.StatusOD, attendance.ODInternal), 2)

	records, flushed := b.snapshot()
	assert.Len(t, records, 3)
	assert.Equal(t, map[string]uint64{"S1": 1, "S3": 2}, flushed)
	assert.Equal(t, attendance.SourceManual, records[0].Source)

	// S1 edited again while the flush was in flight.
	b.set(edit("S1", attendance.StatusLate, ""), 3)
	b.confirm(flushed)

	assert.Equal(t, []string{"S1"}, b.pendingRollNos())
	r1, _ := b.record("S1")
	assert.Equal(t, attendance.StatusLate, r1.Status)
	r3, _ := b.record("S3")
	assert.Equal(t, attendance.ODInternal, r3.ODType)
}

func TestBuffer_RemoteWins(t *testing.T) {
	b := newBuffer(dayA, class, RemoteWins, nil)
	b.set(edit("S1", attendance.StatusLate, ""), 1)

	discarded, unknown := b.applyRemote([]attendance.Change{remote("S1", attendance.StatusPresent, "detector")}, "me")
	assert.Equal(t, []string{"S1"}, discarded)
	assert.Empty(t, unknown)
	assert.False(t, b.hasPending())

	r, _ := b.record("S1")
	assert.Equal(t, attendance.StatusPresent, r.Status)
	assert.Equal(t, attendance.SourceCamera, r.Source)
}

func TestBuffer_LocalWins(t *testing.T) {
	b := newBuffer(dayA, class, LocalWins, nil)
	b.set(edit("S1", attendance.StatusLate, ""), 1)

	discarded, _ := b.applyRemote([]attendance.Change{remote("S1", attendance.StatusPresent, "detector")}, "me")
	assert.Empty(t, discarded)

	r, _ := b.record("S1")
	assert.Equal(t, attendance.StatusLate, r.Status)

	_, flushed := b.snapshot()
	b.confirm(flushed)
	r, _ = b.record("S1")
	assert.Equal(t, attendance.StatusLate, r.Status)
	assert.False(t, b.hasPending())
}

func TestBuffer_OwnEchoKeepsPending(t *testing.T) {
	b := newBuffer(dayA, class, RemoteWins, nil)
	b.set(edit("S1", attendance.StatusLate, ""), 1)

	discarded, _ := b.applyRemote([]attendance.Change{remote("S1", attendance.StatusPresent, "me")}, "me")
	assert.Empty(t, discarded)
	assert.True(t, b.hasPending())
}

func TestBuffer_UnchangedRemoteKeepsPending(t *testing.T) {
	b := newBuffer(dayA, class, RemoteWins, nil)
	b.set(edit("S1", attendance.StatusLate, ""), 1)

	def := attendance.DefaultRecord(class.Students()[0], dayA)
	discarded, _ := b.applyRemote([]attendance.Change{{Date: dayA, RollNo: "S1", Kind: attendance.ChangeAdded, Record: &def}}, "me")
	assert.Empty(t, discarded, "snapshot replay of the committed value is not a conflict")
	assert.True(t, b.hasPending())
}

func TestBuffer_TombstoneAndUnknown(t *testing.T) {
	b := newBuffer(dayA, class, RemoteWins, nil)
	b.applyRemote([]attendance.Change{remote("S2", attendance.StatusPresent, "detector")}, "me")

	_, unknown := b.applyRemote([]attendance.Change{
		{Date: dayA, RollNo: "S2", Kind: attendance.ChangeRemoved},
		remote("S9", attendance.StatusPresent, "detector"),
	}, "me")
	assert.Equal(t, []string{"S9"}, unknown)

	r, _ := b.record("S2")
	assert.Equal(t, attendance.StatusAbsent, r.Status)
	assert.Equal(t, attendance.SourceManual, r.Source)

	_, ok := b.record("S9")
	assert.False(t, ok)
}

func TestCoalescer_LastChangePerKey(t *testing.T) {
	c := newCoalescer()
	c.add(remote("S2", attendance.StatusLate, "d"))
	c.add(remote("S1", attendance.StatusLate, "d"))
	c.add(remote("S2", attendance.StatusPresent, "d"))

	got := c.changes()
	require.Len(t, got, 2)
	assert.Equal(t, "S2", got[0].RollNo)
	assert.Equal(t, attendance.StatusPresent, got[0].Record.Status)
	assert.Equal(t, "S1", got[1].RollNo)
}
