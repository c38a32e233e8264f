// Package engine keeps one operator's optimistic attendance edits
// consistent with the record store and with a second, independent writer
// (the camera detector).
//
// ARCHITECTURE:
//
// Session context object:
// Opening a date creates a session holding the edit buffer, the debounce
// timer and the change feed subscription for that date. Every asynchronous
// callback carries the session generation; anything tagged with an older
// generation is dropped, so nothing from date A ever reaches the buffer of
// date B.
//
// Edit path (synchronous, no I/O):
//  1. SetStatus validates against the roster and the odType invariant
//  2. The edit becomes the pending half of the key's two-phase entry
//  3. SaveState goes to dirty and the debounce timer is re-armed
//
// Single-Writer Event Loop:
// Run processes flush and remote events one at a time:
//   - flush: snapshot the whole buffer, commit it as one atomic batch,
//     promote the flushed edits to committed (saved) or keep them (error)
//   - remote: coalesced feed changes overwrite committed values; the
//     ConflictPolicy decides whether they also discard a pending edit
//
// Failures are never fatal and never retried in the background: a failed
// flush leaves the edits pending until the next edit re-arms the timer, and
// a failed feed stays closed until the date is opened again.
package engine
