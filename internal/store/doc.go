// Package store provides SQLite-backed durable storage for attendance days.
//
// The store keeps three tables:
//   - days: one metadata document per date
//   - records: one canonical JSON document per (date, roll number)
//   - changes: an append-only log of every record write, keyed by seq
//
// # Writes
//
// Commit applies a whole attendance.Batch in one transaction. A create-only
// batch inserts the day with ON CONFLICT DO NOTHING and becomes a no-op when
// the day already exists, which is how concurrent initializers agree on a
// single day document. Record writes whose canonical body is unchanged are
// skipped and produce no change row.
//
// # Change feed
//
// Subscribe returns the current records of a date as "added" changes, then
// tails the changes table in seq order. Commits made through the same Store
// wake subscribers immediately; writes from other processes are picked up on
// the next poll.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
