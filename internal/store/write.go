package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rollcall/internal/attendance"
)

// Commit applies a batch atomically: the optional day document and every
// record are written in one transaction, or nothing is.
//
// A create-only batch inserts the day with ON CONFLICT(date) DO NOTHING. If
// the day already exists the transaction is rolled back and the result
// reports Applied=false, so the loser of an initialization race writes
// nothing.
//
// Otherwise the day is upserted, keeping its original created_at and
// seed_hash. Each record whose canonical body differs from the stored one is
// written and logged to the changes table; identical bodies are skipped.
func (s *Store) Commit(ctx context.Context, b attendance.Batch) (attendance.CommitResult, error) {
	if b.Date == "" {
		return attendance.CommitResult{}, errors.New("commit: batch has no date")
	}
	if b.CreateOnly && b.Day == nil {
		return attendance.CommitResult{}, errors.New("commit: create-only batch has no day")
	}

	bodies := make([]string, len(b.Records))
	for i, r := range b.Records {
		if err := r.Validate(); err != nil {
			return attendance.CommitResult{}, fmt.Errorf("commit: %w", err)
		}
		body, err := marshalRecord(r)
		if err != nil {
			return attendance.CommitResult{}, fmt.Errorf("commit: %w", err)
		}
		bodies[i] = body
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return attendance.CommitResult{}, fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if b.Day != nil {
		applied, err := writeDay(ctx, tx, *b.Day, b.CreateOnly)
		if err != nil {
			return attendance.CommitResult{}, err
		}
		if !applied {
			return attendance.CommitResult{Applied: false}, nil
		}
	}

	res := attendance.CommitResult{Applied: true}
	for i, r := range b.Records {
		changed, err := writeRecord(ctx, tx, b, r, bodies[i])
		if err != nil {
			return attendance.CommitResult{}, err
		}
		if changed {
			res.Changed++
		}
	}

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&res.LastSeq); err != nil {
		return attendance.CommitResult{}, fmt.Errorf("commit: last seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return attendance.CommitResult{}, fmt.Errorf("commit: %w", err)
	}

	if res.Changed > 0 {
		s.notify()
	}
	return res, nil
}

func writeDay(ctx context.Context, tx *sql.Tx, d attendance.Day, createOnly bool) (bool, error) {
	created := d.CreatedAt
	if created.IsZero() {
		created = d.MarkedAt
	}

	if createOnly {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO days (date, class_label, created_at, marked_at, marked_by, seed_hash)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO NOTHING
		`, d.Date, d.ClassLabel, attendance.FormatTime(created), attendance.FormatTime(d.MarkedAt), d.MarkedBy, d.SeedHash)
		if err != nil {
			return false, fmt.Errorf("commit: insert day: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("commit: rows affected: %w", err)
		}
		return rows > 0, nil
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO days (date, class_label, created_at, marked_at, marked_by, seed_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			class_label = excluded.class_label,
			marked_at = excluded.marked_at,
			marked_by = excluded.marked_by
	`, d.Date, d.ClassLabel, attendance.FormatTime(created), attendance.FormatTime(d.MarkedAt), d.MarkedBy, d.SeedHash)
	if err != nil {
		return false, fmt.Errorf("commit: upsert day: %w", err)
	}
	return true, nil
}

func writeRecord(ctx context.Context, tx *sql.Tx, b attendance.Batch, r attendance.Record, body string) (bool, error) {
	var existing string
	err := tx.QueryRowContext(ctx, `
		SELECT body FROM records WHERE date = ? AND roll_no = ?
	`, b.Date, r.RollNo).Scan(&existing)

	kind := attendance.ChangeModified
	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = attendance.ChangeAdded
	case err != nil:
		return false, fmt.Errorf("commit: read record %s: %w", r.RollNo, err)
	case existing == body:
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (date, roll_no, body)
		VALUES (?, ?, ?)
		ON CONFLICT(date, roll_no) DO UPDATE SET body = excluded.body
	`, b.Date, r.RollNo, body)
	if err != nil {
		return false, fmt.Errorf("commit: write record %s: %w", r.RollNo, err)
	}

	if err := appendChange(ctx, tx, b.Date, r.RollNo, kind, sql.NullString{String: body, Valid: true}, b.Writer, b.ID); err != nil {
		return false, err
	}
	return true, nil
}

func appendChange(ctx context.Context, tx *sql.Tx, date, rollNo string, kind attendance.ChangeKind, body sql.NullString, writer, batchID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO changes (date, roll_no, kind, body, writer, batch_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, date, rollNo, string(kind), body, writer, batchID)
	if err != nil {
		return fmt.Errorf("append change %s/%s: %w", date, rollNo, err)
	}
	return nil
}

// DeleteRecord removes one record and logs a tombstone on the change feed.
// Deleting a record that does not exist is a no-op.
func (s *Store) DeleteRecord(ctx context.Context, date, rollNo, writer string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete record: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM records WHERE date = ? AND roll_no = ?`, date, rollNo)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: rows affected: %w", err)
	}
	if rows == 0 {
		return nil
	}

	if err := appendChange(ctx, tx, date, rollNo, attendance.ChangeRemoved, sql.NullString{}, writer, ""); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete record: commit: %w", err)
	}
	s.notify()
	return nil
}
