package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rollcall/internal/attendance"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReadDay returns the day document for date, or nil if none exists.
func (s *Store) ReadDay(ctx context.Context, date string) (*attendance.Day, error) {
	var (
		d                   attendance.Day
		createdAt, markedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT date, class_label, created_at, marked_at, marked_by, seed_hash
		FROM days WHERE date = ?
	`, date).Scan(&d.Date, &d.ClassLabel, &createdAt, &markedAt, &d.MarkedBy, &d.SeedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read day %s: %w", date, err)
	}
	if d.CreatedAt, err = attendance.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("read day %s: created_at: %w", date, err)
	}
	if d.MarkedAt, err = attendance.ParseTime(markedAt); err != nil {
		return nil, fmt.Errorf("read day %s: marked_at: %w", date, err)
	}
	return &d, nil
}

// ReadRecords returns every stored record for date.
// Returns an empty map (not nil) if the date has no records.
func (s *Store) ReadRecords(ctx context.Context, date string) (attendance.RecordMap, error) {
	return readRecords(ctx, s.db, date)
}

func readRecords(ctx context.Context, q queryer, date string) (attendance.RecordMap, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT body FROM records
		WHERE date = ?
		ORDER BY roll_no COLLATE BINARY ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make(attendance.RecordMap)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, err := unmarshalRecord(body)
		if err != nil {
			return nil, err
		}
		out[r.RollNo] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ReadChanges returns the changes for date with seq > afterSeq, in seq order.
// A limit of zero or less means no limit.
func (s *Store) ReadChanges(ctx context.Context, date string, afterSeq int64, limit int) ([]attendance.Change, error) {
	return readChanges(ctx, s.db, date, afterSeq, limit)
}

func readChanges(ctx context.Context, q queryer, date string, afterSeq int64, limit int) ([]attendance.Change, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ctx, `
		SELECT seq, date, roll_no, kind, body, writer
		FROM changes
		WHERE date = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, date, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var changes []attendance.Change
	for rows.Next() {
		var (
			c    attendance.Change
			kind string
			body sql.NullString
		)
		if err := rows.Scan(&c.Seq, &c.Date, &c.RollNo, &kind, &body, &c.Writer); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Kind = attendance.ChangeKind(kind)
		if body.Valid {
			r, err := unmarshalRecord(body.String)
			if err != nil {
				return nil, fmt.Errorf("change %d: %w", c.Seq, err)
			}
			c.Record = &r
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}

	if changes == nil {
		changes = []attendance.Change{}
	}
	return changes, nil
}

// LastSeq returns the highest change seq for date, or 0.
func (s *Store) LastSeq(ctx context.Context, date string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM changes WHERE date = ?
	`, date).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq %s: %w", date, err)
	}
	return seq, nil
}

// ListDays returns every stored day in date order.
func (s *Store) ListDays(ctx context.Context) ([]attendance.Day, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM days ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan day: %w", err)
		}
		dates = append(dates, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate days: %w", err)
	}

	days := make([]attendance.Day, 0, len(dates))
	for _, date := range dates {
		d, err := s.ReadDay(ctx, date)
		if err != nil {
			return nil, err
		}
		if d != nil {
			days = append(days, *d)
		}
	}
	return days, nil
}
