package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotRepository persists the scheduler's pending descriptors between runs.
type SnapshotRepository interface {
	// SaveSnapshot replaces the stored snapshot with descs, keeping their order.
	SaveSnapshot(ctx context.Context, descs []Descriptor) error

	// LoadSnapshot returns the stored snapshot in saved order.
	LoadSnapshot(ctx context.Context) ([]Descriptor, error)
}

// SQLiteRepository implements SnapshotRepository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed snapshot repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveSnapshot replaces every stored row in a single transaction.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, descs []Descriptor) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_operations`); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scheduled_operations (
			id, position, device_serial, operation, arguments,
			schedule_kind, delay_ns, at_time, recurring, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range descs {
		args := d.Arguments
		if args == nil {
			args = []any{}
		}
		argsJSON, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshalling arguments for %s: %w", d.ID, err)
		}

		createdAt := d.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := stmt.ExecContext(ctx,
			d.ID,
			i,
			d.DeviceSerial,
			d.Operation,
			string(argsJSON),
			string(d.Schedule.Kind()),
			d.Schedule.Delay().Nanoseconds(),
			d.Schedule.Clock(),
			boolToInt(d.Recurring),
			createdAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting snapshot row %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the stored snapshot. A row whose schedule no longer
// parses is an error; the caller decides whether to continue without it.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) ([]Descriptor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_serial, operation, arguments,
		       schedule_kind, delay_ns, at_time, recurring, created_at
		FROM scheduled_operations
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	var descs []Descriptor
	for rows.Next() {
		var (
			d         Descriptor
			argsJSON  string
			kind      string
			delayNS   int64
			atTime    string
			recurring int
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.DeviceSerial, &d.Operation, &argsJSON,
			&kind, &delayNS, &atTime, &recurring, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}

		if err := json.Unmarshal([]byte(argsJSON), &d.Arguments); err != nil {
			return nil, fmt.Errorf("unmarshalling arguments for %s: %w", d.ID, err)
		}

		switch Kind(kind) {
		case KindRelative:
			d.Schedule = After(time.Duration(delayNS))
		case KindAbsolute:
			s, err := At(atTime)
			if err != nil {
				return nil, fmt.Errorf("snapshot row %s: %w", d.ID, err)
			}
			d.Schedule = s
		default:
			return nil, fmt.Errorf("snapshot row %s: %w: unknown kind %q", d.ID, ErrInvalidSchedule, kind)
		}

		d.Recurring = recurring != 0
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			d.CreatedAt = t
		}
		descs = append(descs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot: %w", err)
	}
	return descs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
