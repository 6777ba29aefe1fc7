package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
type Repository interface {
	// GetBySerial retrieves a device. Returns ErrDeviceNotFound if absent.
	GetBySerial(ctx context.Context, serial string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device. Returns ErrDeviceExists on a duplicate serial.
	Create(ctx context.Context, device *Device) error

	// Update writes the descriptive fields (name, home, hub).
	Update(ctx context.Context, device *Device) error

	// UpdateState writes power, energy and type-specific state.
	UpdateState(ctx context.Context, device *Device) error

	// Delete removes a device. Returns ErrDeviceNotFound if absent.
	Delete(ctx context.Context, serial string) error

	// NextSerial allocates the next never-used serial.
	NextSerial(ctx context.Context) (string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevices = `
	SELECT serial, name, type, home_id, hub_serial, is_on, energy_consumption, state, created_at, updated_at
	FROM devices`

// GetBySerial retrieves a device by serial.
func (r *SQLiteRepository) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevices+" WHERE serial = ?", serial)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by serial: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevices+" ORDER BY created_at, serial")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	stateJSON, err := json.Marshal(d.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (
			serial, name, type, home_id, hub_serial, is_on, energy_consumption, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Serial,
		d.Name,
		string(d.Type),
		nullableString(d.HomeID),
		nullableString(d.HubSerial),
		boolToInt(d.IsOn),
		d.EnergyConsumption,
		string(stateJSON),
		d.CreatedAt.Format(time.RFC3339Nano),
		d.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update writes the name, home and hub assignment of a device.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	d.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET name = ?, home_id = ?, hub_serial = ?, updated_at = ? WHERE serial = ?",
		d.Name,
		nullableString(d.HomeID),
		nullableString(d.HubSerial),
		d.UpdatedAt.Format(time.RFC3339Nano),
		d.Serial,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRow(result)
}

// UpdateState writes the power flag, energy figure and state attributes.
func (r *SQLiteRepository) UpdateState(ctx context.Context, d *Device) error {
	stateJSON, err := json.Marshal(d.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET is_on = ?, energy_consumption = ?, state = ?, updated_at = ?
		WHERE serial = ?`,
		boolToInt(d.IsOn),
		d.EnergyConsumption,
		string(stateJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		d.Serial,
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	return requireRow(result)
}

// Delete removes a device by serial.
func (r *SQLiteRepository) Delete(ctx context.Context, serial string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE serial = ?", serial)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result)
}

// NextSerial increments the device_serial sequence and formats the result.
func (r *SQLiteRepository) NextSerial(ctx context.Context) (string, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"UPDATE sequences SET value = value + 1 WHERE name = 'device_serial' RETURNING value",
	).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("advancing device serial sequence: %w", err)
	}
	return FormatSerial(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var (
		d          Device
		deviceType string
		homeID     sql.NullString
		hubSerial  sql.NullString
		isOn       int
		stateJSON  string
		createdAt  string
		updatedAt  string
	)
	if err := s.Scan(
		&d.Serial, &d.Name, &deviceType, &homeID, &hubSerial, &isOn,
		&d.EnergyConsumption, &stateJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	d.Type = DeviceType(deviceType)
	d.IsOn = isOn != 0
	if homeID.Valid {
		d.HomeID = &homeID.String
	}
	if hubSerial.Valid {
		d.HubSerial = &hubSerial.String
	}
	if err := json.Unmarshal([]byte(stateJSON), &d.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	if d.State == nil {
		d.State = State{}
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
	return &d, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
