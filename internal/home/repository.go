package home

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for network and home persistence.
type Repository interface {
	CreateNetwork(ctx context.Context, n *Network) error
	GetNetwork(ctx context.Context, id string) (*Network, error)
	ListNetworks(ctx context.Context) ([]Network, error)
	DeleteNetwork(ctx context.Context, id string) error

	CreateHome(ctx context.Context, h *Home) error
	GetHome(ctx context.Context, id string) (*Home, error)
	ListHomes(ctx context.Context) ([]Home, error)
	ListHomesByNetwork(ctx context.Context, networkID string) ([]Home, error)
	DeleteHome(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed home repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateNetwork inserts a network. Returns ErrNetworkExists on a duplicate address.
func (r *SQLiteRepository) CreateNetwork(ctx context.Context, n *Network) error {
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now

	const query = `INSERT INTO networks (id, name, ip_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.Name, n.IPAddress, formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrNetworkExists, n.IPAddress)
		}
		return fmt.Errorf("inserting network %s: %w", n.ID, err)
	}
	return nil
}

// GetNetwork returns a single network by ID.
func (r *SQLiteRepository) GetNetwork(ctx context.Context, id string) (*Network, error) {
	const query = `SELECT id, name, ip_address, created_at, updated_at FROM networks WHERE id = ?`
	n, err := scanNetwork(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNetworkNotFound
		}
		return nil, fmt.Errorf("querying network %s: %w", id, err)
	}
	return n, nil
}

// ListNetworks returns all networks ordered by name.
func (r *SQLiteRepository) ListNetworks(ctx context.Context) ([]Network, error) {
	const query = `SELECT id, name, ip_address, created_at, updated_at FROM networks ORDER BY name, ip_address`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying networks: %w", err)
	}
	defer rows.Close()

	var networks []Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning network row: %w", err)
		}
		networks = append(networks, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating network rows: %w", err)
	}
	return networks, nil
}

// DeleteNetwork removes a network. Its homes go with it (ON DELETE CASCADE).
func (r *SQLiteRepository) DeleteNetwork(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM networks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting network %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNetworkNotFound
	}
	return nil
}

// CreateHome inserts a home. Returns ErrNetworkNotFound if the network is missing.
func (r *SQLiteRepository) CreateHome(ctx context.Context, h *Home) error {
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now

	const query = `INSERT INTO homes (id, network_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.NetworkID, h.Name, formatTime(h.CreatedAt), formatTime(h.UpdatedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", ErrNetworkNotFound, h.NetworkID)
		}
		return fmt.Errorf("inserting home %s: %w", h.ID, err)
	}
	return nil
}

// GetHome returns a single home by ID.
func (r *SQLiteRepository) GetHome(ctx context.Context, id string) (*Home, error) {
	const query = `SELECT id, network_id, name, created_at, updated_at FROM homes WHERE id = ?`
	h, err := scanHome(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHomeNotFound
		}
		return nil, fmt.Errorf("querying home %s: %w", id, err)
	}
	return h, nil
}

// ListHomes returns all homes ordered by name.
func (r *SQLiteRepository) ListHomes(ctx context.Context) ([]Home, error) {
	const query = `SELECT id, network_id, name, created_at, updated_at FROM homes ORDER BY name, id`
	return r.queryHomes(ctx, query)
}

// ListHomesByNetwork returns the homes of one network.
func (r *SQLiteRepository) ListHomesByNetwork(ctx context.Context, networkID string) ([]Home, error) {
	const query = `SELECT id, network_id, name, created_at, updated_at FROM homes
		WHERE network_id = ? ORDER BY name, id`
	return r.queryHomes(ctx, query, networkID)
}

// DeleteHome removes a home. Devices still pointing at it are detached
// by the schema (ON DELETE SET NULL).
func (r *SQLiteRepository) DeleteHome(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM homes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting home %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrHomeNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryHomes(ctx context.Context, query string, args ...any) ([]Home, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying homes: %w", err)
	}
	defer rows.Close()

	var homes []Home
	for rows.Next() {
		h, err := scanHome(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning home row: %w", err)
		}
		homes = append(homes, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating home rows: %w", err)
	}
	return homes, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNetwork(s scanner) (*Network, error) {
	var n Network
	var createdAt, updatedAt string
	if err := s.Scan(&n.ID, &n.Name, &n.IPAddress, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	return &n, nil
}

func scanHome(s scanner) (*Home, error) {
	var h Home
	var createdAt, updatedAt string
	if err := s.Scan(&h.ID, &h.NetworkID, &h.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	h.CreatedAt = parseTime(createdAt)
	h.UpdatedAt = parseTime(updatedAt)
	return &h, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored timestamp, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
