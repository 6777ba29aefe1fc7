package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for user persistence.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	ListByNetwork(ctx context.Context, networkID string) ([]User, error)
	SetNetwork(ctx context.Context, id string, networkID *string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	// AddToHub grants a user access to a hub. Granting twice is a no-op.
	AddToHub(ctx context.Context, hubSerial, userID string) error
	RemoveFromHub(ctx context.Context, hubSerial, userID string) error
	ListByHub(ctx context.Context, hubSerial string) ([]User, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed user repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectUsers = `SELECT id, username, network_id, created_at, updated_at FROM users`

// Create inserts a user. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = "usr-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, network_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, nullableString(u.NetworkID), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("%w: %s", ErrUsernameExists, u.Username)
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUsers+" WHERE id = ?", id))
}

// GetByUsername retrieves a user by username, ignoring letter case.
func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUsers+" WHERE username = ?", username))
}

// List returns all users ordered by creation date.
func (r *SQLiteRepository) List(ctx context.Context) ([]User, error) {
	return r.queryUsers(ctx, selectUsers+" ORDER BY created_at, id")
}

// ListByNetwork returns the users connected to a network.
func (r *SQLiteRepository) ListByNetwork(ctx context.Context, networkID string) ([]User, error) {
	return r.queryUsers(ctx, selectUsers+" WHERE network_id = ? ORDER BY created_at, id", networkID)
}

// SetNetwork connects a user to a network, or disconnects it when networkID is nil.
func (r *SQLiteRepository) SetNetwork(ctx context.Context, id string, networkID *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET network_id = ?, updated_at = ? WHERE id = ?`,
		nullableString(networkID), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("updating user network: %w", err)
	}
	return requireRow(result, ErrUserNotFound)
}

// Delete removes a user and its hub grants.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return requireRow(result, ErrUserNotFound)
}

// Count returns the number of users.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// AddToHub grants a user access to a hub.
func (r *SQLiteRepository) AddToHub(ctx context.Context, hubSerial, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO hub_users (hub_serial, user_id, created_at) VALUES (?, ?, ?)`,
		hubSerial, userID, formatTime(time.Now().UTC()),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return fmt.Errorf("adding user to hub: %w", err)
	}
	return nil
}

// RemoveFromHub revokes a hub grant. Returns ErrNotHubUser if there was none.
func (r *SQLiteRepository) RemoveFromHub(ctx context.Context, hubSerial, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM hub_users WHERE hub_serial = ? AND user_id = ?`, hubSerial, userID)
	if err != nil {
		return fmt.Errorf("removing user from hub: %w", err)
	}
	return requireRow(result, ErrNotHubUser)
}

// ListByHub returns the users granted access to a hub, in grant order.
func (r *SQLiteRepository) ListByHub(ctx context.Context, hubSerial string) ([]User, error) {
	return r.queryUsers(ctx, `
		SELECT u.id, u.username, u.network_id, u.created_at, u.updated_at
		FROM users u JOIN hub_users h ON h.user_id = u.id
		WHERE h.hub_serial = ?
		ORDER BY h.created_at, u.id`, hubSerial)
}

func (r *SQLiteRepository) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var (
		u         User
		networkID sql.NullString
		createdAt string
		updatedAt string
	)
	if err := s.Scan(&u.ID, &u.Username, &networkID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	if networkID.Valid {
		u.NetworkID = &networkID.String
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
	return &u, nil
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isConstraint reports whether err is a SQLite constraint failure of the
// given extended kind.
func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
