package user

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/home"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/migrations"
)

type testEnv struct {
	svc     *Service
	repo    *SQLiteRepository
	homes   *home.Service
	devices *device.Registry
	ctx     context.Context
}

// setupService wires a user Service to real home and device services over
// one in-memory SQLite database.
func setupService(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	homes := home.NewService(home.NewSQLiteRepository(db.DB), devices)
	repo := NewSQLiteRepository(db.DB)
	return &testEnv{
		svc:     NewService(repo, homes, devices),
		repo:    repo,
		homes:   homes,
		devices: devices,
		ctx:     ctx,
	}
}

func (e *testEnv) newUser(t *testing.T, name string) *User {
	t.Helper()
	u, err := e.svc.CreateUser(e.ctx, name)
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", name, err)
	}
	return u
}

func (e *testEnv) newDevice(t *testing.T, name string, dt device.DeviceType) string {
	t.Helper()
	d := &device.Device{Name: name, Type: dt}
	if err := e.devices.CreateDevice(e.ctx, d); err != nil {
		t.Fatalf("CreateDevice(%s) error = %v", name, err)
	}
	return d.Serial
}

func (e *testEnv) newNetwork(t *testing.T, addr string) *home.Network {
	t.Helper()
	n, err := e.homes.CreateNetwork(e.ctx, "LAN", addr)
	if err != nil {
		t.Fatalf("CreateNetwork() error = %v", err)
	}
	return n
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"simple", "alice", nil},
		{"with inner space", "Alice Smith", nil},
		{"punctuation", "bob_the-builder.2", nil},
		{"empty", "", ErrInvalidUsername},
		{"leading space", " alice", ErrInvalidUsername},
		{"trailing space", "alice ", ErrInvalidUsername},
		{"symbol", "alice!", ErrInvalidUsername},
		{"too long", string(make([]byte, 65)), ErrInvalidUsername},
		{"reserved example", "example", ErrReservedUsername},
		{"reserved test", "Test", ErrReservedUsername},
		{"reserved admin", "ADMIN", ErrReservedUsername},
		{"contains reserved word", "admin2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateUsername(%q) error = %v", tt.username, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUsername(%q) error = %v, want %v", tt.username, err, tt.wantErr)
			}
		})
	}
}

func TestService_CreateAndFindUsers(t *testing.T) {
	env := setupService(t)

	alice := env.newUser(t, "alice")
	if alice.ID == "" || alice.Connected() {
		t.Fatalf("CreateUser() = %+v, want an ID and no network", alice)
	}
	env.newUser(t, "bob")

	if _, err := env.svc.CreateUser(env.ctx, "Alice"); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrUsernameExists", err)
	}
	if _, err := env.svc.CreateUser(env.ctx, "admin"); !errors.Is(err, ErrReservedUsername) {
		t.Errorf("reserved CreateUser() error = %v, want ErrReservedUsername", err)
	}

	for _, ref := range []string{alice.ID, "alice", "ALICE"} {
		got, err := env.svc.FindUser(env.ctx, ref)
		if err != nil {
			t.Fatalf("FindUser(%q) error = %v", ref, err)
		}
		if got.ID != alice.ID {
			t.Errorf("FindUser(%q).ID = %q, want %q", ref, got.ID, alice.ID)
		}
	}
	if _, err := env.svc.FindUser(env.ctx, "carol"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("FindUser(carol) error = %v, want ErrUserNotFound", err)
	}

	count, err := env.svc.UserCount(env.ctx)
	if err != nil {
		t.Fatalf("UserCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("UserCount() = %d, want 2", count)
	}

	if err := env.svc.DeleteUser(env.ctx, alice.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if err := env.svc.DeleteUser(env.ctx, alice.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second DeleteUser() error = %v, want ErrUserNotFound", err)
	}
	users, err := env.svc.ListUsers(env.ctx, "")
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Errorf("ListUsers() = %+v, want only bob", users)
	}
}

func TestService_ConnectDisconnect(t *testing.T) {
	env := setupService(t)
	lan := env.newNetwork(t, "192.168.1.1")
	guest := env.newNetwork(t, "10.0.0.1")
	alice := env.newUser(t, "alice")
	env.newUser(t, "bob")

	got, err := env.svc.Connect(env.ctx, alice.ID, lan.ID)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got.NetworkID == nil || *got.NetworkID != lan.ID {
		t.Fatalf("Connect().NetworkID = %v, want %s", got.NetworkID, lan.ID)
	}

	onLAN, err := env.svc.ListUsers(env.ctx, lan.ID)
	if err != nil {
		t.Fatalf("ListUsers(lan) error = %v", err)
	}
	if len(onLAN) != 1 || onLAN[0].ID != alice.ID {
		t.Errorf("ListUsers(lan) = %+v, want only alice", onLAN)
	}

	// Connecting elsewhere moves the user.
	if _, err := env.svc.Connect(env.ctx, alice.ID, guest.ID); err != nil {
		t.Fatalf("Connect(guest) error = %v", err)
	}
	onLAN, _ = env.svc.ListUsers(env.ctx, lan.ID) //nolint:errcheck // Checked above
	if len(onLAN) != 0 {
		t.Errorf("ListUsers(lan) after move = %+v, want none", onLAN)
	}

	got, err = env.svc.Disconnect(env.ctx, alice.ID)
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got.Connected() {
		t.Errorf("Disconnect().NetworkID = %v, want nil", *got.NetworkID)
	}
	if _, err := env.svc.Disconnect(env.ctx, alice.ID); !errors.Is(err, ErrNotConnected) {
		t.Errorf("second Disconnect() error = %v, want ErrNotConnected", err)
	}
}

func TestService_ConnectErrors(t *testing.T) {
	env := setupService(t)
	lan := env.newNetwork(t, "192.168.1.1")
	alice := env.newUser(t, "alice")

	tests := []struct {
		name      string
		userID    string
		networkID string
		wantErr   error
	}{
		{"unknown network", alice.ID, "nope", home.ErrNetworkNotFound},
		{"unknown user", "usr-missing", lan.ID, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.Connect(env.ctx, tt.userID, tt.networkID); !errors.Is(err, tt.wantErr) {
				t.Errorf("Connect() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := env.svc.ListUsers(env.ctx, "nope"); !errors.Is(err, home.ErrNetworkNotFound) {
		t.Errorf("ListUsers(nope) error = %v, want ErrNetworkNotFound", err)
	}
}

func TestService_DeleteNetworkDisconnectsUsers(t *testing.T) {
	env := setupService(t)
	lan := env.newNetwork(t, "192.168.1.1")
	alice := env.newUser(t, "alice")
	if _, err := env.svc.Connect(env.ctx, alice.ID, lan.ID); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := env.homes.DeleteNetwork(env.ctx, lan.ID); err != nil {
		t.Fatalf("DeleteNetwork() error = %v", err)
	}
	got, err := env.svc.GetUser(env.ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.Connected() {
		t.Errorf("NetworkID after network delete = %v, want nil", *got.NetworkID)
	}
}

func TestService_HubUsers(t *testing.T) {
	env := setupService(t)
	hub := env.newDevice(t, "Kitchen hub", device.DeviceTypeHub)
	alice := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")

	for _, u := range []*User{alice, bob, alice} {
		if err := env.svc.AddHubUser(env.ctx, hub, u.ID); err != nil {
			t.Fatalf("AddHubUser(%s) error = %v", u.Username, err)
		}
	}
	users, err := env.svc.HubUsers(env.ctx, hub)
	if err != nil {
		t.Fatalf("HubUsers() error = %v", err)
	}
	if len(users) != 2 || users[0].ID != alice.ID || users[1].ID != bob.ID {
		t.Fatalf("HubUsers() = %+v, want alice then bob", users)
	}

	if err := env.svc.RemoveHubUser(env.ctx, hub, alice.ID); err != nil {
		t.Fatalf("RemoveHubUser() error = %v", err)
	}
	if err := env.svc.RemoveHubUser(env.ctx, hub, alice.ID); !errors.Is(err, ErrNotHubUser) {
		t.Errorf("second RemoveHubUser() error = %v, want ErrNotHubUser", err)
	}

	// Deleting a user revokes its grants.
	if err := env.svc.DeleteUser(env.ctx, bob.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	users, _ = env.svc.HubUsers(env.ctx, hub) //nolint:errcheck // Checked above
	if len(users) != 0 {
		t.Errorf("HubUsers() after delete = %+v, want none", users)
	}
}

func TestService_HubUserErrors(t *testing.T) {
	env := setupService(t)
	hub := env.newDevice(t, "Kitchen hub", device.DeviceTypeHub)
	lamp := env.newDevice(t, "Lamp", device.DeviceTypeLight)
	alice := env.newUser(t, "alice")

	tests := []struct {
		name    string
		hub     string
		userID  string
		wantErr error
	}{
		{"not a hub", lamp, alice.ID, device.ErrNotHub},
		{"unknown hub", "DEV-99", alice.ID, device.ErrDeviceNotFound},
		{"unknown user", hub, "usr-missing", ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := env.svc.AddHubUser(env.ctx, tt.hub, tt.userID); !errors.Is(err, tt.wantErr) {
				t.Errorf("AddHubUser() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_DeleteHubRevokesGrants(t *testing.T) {
	env := setupService(t)
	hub := env.newDevice(t, "Kitchen hub", device.DeviceTypeHub)
	alice := env.newUser(t, "alice")
	if err := env.svc.AddHubUser(env.ctx, hub, alice.ID); err != nil {
		t.Fatalf("AddHubUser() error = %v", err)
	}

	if err := env.devices.DeleteDevice(env.ctx, hub); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	users, err := env.repo.ListByHub(env.ctx, hub)
	if err != nil {
		t.Fatalf("ListByHub() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("ListByHub() after hub delete = %+v, want none", users)
	}
	if _, err := env.svc.GetUser(env.ctx, alice.ID); err != nil {
		t.Errorf("GetUser() after hub delete error = %v", err)
	}
}
