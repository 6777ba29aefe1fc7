package device

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/migrations"
)

func setupSQLiteRepo(t *testing.T) (*SQLiteRepository, *database.DB) {
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
	return NewSQLiteRepository(db.DB), db
}

func TestSQLiteRepository_CRUD(t *testing.T) {
	repo, _ := setupSQLiteRepo(t)
	ctx := context.Background()

	serial, err := repo.NextSerial(ctx)
	if err != nil {
		t.Fatalf("NextSerial() error = %v", err)
	}
	if serial != "DEV-1" {
		t.Errorf("NextSerial() = %q, want DEV-1", serial)
	}

	d := &Device{
		Serial: serial,
		Name:   "Hall lamp",
		Type:   DeviceTypeLight,
		State:  DefaultState(DeviceTypeLight),
	}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, d); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate Create() error = %v, want ErrDeviceExists", err)
	}

	d.IsOn = true
	d.EnergyConsumption = 1.25
	d.State[StateColour] = "Blue"
	if err := repo.UpdateState(ctx, d); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	got, err := repo.GetBySerial(ctx, serial)
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if !got.IsOn || got.EnergyConsumption != 1.25 {
		t.Errorf("got on=%v energy=%v, want on=true energy=1.25", got.IsOn, got.EnergyConsumption)
	}
	if got.State[StateColour] != "Blue" {
		t.Errorf("colour = %v, want Blue", got.State[StateColour])
	}
	// JSON round trip turns ints into float64; intState copes with both.
	if intState(got.State, StateBrightness) != 50 {
		t.Errorf("brightness = %v, want 50", got.State[StateBrightness])
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %d devices, %v; want 1, nil", len(list), err)
	}

	if err := repo.Delete(ctx, serial); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetBySerial(ctx, serial); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetBySerial() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Delete(ctx, serial); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}

	next, _ := repo.NextSerial(ctx)
	if next != "DEV-2" {
		t.Errorf("NextSerial() after delete = %q, want DEV-2", next)
	}
}

func TestSQLiteRepository_UpdateHome(t *testing.T) {
	repo, db := setupSQLiteRepo(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		INSERT INTO networks (id, name, ip_address, created_at, updated_at) VALUES ('n1', 'LAN', '10.0.0.1', 'x', 'x');
		INSERT INTO homes (id, network_id, name, created_at, updated_at) VALUES ('h1', 'n1', 'Flat', 'x', 'x');
	`); err != nil {
		t.Fatalf("seeding home: %v", err)
	}

	d := &Device{Serial: "DEV-5", Name: "Lock", Type: DeviceTypeLock, State: DefaultState(DeviceTypeLock)}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	home := "h1"
	d.HomeID = &home
	d.Name = "Front lock"
	if err := repo.Update(ctx, d); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := repo.GetBySerial(ctx, "DEV-5")
	if got.HomeID == nil || *got.HomeID != "h1" || got.Name != "Front lock" {
		t.Errorf("got home=%v name=%q, want h1/Front lock", got.HomeID, got.Name)
	}

	missing := &Device{Serial: "DEV-99", Name: "x"}
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Update() missing error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_WithSQLiteRepository(t *testing.T) {
	repo, _ := setupSQLiteRepo(t)
	ctx := context.Background()
	r := NewRegistry(repo)

	d := createDevice(t, r, "Thermostat", DeviceTypeThermostat)
	if _, err := r.Invoke(ctx, d.Serial, OpTurnOn, nil); err != nil {
		t.Fatalf("turn_on error = %v", err)
	}
	if _, err := r.Invoke(ctx, d.Serial, "increase_temperature", []any{2.0}); err != nil {
		t.Fatalf("increase_temperature error = %v", err)
	}

	reloaded := NewRegistry(repo)
	if err := reloaded.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	got, err := reloaded.Resolve(ctx, d.Serial)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !got.IsOn || floatState(got.State, StateTemperature) != 24 {
		t.Errorf("reloaded on=%v temperature=%v, want on=true temperature=24", got.IsOn, got.State[StateTemperature])
	}
}

func TestRegistry_HubMembershipPersists(t *testing.T) {
	repo, _ := setupSQLiteRepo(t)
	ctx := context.Background()
	r := NewRegistry(repo)

	hub := createDevice(t, r, "Hub", DeviceTypeHub)
	lamp := createDevice(t, r, "Lamp", DeviceTypeLight)
	if err := r.AttachToHub(ctx, hub.Serial, lamp.Serial); err != nil {
		t.Fatalf("AttachToHub() error = %v", err)
	}

	stored, err := repo.GetBySerial(ctx, lamp.Serial)
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if stored.HubSerial == nil || *stored.HubSerial != hub.Serial {
		t.Fatalf("stored HubSerial = %v, want %s", stored.HubSerial, hub.Serial)
	}

	// The foreign key clears membership when the hub row goes.
	if err := r.DeleteDevice(ctx, hub.Serial); err != nil {
		t.Fatalf("DeleteDevice(hub) error = %v", err)
	}
	stored, _ = repo.GetBySerial(ctx, lamp.Serial)
	if stored.HubSerial != nil {
		t.Errorf("stored HubSerial = %v after hub delete, want nil", *stored.HubSerial)
	}
}
