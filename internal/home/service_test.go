package home

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/migrations"
)

type testEnv struct {
	svc     *Service
	devices *device.Registry
	ctx     context.Context
}

// setupService wires a Service and a device registry over one in-memory
// SQLite database, as cmd/smarthome does.
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
	return &testEnv{
		svc:     NewService(NewSQLiteRepository(db.DB), devices),
		devices: devices,
		ctx:     ctx,
	}
}

func (e *testEnv) addDevice(t *testing.T, homeID, name string, dt device.DeviceType, on bool, kwh float64) string {
	t.Helper()
	d := &device.Device{Name: name, Type: dt}
	if err := e.devices.CreateDevice(e.ctx, d); err != nil {
		t.Fatalf("CreateDevice(%s) error = %v", name, err)
	}
	if err := e.svc.AssignDevice(e.ctx, homeID, d.Serial); err != nil {
		t.Fatalf("AssignDevice(%s) error = %v", d.Serial, err)
	}
	if kwh > 0 {
		if _, err := e.devices.Invoke(e.ctx, d.Serial, device.OpSetEnergyConsumption, []any{kwh}); err != nil {
			t.Fatalf("set_energy_consumption error = %v", err)
		}
	}
	if on {
		if _, err := e.devices.Invoke(e.ctx, d.Serial, device.OpTurnOn, nil); err != nil {
			t.Fatalf("turn_on error = %v", err)
		}
	}
	return d.Serial
}

func (e *testEnv) newHome(t *testing.T) (*Network, *Home) {
	t.Helper()
	n, err := e.svc.CreateNetwork(e.ctx, "LAN", "192.168.1.1")
	if err != nil {
		t.Fatalf("CreateNetwork() error = %v", err)
	}
	h, err := e.svc.CreateHome(e.ctx, n.ID, "Flat 2")
	if err != nil {
		t.Fatalf("CreateHome() error = %v", err)
	}
	return n, h
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestService_CreateNetworkValidation(t *testing.T) {
	env := setupService(t)

	tests := []struct {
		name    string
		netName string
		ip      string
		wantErr error
	}{
		{"empty name", " ", "10.0.0.1", ErrInvalidName},
		{"bad address", "LAN", "10.0.0.300", ErrInvalidAddress},
		{"hostname", "LAN", "router.local", ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.CreateNetwork(env.ctx, tt.netName, tt.ip); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateNetwork() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := env.svc.CreateNetwork(env.ctx, "LAN", "10.0.0.1"); err != nil {
		t.Fatalf("CreateNetwork() error = %v", err)
	}
	if _, err := env.svc.CreateNetwork(env.ctx, "Other", " 10.0.0.1 "); !errors.Is(err, ErrNetworkExists) {
		t.Errorf("duplicate address error = %v, want ErrNetworkExists", err)
	}
}

func TestService_CreateHomeRequiresNetwork(t *testing.T) {
	env := setupService(t)
	if _, err := env.svc.CreateHome(env.ctx, "missing", "Flat"); !errors.Is(err, ErrNetworkNotFound) {
		t.Errorf("CreateHome() error = %v, want ErrNetworkNotFound", err)
	}
}

func TestService_ListHomes(t *testing.T) {
	env := setupService(t)
	n1, _ := env.svc.CreateNetwork(env.ctx, "A", "10.0.0.1")
	n2, _ := env.svc.CreateNetwork(env.ctx, "B", "10.0.0.2")
	_, _ = env.svc.CreateHome(env.ctx, n1.ID, "Alpha")
	_, _ = env.svc.CreateHome(env.ctx, n2.ID, "Beta")

	all, err := env.svc.ListHomes(env.ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListHomes(\"\") = %d, %v; want 2", len(all), err)
	}
	one, _ := env.svc.ListHomes(env.ctx, n2.ID)
	if len(one) != 1 || one[0].Name != "Beta" {
		t.Errorf("ListHomes(n2) = %+v, want [Beta]", one)
	}
}

func TestService_SecurityAssessment(t *testing.T) {
	env := setupService(t)
	_, h := env.newHome(t)

	env.addDevice(t, h.ID, "Front lock", device.DeviceTypeLock, true, 0)
	env.addDevice(t, h.ID, "Porch cam", device.DeviceTypeCamera, true, 0)
	env.addDevice(t, h.ID, "Bell", device.DeviceTypeDoorbell, false, 0)
	env.addDevice(t, h.ID, "Lamp", device.DeviceTypeLight, true, 0)

	report, err := env.svc.SecurityAssessment(env.ctx, h.ID)
	if err != nil {
		t.Fatalf("SecurityAssessment() error = %v", err)
	}
	if report.Score != 5 || report.Secure {
		t.Errorf("score = %d secure = %v, want 5 and not secure", report.Score, report.Secure)
	}
	if report.SecurityDevices != 3 || report.ActiveSecurity != 2 || report.TotalDevices != 4 {
		t.Errorf("report = %+v, want 3 security (2 active) of 4", report)
	}

	env.addDevice(t, h.ID, "Back door", device.DeviceTypeDoor, false, 0)
	report, _ = env.svc.SecurityAssessment(env.ctx, h.ID)
	if report.Score != 6 || !report.Secure {
		t.Errorf("score = %d secure = %v, want 6 and secure", report.Score, report.Secure)
	}

	if _, err := env.svc.SecurityAssessment(env.ctx, "missing"); !errors.Is(err, ErrHomeNotFound) {
		t.Errorf("SecurityAssessment(missing) error = %v, want ErrHomeNotFound", err)
	}
}

func TestService_EnergyReport(t *testing.T) {
	env := setupService(t)
	_, h := env.newHome(t)

	env.addDevice(t, h.ID, "Heater", device.DeviceTypeAppliance, true, 2.5)
	env.addDevice(t, h.ID, "Lamp", device.DeviceTypeLight, true, 0.25)
	env.addDevice(t, h.ID, "Fridge", device.DeviceTypeAppliance, false, 10)

	report, err := env.svc.EnergyReport(env.ctx, h.ID)
	if err != nil {
		t.Fatalf("EnergyReport() error = %v", err)
	}
	if report.TotalKWh != 2.75 || report.ActiveDevices != 2 || report.TotalDevices != 3 {
		t.Errorf("report = %+v, want 2.75 kWh from 2 of 3", report)
	}
}

func TestService_SetPowerAll(t *testing.T) {
	env := setupService(t)
	_, h := env.newHome(t)
	a := env.addDevice(t, h.ID, "Lamp", device.DeviceTypeLight, false, 0)
	b := env.addDevice(t, h.ID, "Speaker", device.DeviceTypeSpeaker, false, 0)

	res, err := env.svc.SetPowerAll(env.ctx, h.ID, true)
	if err != nil {
		t.Fatalf("SetPowerAll() error = %v", err)
	}
	if len(res.Changed) != 2 || len(res.Failed) != 0 {
		t.Errorf("result = %+v, want both changed", res)
	}
	for _, serial := range []string{a, b} {
		d, _ := env.devices.Resolve(env.ctx, serial)
		if !d.IsOn {
			t.Errorf("%s is off after SetPowerAll(on)", serial)
		}
	}

	res, _ = env.svc.SetPowerAll(env.ctx, h.ID, false)
	if len(res.Changed) != 2 {
		t.Errorf("SetPowerAll(off) changed %d, want 2", len(res.Changed))
	}
}

func TestService_DeleteHomeDeletesDevices(t *testing.T) {
	env := setupService(t)
	_, h := env.newHome(t)
	serial := env.addDevice(t, h.ID, "Lamp", device.DeviceTypeLight, false, 0)

	stray := &device.Device{Name: "Unassigned", Type: device.DeviceTypeHub}
	_ = env.devices.CreateDevice(env.ctx, stray)

	if err := env.svc.DeleteHome(env.ctx, h.ID); err != nil {
		t.Fatalf("DeleteHome() error = %v", err)
	}
	if _, err := env.devices.Resolve(env.ctx, serial); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("device in deleted home still resolves: %v", err)
	}
	if _, err := env.devices.Resolve(env.ctx, stray.Serial); err != nil {
		t.Errorf("unassigned device was removed: %v", err)
	}
	if err := env.svc.DeleteHome(env.ctx, h.ID); !errors.Is(err, ErrHomeNotFound) {
		t.Errorf("second DeleteHome() error = %v, want ErrHomeNotFound", err)
	}
}

func TestService_DeleteNetworkCascades(t *testing.T) {
	env := setupService(t)
	n, h := env.newHome(t)
	serial := env.addDevice(t, h.ID, "Lock", device.DeviceTypeLock, false, 0)

	devices, err := env.svc.NetworkDevices(env.ctx, n.ID)
	if err != nil || len(devices) != 1 {
		t.Fatalf("NetworkDevices() = %d, %v; want 1", len(devices), err)
	}

	if err := env.svc.DeleteNetwork(env.ctx, n.ID); err != nil {
		t.Fatalf("DeleteNetwork() error = %v", err)
	}
	if _, err := env.svc.GetHome(env.ctx, h.ID); !errors.Is(err, ErrHomeNotFound) {
		t.Errorf("home survived its network: %v", err)
	}
	if _, err := env.devices.Resolve(env.ctx, serial); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("device survived its network: %v", err)
	}
	if err := env.svc.DeleteNetwork(env.ctx, n.ID); !errors.Is(err, ErrNetworkNotFound) {
		t.Errorf("second DeleteNetwork() error = %v, want ErrNetworkNotFound", err)
	}
}

func TestService_AssignAndUnassign(t *testing.T) {
	env := setupService(t)
	_, h := env.newHome(t)
	d := &device.Device{Name: "Cam", Type: device.DeviceTypeCamera}
	_ = env.devices.CreateDevice(env.ctx, d)

	if err := env.svc.AssignDevice(env.ctx, "missing", d.Serial); !errors.Is(err, ErrHomeNotFound) {
		t.Errorf("AssignDevice(missing home) error = %v, want ErrHomeNotFound", err)
	}
	if err := env.svc.AssignDevice(env.ctx, h.ID, "DEV-404"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("AssignDevice(missing device) error = %v, want ErrDeviceNotFound", err)
	}
	if err := env.svc.AssignDevice(env.ctx, h.ID, d.Serial); err != nil {
		t.Fatalf("AssignDevice() error = %v", err)
	}
	in, _ := env.svc.Devices(env.ctx, h.ID)
	if len(in) != 1 {
		t.Fatalf("Devices() = %d, want 1", len(in))
	}

	if err := env.svc.UnassignDevice(env.ctx, d.Serial); err != nil {
		t.Fatalf("UnassignDevice() error = %v", err)
	}
	in, _ = env.svc.Devices(env.ctx, h.ID)
	if len(in) != 0 {
		t.Errorf("Devices() after unassign = %d, want 0", len(in))
	}
}
