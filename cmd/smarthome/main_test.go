package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-core/internal/api"
	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smarthome-core/internal/schedule"
	"github.com/nerrad567/smarthome-core/migrations"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type logEntry struct {
	level string
	msg   string
	args  []any
}

type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *mockLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *mockLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type mockPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *mockPublisher) PublishJSON(topic string, v any, retained bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic: topic, payload: b, retained: retained})
	return p.err
}

type energyPoint struct {
	serial string
	kwh    float64
	on     bool
}

type mockWriter struct {
	fires  []influxdb.FireRecord
	energy []energyPoint
}

func (w *mockWriter) WriteScheduleFire(rec influxdb.FireRecord) { w.fires = append(w.fires, rec) }

func (w *mockWriter) WriteDeviceEnergy(serial string, kwh float64, on bool, _ time.Time) {
	w.energy = append(w.energy, energyPoint{serial: serial, kwh: kwh, on: on})
}

type mockCheck struct{ err error }

func (c mockCheck) HealthCheck(context.Context) error { return c.err }

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeConfig writes a config with every network surface disabled and
// points SMARTHOME_CONFIG at it.
func writeConfig(t *testing.T, dbPath string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
site:
  id: test-site
  timezone: UTC

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

api:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

scheduler:
  restore_on_startup: true
  snapshot_on_shutdown: true

frontend:
  menu: false
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv(configEnvVar, configPath)
	t.Setenv("SMARTHOME_FRONTEND_MENU", "")
	t.Setenv("SMARTHOME_MQTT_ENABLED", "")
}

func openTestDB(t *testing.T, path string) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: path, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Test cleanup
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func newEngine(t *testing.T, devices *device.Registry, reporters ...schedule.Reporter) *schedule.Engine {
	t.Helper()
	engine, err := schedule.NewEngine(schedule.EngineOptions{
		Store:     schedule.NewStore(),
		Devices:   devices,
		Reporters: reporters,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		engine.Stop(ctx) //nolint:errcheck // Test cleanup
	})
	return engine
}

func memoryRegistry(t *testing.T) (*device.Registry, string) {
	t.Helper()
	devices := device.NewRegistry(device.NewMemoryRepository())
	d := &device.Device{Type: device.DeviceTypeLight, Name: "Porch"}
	if err := devices.CreateDevice(context.Background(), d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	return devices, d.Serial
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestGetConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configEnvVar, "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig(default) error = %v, want built-in defaults", err)
	}
	if cfg.Site.ID == "" {
		t.Error("default config should have a site ID")
	}

	if _, err := loadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Error("loadConfig() should fail for an explicitly named missing file")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(configEnvVar, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_RestoresAndSnapshotsSchedules(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "smarthome.db")
	writeConfig(t, dbPath)

	// Seed a device and a snapshot as a previous run would have left them.
	ctx := context.Background()
	db := openTestDB(t, dbPath)
	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	d := &device.Device{Type: device.DeviceTypeLight, Name: "Porch"}
	if err := devices.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	repo := schedule.NewSQLiteRepository(db.DB)
	seed := []schedule.Descriptor{
		{ID: "keep", DeviceSerial: d.Serial, Operation: device.OpTurnOn, Schedule: schedule.After(time.Hour)},
		{ID: "orphan", DeviceSerial: "DEV-404", Operation: device.OpTurnOn, Schedule: schedule.After(time.Hour)},
	}
	if err := repo.SaveSnapshot(ctx, seed); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	db.Close() //nolint:errcheck // Reopened by run

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if err := run(runCtx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	db = openTestDB(t, dbPath)
	defer db.Close() //nolint:errcheck // Test cleanup
	got, err := schedule.NewSQLiteRepository(db.DB).LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "keep" {
		t.Fatalf("snapshot after run = %+v, want only the restorable entry", got)
	}
	if got[0].Schedule.Delay() != time.Hour {
		t.Errorf("restored delay = %v, want 1h", got[0].Schedule.Delay())
	}
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	if err := healthCheck(ctx, map[string]api.HealthChecker{"database": mockCheck{}}); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}

	broken := map[string]api.HealthChecker{"database": mockCheck{}, "mqtt": mockCheck{err: errors.New("down")}}
	err := healthCheck(ctx, broken)
	if err == nil || !strings.Contains(err.Error(), "mqtt: down") {
		t.Errorf("healthCheck() error = %v, want mqtt failure", err)
	}
}

func TestCommandHandler(t *testing.T) {
	devices, serial := memoryRegistry(t)
	engine := newEngine(t, devices)
	h := &commandHandler{devices: devices, scheduler: engine, log: &mockLogger{}}
	topic := "smarthome/device/command/" + serial

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{name: "missing serial", topic: "smarthome/device/command/", payload: `{"operation":"turn_on"}`, wantErr: errMissingSerial},
		{name: "bad json", topic: topic, payload: `{`},
		{name: "missing operation", topic: topic, payload: `{}`, wantErr: errMissingOperation},
		{name: "invoke", topic: topic, payload: `{"operation":"turn_on"}`},
		{name: "invoke with args", topic: topic, payload: `{"operation":"set_brightness","arguments":[40]}`},
		{name: "turn off", topic: topic, payload: `{"operation":"turn_off"}`},
		{name: "rejected while off", topic: topic, payload: `{"operation":"set_brightness","arguments":[10]}`, wantErr: device.ErrDeviceRejected},
		{name: "unknown device", topic: "smarthome/device/command/DEV-404", payload: `{"operation":"turn_on"}`, wantErr: device.ErrDeviceNotFound},
		{name: "schedule", topic: topic, payload: `{"operation":"turn_on","schedule":"07:30","recurring":true}`},
		{name: "bad schedule", topic: topic, payload: `{"operation":"turn_on","schedule":"7pm"}`, wantErr: schedule.ErrInvalidSchedule},
		{name: "schedule unknown op", topic: topic, payload: `{"operation":"dance","schedule":"60"}`, wantErr: schedule.ErrUnknownOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.handle(tt.topic, []byte(tt.payload))
			switch {
			case tt.name == "bad json":
				if err == nil {
					t.Error("handle() should fail on malformed JSON")
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("handle() error = %v, want %v", err, tt.wantErr)
				}
			case err != nil:
				t.Errorf("handle() error = %v", err)
			}
		})
	}

	d, err := devices.Resolve(context.Background(), serial)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if d.IsOn || d.State[device.StateBrightness] != 40 {
		t.Errorf("device after commands = on:%v brightness:%v, want off with brightness 40", d.IsOn, d.State[device.StateBrightness])
	}
	if views := engine.ListPending(serial); len(views) != 1 || !views[0].Recurring {
		t.Errorf("ListPending() = %+v, want one recurring entry", views)
	}
}

func TestFireReporters(t *testing.T) {
	pub := &mockPublisher{err: errors.New("not connected")}
	w := &mockWriter{}
	log := &mockLogger{}

	ev := schedule.Event{
		DescriptorID: "abc",
		DeviceSerial: "DEV-7",
		Operation:    "set_brightness",
		Outcome:      schedule.OutcomeFailure,
		Duration:     3 * time.Millisecond,
		FiredAt:      time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC),
		Err:          schedule.ErrDeviceRejected,
	}
	for _, r := range []schedule.Reporter{logReporter(log), firePublisher{pub: pub, log: log}, fireRecorder{w: w}} {
		r.Report(ev)
	}

	if len(pub.messages) != 1 || pub.messages[0].topic != "smarthome/schedule/fired/DEV-7" || pub.messages[0].retained {
		t.Fatalf("published = %+v, want one unretained fire event", pub.messages)
	}
	var msg map[string]any
	if err := json.Unmarshal(pub.messages[0].payload, &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg["outcome"] != "failure" || msg["error"] != schedule.ErrDeviceRejected.Error() {
		t.Errorf("payload = %v", msg)
	}

	if len(w.fires) != 1 || w.fires[0].Outcome != "failure" || w.fires[0].Duration != 3*time.Millisecond {
		t.Errorf("influx fires = %+v", w.fires)
	}

	levels := map[string]int{}
	for _, e := range log.entries {
		levels[e.level]++
	}
	if levels["warn"] != 1 || levels["debug"] != 1 {
		t.Errorf("log levels = %v, want one warn for the failure and one debug for the publish error", levels)
	}
}

func TestStateFanout(t *testing.T) {
	pub := &mockPublisher{}
	w := &mockWriter{}
	fanout := stateFanout{statePublisher{pub: pub, log: &mockLogger{}}, energyRecorder{w: w}}

	fanout.DeviceStateChanged(device.Device{Serial: "DEV-3", Type: device.DeviceTypeLight, IsOn: true, EnergyConsumption: 1.5})

	if len(pub.messages) != 1 || pub.messages[0].topic != "smarthome/device/state/DEV-3" || !pub.messages[0].retained {
		t.Errorf("published = %+v, want one retained state message", pub.messages)
	}
	if len(w.energy) != 1 || w.energy[0] != (energyPoint{serial: "DEV-3", kwh: 1.5, on: true}) {
		t.Errorf("energy points = %+v", w.energy)
	}
}

func TestRegistryObserverReceivesInvocations(t *testing.T) {
	devices, serial := memoryRegistry(t)
	pub := &mockPublisher{}
	devices.SetStateObserver(stateFanout{statePublisher{pub: pub, log: &mockLogger{}}})

	if _, err := devices.Invoke(context.Background(), serial, device.OpTurnOn, nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	var d device.Device
	if err := json.Unmarshal(pub.messages[0].payload, &d); err != nil {
		t.Fatalf("payload is not a device: %v", err)
	}
	if d.Serial != serial || !d.IsOn {
		t.Errorf("published device = %+v", d)
	}
}
