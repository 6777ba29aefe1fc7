package menu

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/home"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/schedule"
	"github.com/nerrad567/smarthome-core/internal/user"
	"github.com/nerrad567/smarthome-core/migrations"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

type testEnv struct {
	menu    *Menu
	devices *device.Registry
	homes   *home.Service
	users   *user.Service
	engine  *schedule.Engine
	ctx     context.Context
}

func newTestEnv(t *testing.T) *testEnv {
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
	users := user.NewService(user.NewSQLiteRepository(db.DB), homes, devices)
	engine, err := schedule.NewEngine(schedule.EngineOptions{Store: schedule.NewStore(), Devices: devices})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		engine.Stop(stopCtx) //nolint:errcheck // Test cleanup
	})

	m, err := New(Options{Devices: devices, Homes: homes, Users: users, Scheduler: engine})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{menu: m, devices: devices, homes: homes, users: users, engine: engine, ctx: ctx}
}

func (e *testEnv) addDevice(t *testing.T, typ device.DeviceType, name string) string {
	t.Helper()
	d := &device.Device{Type: typ, Name: name}
	if err := e.devices.CreateDevice(e.ctx, d); err != nil {
		t.Fatalf("CreateDevice(%s) error = %v", name, err)
	}
	return d.Serial
}

// exec runs one line and returns its output, failing the test on error.
func (e *testEnv) exec(t *testing.T, line string) string {
	t.Helper()
	var out bytes.Buffer
	if err := e.menu.Execute(e.ctx, &out, line); err != nil {
		t.Fatalf("Execute(%q) error = %v", line, err)
	}
	return out.String()
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestTokenize(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"devices", []string{"devices"}},
		{"  add   light  Hall ", []string{"add", "light", "Hall"}},
		{`add light "Hall Light"`, []string{"add", "light", "Hall Light"}},
		{`add light 'Kid''s Lamp'`, []string{"add", "light", "Kids Lamp"}},
		{`add light Kid\'s\ Lamp`, []string{"add", "light", "Kid's Lamp"}},
		{`do DEV-1 set_colour ""`, []string{"do", "DEV-1", "set_colour", ""}},
		{"a\tb", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := tokenize(tt.line); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tokenize(%q) = %#v, want %#v", tt.line, got, tt.want)
			}
		})
	}
}

func TestSplitArgs(t *testing.T) {
	head, tail := splitArgs([]string{"DEV-1", "set_brightness", "60", "--", "40"})
	if !reflect.DeepEqual(head, []string{"DEV-1", "set_brightness", "60"}) {
		t.Errorf("head = %v", head)
	}
	if !reflect.DeepEqual(tail, []string{"40"}) {
		t.Errorf("tail = %v", tail)
	}

	head, tail = splitArgs([]string{"a", "b"})
	if len(head) != 2 || tail != nil {
		t.Errorf("splitArgs without separator = %v, %v", head, tail)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() with no collaborators should fail")
	}
}

func TestRun_Session(t *testing.T) {
	env := newTestEnv(t)
	in := strings.NewReader("help\nadd light \"Hall Light\"\n\nnonsense\ndevices\nquit\nshow DEV-1\n")
	var out bytes.Buffer

	if err := env.menu.Run(env.ctx, in, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := out.String()
	assertContains(t, got,
		"Smart home ready",
		"schedule <serial> <op>",
		"created DEV-1 Hall Light (light)",
		`error: unknown command "nonsense"`,
		"SERIAL",
		"bye",
	)
	if strings.Contains(got, "pending operations") {
		t.Error("commands after quit should not run")
	}
	if strings.Count(got, "quit") != 1 {
		t.Error("help should list quit once and hide its exit alias")
	}
}

func TestRun_EOF(t *testing.T) {
	env := newTestEnv(t)
	var out bytes.Buffer
	if err := env.menu.Run(env.ctx, strings.NewReader("devices"), &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertContains(t, out.String(), "no devices")
}

func TestRun_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(env.ctx)
	cancel()
	var out bytes.Buffer
	if err := env.menu.Run(ctx, strings.NewReader("devices\n"), &out); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestDeviceCommands(t *testing.T) {
	env := newTestEnv(t)

	assertContains(t, env.exec(t, "add Thermostat Landing"), "created DEV-1 Landing (thermostat)")
	assertContains(t, env.exec(t, "ops DEV-1"), "set_temperature <celsius:float>", "requires power")

	assertContains(t, env.exec(t, "do DEV-1 turn_on"), "DEV-1 turn_on: ok")
	env.exec(t, "do DEV-1 set_temperature 21.5")
	assertContains(t, env.exec(t, "do DEV-1 toggle"), "DEV-1 toggle: false")

	show := env.exec(t, "show DEV-1")
	assertContains(t, show, "DEV-1 Landing (thermostat) OFF", "21.5", "pending operations: 0")

	assertContains(t, env.exec(t, "remove DEV-1"), "removed DEV-1")
	assertContains(t, env.exec(t, "devices"), "no devices")
}

func TestCommandErrors(t *testing.T) {
	env := newTestEnv(t)
	light := env.addDevice(t, device.DeviceTypeLight, "Desk")

	tests := []struct {
		line    string
		wantErr error
		wantMsg string
	}{
		{line: "teleport", wantMsg: "unknown command"},
		{line: "add", wantMsg: "usage: add"},
		{line: "add toaster Bread", wantErr: device.ErrInvalidDeviceType},
		{line: "show DEV-99", wantErr: device.ErrDeviceNotFound},
		{line: "do DEV-99 turn_on", wantErr: device.ErrDeviceNotFound},
		{line: "do " + light + " dance", wantErr: device.ErrUnknownOperation},
		{line: "do " + light + " set_brightness 40", wantErr: device.ErrDeviceRejected},
		{line: "do " + light + " set_brightness bright", wantErr: device.ErrInvalidArguments},
		{line: "schedule " + light + " turn_on", wantMsg: "usage: schedule"},
		{line: "schedule " + light + " turn_on 10 often", wantMsg: "usage: schedule"},
		{line: "schedule " + light + " turn_on 25:00", wantErr: schedule.ErrInvalidSchedule},
		{line: "schedule " + light + " turn_on 0 repeat", wantErr: schedule.ErrInvalidSchedule},
		{line: "schedule DEV-99 turn_on 10", wantErr: schedule.ErrUnknownDevice},
		{line: "schedule " + light + " dance 10", wantErr: schedule.ErrUnknownOperation},
		{line: "schedule " + light + " set_brightness 10 -- high", wantErr: device.ErrInvalidArguments},
		{line: "networks add Lab not-an-ip", wantErr: home.ErrInvalidAddress},
		{line: "homes add missing Flat", wantErr: home.ErrNetworkNotFound},
		{line: "security missing", wantErr: home.ErrHomeNotFound},
		{line: "power missing sideways", wantMsg: "usage: power"},
		{line: "users add admin", wantErr: user.ErrReservedUsername},
		{line: "users add bad!name", wantErr: user.ErrInvalidUsername},
		{line: "connect nobody missing", wantErr: user.ErrUserNotFound},
		{line: "hub " + light, wantErr: device.ErrNotHub},
		{line: "hub DEV-99 attach " + light, wantErr: device.ErrDeviceNotFound},
		{line: "hub " + light + " dance", wantMsg: "usage: hub"},
		{line: "hubusers " + light, wantErr: device.ErrNotHub},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var out bytes.Buffer
			err := env.menu.Execute(env.ctx, &out, tt.line)
			if err == nil {
				t.Fatalf("Execute(%q) should fail", tt.line)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Execute(%q) error = %q, want it to contain %q", tt.line, err, tt.wantMsg)
			}
		})
	}
}

func TestScheduleCommands(t *testing.T) {
	env := newTestEnv(t)
	light := env.addDevice(t, device.DeviceTypeLight, "Porch")

	assertContains(t, env.exec(t, "pending"), "no scheduled operations")

	out := env.exec(t, "schedule "+light+" set_brightness 3600 -- 40")
	assertContains(t, out, "scheduled ", "set_brightness on "+light+" in 1h0m0s")
	assertContains(t, env.exec(t, "schedule "+light+" turn_on 23:59 repeat"), "at 23:59 daily")
	assertContains(t, env.exec(t, "schedule "+light+" toggle 90 REPEAT"), "every 1m30s")

	views := env.engine.ListPending(light)
	if len(views) != 3 {
		t.Fatalf("ListPending() = %d entries, want 3", len(views))
	}
	if got := views[0].Arguments; !reflect.DeepEqual(got, []any{40}) {
		t.Errorf("parsed arguments = %#v, want [40]", got)
	}

	assertContains(t, env.exec(t, "pending "+light), views[0].ID, "set_brightness", "40", "turn_on")
	assertContains(t, env.exec(t, "show "+light), "pending operations: 3")
	assertContains(t, env.exec(t, "pending DEV-42"), "no scheduled operations")

	assertContains(t, env.exec(t, "cancel "+views[0].ID), "cancelled "+views[0].ID)
	assertContains(t, env.exec(t, "cancel "+views[0].ID), "is not pending")
	if n := env.engine.PendingCount(); n != 2 {
		t.Errorf("PendingCount() = %d after cancel, want 2", n)
	}

	assertContains(t, env.exec(t, "remove "+light), "2 scheduled operation(s) still target")
}

func TestHomeCommands(t *testing.T) {
	env := newTestEnv(t)
	lock := env.addDevice(t, device.DeviceTypeLock, "Front Door")
	lamp := env.addDevice(t, device.DeviceTypeLight, "Lamp")
	env.exec(t, "do "+lamp+" set_energy_consumption 1.5")

	assertContains(t, env.exec(t, "networks"), "no networks")
	assertContains(t, env.exec(t, "networks add Lab 192.168.1.10"), "created network")

	networks, err := env.homes.ListNetworks(env.ctx)
	if err != nil || len(networks) != 1 {
		t.Fatalf("ListNetworks() = %v, %v", networks, err)
	}
	netID := networks[0].ID
	assertContains(t, env.exec(t, "networks"), "Lab", "192.168.1.10")

	assertContains(t, env.exec(t, "homes"), "no homes")
	assertContains(t, env.exec(t, `homes add `+netID+` "Beach House"`), "created home")
	homes, err := env.homes.ListHomes(env.ctx, netID)
	if err != nil || len(homes) != 1 {
		t.Fatalf("ListHomes() = %v, %v", homes, err)
	}
	homeID := homes[0].ID
	assertContains(t, env.exec(t, "homes "+netID), "Beach House")

	assertContains(t, env.exec(t, "assign "+homeID+" "+lock), lock+" is now in home")
	env.exec(t, "assign "+homeID+" "+lamp)
	assertContains(t, env.exec(t, "devices "+homeID), lock, lamp)

	assertContains(t, env.exec(t, "power "+homeID+" on"), "switched on 2 device(s)")
	assertContains(t, env.exec(t, "energy "+homeID), "Beach House: 1.5 kWh from 2 of 2 device(s)")
	assertContains(t, env.exec(t, "security "+homeID), "NOT SECURE", "score 2/10", "1 security device(s), 1 active")

	assertContains(t, env.exec(t, "power "+homeID+" off"), "switched off 2 device(s)")
	assertContains(t, env.exec(t, "energy "+homeID), "0 kWh from 0 of 2")
}

func TestUserCommands(t *testing.T) {
	env := newTestEnv(t)

	assertContains(t, env.exec(t, "users"), "no users")
	assertContains(t, env.exec(t, `users add "Alice Smith"`), "created user", "Alice Smith")
	assertContains(t, env.exec(t, "users add bob"), "created user")
	assertContains(t, env.exec(t, "users count"), "2 user(s)")

	var out bytes.Buffer
	if err := env.menu.Execute(env.ctx, &out, "users add BOB"); !errors.Is(err, user.ErrUsernameExists) {
		t.Errorf("duplicate users add error = %v, want ErrUsernameExists", err)
	}

	env.exec(t, "networks add Lab 192.168.1.10")
	networks, err := env.homes.ListNetworks(env.ctx)
	if err != nil || len(networks) != 1 {
		t.Fatalf("ListNetworks() = %v, %v", networks, err)
	}
	netID := networks[0].ID

	assertContains(t, env.exec(t, "connect bob "+netID), "bob connected to "+netID)
	assertContains(t, env.exec(t, "users "+netID), "bob")
	if strings.Contains(env.exec(t, "users "+netID), "Alice") {
		t.Error("users <network> lists a user on no network")
	}
	assertContains(t, env.exec(t, "disconnect bob"), "bob disconnected")
	if err := env.menu.Execute(env.ctx, &out, "disconnect bob"); !errors.Is(err, user.ErrNotConnected) {
		t.Errorf("second disconnect error = %v, want ErrNotConnected", err)
	}

	assertContains(t, env.exec(t, "users remove bob"), "removed user bob")
	assertContains(t, env.exec(t, "users count"), "1 user(s)")
}

func TestHubCommands(t *testing.T) {
	env := newTestEnv(t)
	hub := env.addDevice(t, device.DeviceTypeHub, "Hall hub")
	lamp := env.addDevice(t, device.DeviceTypeLight, "Lamp")
	env.exec(t, "users add carol")

	assertContains(t, env.exec(t, "hub "+hub), "no devices on "+hub)
	assertContains(t, env.exec(t, "hub "+hub+" attach "+lamp), "attached "+lamp+" to "+hub)
	assertContains(t, env.exec(t, "hub "+hub), lamp, "Lamp")

	assertContains(t, env.exec(t, "hubusers "+hub), "no users")
	assertContains(t, env.exec(t, "hubusers "+hub+" add carol"), "carol added to "+hub)
	assertContains(t, env.exec(t, "hubusers "+hub), "carol")
	assertContains(t, env.exec(t, "hubusers "+hub+" remove carol"), "carol removed from "+hub)

	var out bytes.Buffer
	if err := env.menu.Execute(env.ctx, &out, "hubusers "+hub+" remove carol"); !errors.Is(err, user.ErrNotHubUser) {
		t.Errorf("second hubusers remove error = %v, want ErrNotHubUser", err)
	}

	assertContains(t, env.exec(t, "hub "+hub+" detach "+lamp), "detached "+lamp+" from "+hub)
	if err := env.menu.Execute(env.ctx, &out, "hub "+hub+" detach "+lamp); !errors.Is(err, device.ErrNotInHub) {
		t.Errorf("second detach error = %v, want ErrNotInHub", err)
	}
}
