package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/migrations"
)

func setupSnapshotRepo(t *testing.T) *SQLiteRepository {
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
	return NewSQLiteRepository(db.DB)
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestSQLiteRepository_SnapshotRoundTrip(t *testing.T) {
	repo := setupSnapshotRepo(t)
	ctx := context.Background()

	created := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	descs := []Descriptor{
		{
			ID: "b-second-id", DeviceSerial: "DEV-7", Operation: "set_brightness",
			Arguments: []any{30}, Schedule: mustAt(t, "23:59"), Recurring: true, CreatedAt: created,
		},
		{
			ID: "a-first-id", DeviceSerial: "DEV-3", Operation: "turn_on",
			Schedule: After(90 * time.Second), CreatedAt: created,
		},
	}

	if err := repo.SaveSnapshot(ctx, descs); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	got, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadSnapshot() = %d descriptors, want 2", len(got))
	}

	// Saved order, not ID order.
	if got[0].ID != "b-second-id" || got[1].ID != "a-first-id" {
		t.Errorf("order = %s, %s; want b-second-id, a-first-id", got[0].ID, got[1].ID)
	}
	if got[0].Schedule.Clock() != "23:59" || !got[0].Recurring {
		t.Errorf("absolute descriptor = %s recurring=%v", got[0].Schedule, got[0].Recurring)
	}
	if len(got[0].Arguments) != 1 || got[0].Arguments[0] != float64(30) {
		t.Errorf("arguments = %#v, want [30]", got[0].Arguments)
	}
	if got[1].Schedule.Delay() != 90*time.Second || got[1].Recurring {
		t.Errorf("relative descriptor = %s recurring=%v", got[1].Schedule, got[1].Recurring)
	}
	if len(got[1].Arguments) != 0 {
		t.Errorf("nil arguments loaded as %#v, want empty", got[1].Arguments)
	}
	if !got[1].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got[1].CreatedAt, created)
	}
}

func TestSQLiteRepository_SaveReplaces(t *testing.T) {
	repo := setupSnapshotRepo(t)
	ctx := context.Background()

	first := []Descriptor{{ID: "x", DeviceSerial: "DEV-1", Operation: "turn_on", Schedule: After(time.Second)}}
	if err := repo.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if err := repo.SaveSnapshot(ctx, nil); err != nil {
		t.Fatalf("SaveSnapshot(nil) error = %v", err)
	}
	got, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadSnapshot() = %d after empty save, want 0", len(got))
	}
}

func TestSQLiteRepository_RestoreIntoEngine(t *testing.T) {
	repo := setupSnapshotRepo(t)
	env := setupEngine(t, device7Types()...)
	ctx := context.Background()

	if _, err := env.devices.Invoke(ctx, "DEV-7", "turn_on", nil); err != nil {
		t.Fatalf("turn_on error = %v", err)
	}

	descs := []Descriptor{{
		ID: "persisted", DeviceSerial: "DEV-7", Operation: "set_brightness",
		Arguments: []any{30}, Schedule: After(tick),
	}}
	if err := repo.SaveSnapshot(ctx, descs); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	loaded, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	// JSON turns 30 into float64(30); it must still satisfy an int parameter.
	res := env.engine.Restore(ctx, loaded)
	if len(res.Restored) != 1 {
		t.Fatalf("Restore() = %+v, want one restored", res)
	}
	if ev := env.reporter.wait(t); ev.Outcome != OutcomeSuccess {
		t.Errorf("restored fire outcome = %s, err = %v", ev.Outcome, ev.Err)
	}
}

func TestSQLiteRepository_SubMillisecondDelays(t *testing.T) {
	repo := setupSnapshotRepo(t)
	env := setupEngine(t, device7Types()...)
	ctx := context.Background()

	fractional, err := Parse("0.0004")
	if err != nil {
		t.Fatalf("Parse(0.0004) error = %v", err)
	}

	tests := []struct {
		name      string
		schedule  Schedule
		recurring bool
	}{
		{"hour plus microseconds", After(time.Hour + 1500*time.Microsecond), true},
		{"sub-millisecond one-shot", After(400 * time.Microsecond), false},
		{"fractional seconds recurring", fractional, true},
	}

	descs := make([]Descriptor, len(tests))
	for i, tt := range tests {
		descs[i] = Descriptor{
			ID: fmt.Sprintf("sub-%d", i), DeviceSerial: "DEV-1", Operation: "turn_on",
			Schedule: tt.schedule, Recurring: tt.recurring,
		}
	}
	if err := repo.SaveSnapshot(ctx, descs); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	loaded, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(loaded) != len(tests) {
		t.Fatalf("LoadSnapshot() = %d descriptors, want %d", len(loaded), len(tests))
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := loaded[i]
			if got.Schedule.Delay() != tt.schedule.Delay() {
				t.Errorf("delay = %v, want %v", got.Schedule.Delay(), tt.schedule.Delay())
			}
			if got.Recurring {
				if err := got.Schedule.validateRecurring(); err != nil {
					t.Errorf("loaded recurring schedule invalid: %v", err)
				}
			}
		})
	}

	// Only the hour-long entry is restored so the engine is not kept busy.
	res := env.engine.Restore(ctx, loaded[:1])
	if len(res.Dropped) != 0 || len(res.Restored) != 1 {
		t.Fatalf("Restore() = %+v, want one restored", res)
	}
	v, ok := env.engine.Get(res.Restored[0])
	if !ok {
		t.Fatal("Get() = not found after restore")
	}
	if v.Schedule.Delay() != time.Hour+1500*time.Microsecond {
		t.Errorf("restored delay = %v, want 1h0m0.0015s", v.Schedule.Delay())
	}
}
