package schedule

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func mustAt(t *testing.T, clock string) Schedule {
	t.Helper()
	s, err := At(clock)
	if err != nil {
		t.Fatalf("At(%q) error = %v", clock, err)
	}
	return s
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestParse(t *testing.T) {
	tests := []struct {
		raw      string
		wantKind Kind
		wantStr  string
		wantErr  bool
	}{
		{raw: "23:59", wantKind: KindAbsolute, wantStr: "at 23:59"},
		{raw: "00:00", wantKind: KindAbsolute, wantStr: "at 00:00"},
		{raw: " 07:05 ", wantKind: KindAbsolute, wantStr: "at 07:05"},
		{raw: "90", wantKind: KindRelative, wantStr: "in 1m30s"},
		{raw: "2.5", wantKind: KindRelative, wantStr: "in 2.5s"},
		{raw: "0", wantKind: KindRelative, wantStr: "in 0s"},
		{raw: "1m30s", wantKind: KindRelative, wantStr: "in 1m30s"},
		{raw: "25:00", wantErr: true},
		{raw: "12:60", wantErr: true},
		{raw: "7:30", wantErr: true},
		{raw: "-5", wantErr: true},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "NaN", wantErr: true},
		{raw: "+Inf", wantErr: true},
		{raw: "1e10", wantErr: true},
		{raw: "9.3e9", wantErr: true},
		{raw: "1e300", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSchedule) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidSchedule", tt.raw, err)
				}
				if got.Kind() != "" {
					t.Errorf("Parse(%q) returned non-zero schedule %v on error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.raw, err)
			}
			if got.Kind() != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", got.Kind(), tt.wantKind)
			}
			if got.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", got.String(), tt.wantStr)
			}
		})
	}
}

func TestAfterSeconds_Range(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    time.Duration
		wantMsg string
	}{
		{name: "fraction", seconds: 0.0004, want: 400 * time.Microsecond},
		{name: "an hour", seconds: 3600, want: time.Hour},
		{name: "too long", seconds: 1e10, wantMsg: "exceeds the maximum"},
		{name: "far too long", seconds: 1e300, wantMsg: "exceeds the maximum"},
		{name: "negative", seconds: -1, wantMsg: "is negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AfterSeconds(tt.seconds)
			if tt.wantMsg != "" {
				if !errors.Is(err, ErrInvalidSchedule) {
					t.Fatalf("AfterSeconds(%v) error = %v, want ErrInvalidSchedule", tt.seconds, err)
				}
				if !strings.Contains(err.Error(), tt.wantMsg) {
					t.Errorf("AfterSeconds(%v) error = %q, want it to mention %q", tt.seconds, err, tt.wantMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("AfterSeconds(%v) error = %v", tt.seconds, err)
			}
			if got.Delay() != tt.want {
				t.Errorf("Delay() = %v, want %v", got.Delay(), tt.want)
			}
		})
	}
}

func TestDelayFrom_Absolute(t *testing.T) {
	loc := time.UTC
	day := func(h, m, s int) time.Time { return time.Date(2026, 10, 16, h, m, s, 0, loc) }

	tests := []struct {
		name  string
		clock string
		now   time.Time
		want  time.Duration
	}{
		{"later today", "23:59", day(23, 58, 0), time.Minute},
		{"exactly now rolls to tomorrow", "23:59", day(23, 59, 0), 24 * time.Hour},
		{"just passed", "23:59", day(23, 59, 30), 24*time.Hour - 30*time.Second},
		{"midnight", "00:00", day(23, 58, 0), 2 * time.Minute},
		{"morning from evening", "07:30", day(20, 0, 0), 11*time.Hour + 30*time.Minute},
		{"sub-second now", "12:00", day(11, 59, 59).Add(250 * time.Millisecond), 750 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustAt(t, tt.clock).DelayFrom(tt.now)
			if got != tt.want {
				t.Errorf("DelayFrom(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestDelayFrom_UsesLocationOfNow(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2026, 10, 16, 6, 0, 0, 0, loc)

	got := mustAt(t, "07:00").DelayFrom(now)
	if got != time.Hour {
		t.Errorf("DelayFrom() = %v, want 1h in the caller's zone", got)
	}
}

func TestDelayFrom_Relative(t *testing.T) {
	s := After(90 * time.Second)
	if got := s.DelayFrom(time.Now()); got != 90*time.Second {
		t.Errorf("DelayFrom() = %v, want 90s", got)
	}
}

func TestValidate(t *testing.T) {
	if err := (Schedule{}).Validate(); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("zero Schedule Validate() = %v, want ErrInvalidSchedule", err)
	}
	if err := After(-time.Second).Validate(); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("negative delay Validate() = %v, want ErrInvalidSchedule", err)
	}
	if err := After(0).Validate(); err != nil {
		t.Errorf("zero delay one-shot Validate() = %v, want nil", err)
	}
	if err := After(0).validateRecurring(); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("zero delay recurring validateRecurring() = %v, want ErrInvalidSchedule", err)
	}
	if err := mustAt(t, "12:00").validateRecurring(); err != nil {
		t.Errorf("absolute validateRecurring() = %v, want nil", err)
	}
}

func TestScheduleJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "relative object", in: `{"kind":"relative","seconds":30}`, want: "in 30s"},
		{name: "absolute object", in: `{"kind":"absolute","at":"06:45"}`, want: "at 06:45"},
		{name: "bare clock string", in: `"23:59"`, want: "at 23:59"},
		{name: "bare seconds string", in: `"15"`, want: "in 15s"},
		{name: "bare number", in: `5`, want: "in 5s"},
		{name: "invalid clock", in: `"24:00"`, wantErr: true},
		{name: "negative number", in: `-3`, wantErr: true},
		{name: "missing seconds", in: `{"kind":"relative"}`, wantErr: true},
		{name: "unknown kind", in: `{"kind":"weekly"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Schedule
			err := json.Unmarshal([]byte(tt.in), &s)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSchedule) {
					t.Errorf("Unmarshal(%s) error = %v, want ErrInvalidSchedule", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
			}
			if s.String() != tt.want {
				t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, s.String(), tt.want)
			}
		})
	}
}

func TestScheduleJSON_MarshalForms(t *testing.T) {
	rel, _ := json.Marshal(After(1500 * time.Millisecond))
	if string(rel) != `{"kind":"relative","seconds":1.5}` {
		t.Errorf("relative Marshal = %s", rel)
	}
	abs, _ := json.Marshal(mustAt(t, "08:05"))
	if string(abs) != `{"kind":"absolute","at":"08:05"}` {
		t.Errorf("absolute Marshal = %s", abs)
	}
}
