package schedule

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind tags which variant a Schedule holds.
type Kind string

// Schedule kinds.
const (
	KindRelative Kind = "relative"
	KindAbsolute Kind = "absolute"
)

// clockPattern accepts exactly HH:MM on a 24-hour clock.
var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Schedule says when an operation fires: either a fixed delay after it is
// armed (Relative) or at a wall-clock time of day (Absolute). The zero
// value is invalid.
//
// Schedule values are immutable; build them with After, AfterSeconds, At
// or Parse.
type Schedule struct {
	kind   Kind
	delay  time.Duration
	hour   int
	minute int
	daily  cron.Schedule
}

// After returns a relative schedule firing d after arming.
func After(d time.Duration) Schedule {
	return Schedule{kind: KindRelative, delay: d}
}

// maxSeconds is the longest delay a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// AfterSeconds returns a relative schedule of the given number of seconds.
// Seconds must be finite, non-negative and fit in a time.Duration.
func AfterSeconds(seconds float64) (Schedule, error) {
	switch {
	case math.IsNaN(seconds) || math.IsInf(seconds, 0):
		return Schedule{}, fmt.Errorf("%w: %v is not a finite delay", ErrInvalidSchedule, seconds)
	case seconds < 0:
		return Schedule{}, fmt.Errorf("%w: delay %vs is negative", ErrInvalidSchedule, seconds)
	case seconds >= maxSeconds:
		return Schedule{}, fmt.Errorf("%w: delay %vs exceeds the maximum of %.0fs", ErrInvalidSchedule, seconds, maxSeconds)
	}
	return After(time.Duration(seconds * float64(time.Second))), nil
}

// At returns an absolute schedule for the time of day "HH:MM" (24-hour).
func At(clock string) (Schedule, error) {
	m := clockPattern.FindStringSubmatch(clock)
	if m == nil {
		return Schedule{}, fmt.Errorf("%w: %q is not a 24-hour HH:MM time", ErrInvalidSchedule, clock)
	}
	hour, _ := strconv.Atoi(m[1])   //nolint:errcheck // Digits guaranteed by pattern
	minute, _ := strconv.Atoi(m[2]) //nolint:errcheck // Digits guaranteed by pattern

	// Standard five-field cron expression "M H * * *": once a day at H:M in the
	// location of the time passed to Next.
	daily, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return Schedule{kind: KindAbsolute, hour: hour, minute: minute, daily: daily}, nil
}

// Parse reads the textual form used by the menu and API: "HH:MM" for an
// absolute time, otherwise a relative delay as plain seconds ("90", "2.5")
// or a Go duration ("90s", "1m30s").
func Parse(raw string) (Schedule, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, ":") {
		return At(raw)
	}
	if raw == "" {
		return Schedule{}, fmt.Errorf("%w: empty schedule", ErrInvalidSchedule)
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return AfterSeconds(seconds)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %q is neither HH:MM nor a delay", ErrInvalidSchedule, raw)
	}
	return validated(After(d))
}

func validated(s Schedule) (Schedule, error) {
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// Kind reports which variant s holds.
func (s Schedule) Kind() Kind { return s.kind }

// Delay returns the relative delay. Zero for absolute schedules.
func (s Schedule) Delay() time.Duration { return s.delay }

// Clock returns "HH:MM" for absolute schedules and "" otherwise.
func (s Schedule) Clock() string {
	if s.kind != KindAbsolute {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", s.hour, s.minute)
}

// String renders the schedule for logs and the menu.
func (s Schedule) String() string {
	switch s.kind {
	case KindRelative:
		return "in " + s.delay.String()
	case KindAbsolute:
		return "at " + s.Clock()
	default:
		return "invalid"
	}
}

// Validate reports ErrInvalidSchedule for the zero value and negative delays.
func (s Schedule) Validate() error {
	switch s.kind {
	case KindRelative:
		if s.delay < 0 {
			return fmt.Errorf("%w: delay %v is negative", ErrInvalidSchedule, s.delay)
		}
		return nil
	case KindAbsolute:
		if s.daily == nil {
			return fmt.Errorf("%w: absolute schedule was not built with At", ErrInvalidSchedule)
		}
		return nil
	default:
		return fmt.Errorf("%w: missing schedule", ErrInvalidSchedule)
	}
}

// validateRecurring additionally rejects a zero delay, which would refire
// without pause.
func (s Schedule) validateRecurring() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.kind == KindRelative && s.delay == 0 {
		return fmt.Errorf("%w: recurring relative schedule needs a positive delay", ErrInvalidSchedule)
	}
	return nil
}

// DelayFrom returns how long to wait from now until the next fire.
//
// Relative schedules return their delay unchanged. Absolute schedules return
// the time until the next occurrence of HH:MM in now's location; when that
// time is now or has passed today, the result is the same time tomorrow.
func (s Schedule) DelayFrom(now time.Time) time.Duration {
	switch s.kind {
	case KindRelative:
		return s.delay
	case KindAbsolute:
		// cron's Next is strictly after now, so an exact match rolls a day.
		return s.daily.Next(now).Sub(now)
	default:
		return 0
	}
}

type scheduleJSON struct {
	Kind    Kind     `json:"kind"`
	Seconds *float64 `json:"seconds,omitempty"`
	At      string   `json:"at,omitempty"`
}

// MarshalJSON encodes relative schedules as {"kind":"relative","seconds":N}
// and absolute ones as {"kind":"absolute","at":"HH:MM"}.
func (s Schedule) MarshalJSON() ([]byte, error) {
	out := scheduleJSON{Kind: s.kind}
	switch s.kind {
	case KindRelative:
		seconds := s.delay.Seconds()
		out.Seconds = &seconds
	case KindAbsolute:
		out.At = s.Clock()
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the object form produced by MarshalJSON and, as a
// shorthand, a bare string in Parse syntax or a bare number of seconds.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		parsed, err := Parse(text)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err == nil {
		parsed, err := AfterSeconds(seconds)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}

	var in scheduleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	switch in.Kind {
	case KindRelative:
		if in.Seconds == nil {
			return fmt.Errorf("%w: relative schedule needs seconds", ErrInvalidSchedule)
		}
		parsed, err := AfterSeconds(*in.Seconds)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	case KindAbsolute:
		parsed, err := At(in.At)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, in.Kind)
	}
}
