package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Handle identifies one registered descriptor. It is the descriptor ID.
type Handle string

// String returns the descriptor ID.
func (h Handle) String() string { return string(h) }

// Descriptor is the immutable record of a deferred operation: what to run,
// on which device, when, and whether it repeats.
//
// Two descriptors with identical fields but different IDs are independent
// entries and fire independently.
type Descriptor struct {
	ID           string    `json:"id"`
	DeviceSerial string    `json:"device_serial"`
	Operation    string    `json:"operation"`
	Arguments    []any     `json:"arguments"`
	Schedule     Schedule  `json:"schedule"`
	Recurring    bool      `json:"recurring"`
	CreatedAt    time.Time `json:"created_at"`
}

// ComputeDelay returns the wait from now until the descriptor's next fire.
// See Schedule.DelayFrom.
func (d Descriptor) ComputeDelay(now time.Time) time.Duration {
	return d.Schedule.DelayFrom(now)
}

// Clone returns a copy that shares no mutable memory with d.
func (d Descriptor) Clone() Descriptor {
	d.Arguments = cloneArgs(d.Arguments)
	return d
}

func cloneArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = cloneValue(a)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		return cloneArgs(val)
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	default:
		return v
	}
}

// newID generates a descriptor ID.
func newID() string {
	return uuid.New().String()
}

// State is the lifecycle phase of a stored descriptor.
type State string

// Descriptor states.
const (
	// StateArmed means a timer is pending for the descriptor.
	StateArmed State = "armed"

	// StateFiring means the device invocation is in progress.
	StateFiring State = "firing"

	// StatePaused means the engine was stopped; the descriptor is kept for
	// the shutdown snapshot but has no timer.
	StatePaused State = "paused"
)

// View is a read-only copy of a stored descriptor and its bookkeeping.
type View struct {
	Descriptor

	State     State      `json:"state"`
	NextFire  time.Time  `json:"next_fire"`
	Fires     int        `json:"fires"`
	Failures  int        `json:"failures"`
	LastFired *time.Time `json:"last_fired,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Outcome classifies an Event.
type Outcome string

// Event outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"

	// OutcomeDropped is reported by Restore for descriptors that could not
	// be re-armed.
	OutcomeDropped Outcome = "dropped"
)

// Event describes one fire (or a descriptor dropped during restore).
type Event struct {
	DescriptorID string        `json:"descriptor_id"`
	DeviceSerial string        `json:"device_serial"`
	Operation    string        `json:"operation"`
	Arguments    []any         `json:"arguments,omitempty"`
	Recurring    bool          `json:"recurring"`
	Outcome      Outcome       `json:"outcome"`
	Scheduled    time.Time     `json:"scheduled"`
	FiredAt      time.Time     `json:"fired_at"`
	Duration     time.Duration `json:"duration"`
	Result       any           `json:"result,omitempty"`
	Err          error         `json:"-"`

	// NextFire is zero when the descriptor was removed after this event.
	NextFire time.Time `json:"next_fire,omitempty"`
}

// ErrorText returns the event error text, or "".
func (e Event) ErrorText() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Reporter receives fire events. Report is called on the firing goroutine
// and must not block for long.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

// Report calls f(ev).
func (f ReporterFunc) Report(ev Event) { f(ev) }
