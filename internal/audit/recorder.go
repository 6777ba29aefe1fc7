package audit

import (
	"context"
	"time"

	"github.com/nerrad567/smarthome-core/internal/schedule"
)

// Actions recorded for scheduler events.
const (
	ActionFire       = "fire"
	ActionFireFailed = "fire_failed"
	ActionDropped    = "dropped"
)

// EntitySchedule is the entity type of scheduler entries.
const EntitySchedule = "schedule"

// SourceScheduler marks entries written by the Recorder.
const SourceScheduler = "scheduler"

// writeTimeout bounds a single audit insert.
const writeTimeout = 2 * time.Second

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes scheduler events to the audit trail. It implements
// schedule.Reporter. Write failures are logged and never reach the engine.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a Recorder over repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, logger: logger}
}

// Report implements schedule.Reporter.
func (r *Recorder) Report(ev schedule.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	e := EntryFromEvent(ev)
	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Warn("recording scheduler event", "id", ev.DescriptorID, "error", err)
	}
}

// EntryFromEvent maps a scheduler event onto an audit entry.
func EntryFromEvent(ev schedule.Event) Entry {
	action := ActionFire
	switch ev.Outcome {
	case schedule.OutcomeFailure:
		action = ActionFireFailed
	case schedule.OutcomeDropped:
		action = ActionDropped
	}

	details := map[string]any{
		"device":    ev.DeviceSerial,
		"operation": ev.Operation,
		"recurring": ev.Recurring,
	}
	if len(ev.Arguments) > 0 {
		details["arguments"] = ev.Arguments
	}
	if ev.Outcome != schedule.OutcomeDropped {
		details["duration_ms"] = ev.Duration.Milliseconds()
	}
	if ev.Err != nil {
		details["error"] = ev.Err.Error()
	}
	if !ev.NextFire.IsZero() {
		details["next_fire"] = ev.NextFire.UTC().Format(time.RFC3339)
	}

	createdAt := ev.FiredAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return Entry{
		Action:     action,
		EntityType: EntitySchedule,
		EntityID:   ev.DescriptorID,
		Source:     SourceScheduler,
		Details:    details,
		CreatedAt:  createdAt.UTC(),
	}
}
