package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DeviceRegistry is the part of the device registry the engine needs.
// device.Registry satisfies it.
type DeviceRegistry interface {
	// ValidateOperation checks serial, operation and arguments without
	// touching the device.
	ValidateOperation(ctx context.Context, serial, op string, args []any) error

	// Invoke runs the operation on the device.
	Invoke(ctx context.Context, serial, op string, args []any) (any, error)
}

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EngineOptions holds the collaborators and settings for NewEngine.
type EngineOptions struct {
	Store   *Store
	Devices DeviceRegistry

	// Location interprets "HH:MM" schedules. Defaults to time.Local.
	Location *time.Location

	// InvokeTimeout bounds each device invocation. Zero means no bound.
	InvokeTimeout time.Duration

	Logger    Logger
	Reporters []Reporter
	Metrics   *Metrics

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Engine arms one timer per stored descriptor, invokes the device when it
// fires, and re-arms recurring descriptors.
//
// Invocations run on timer goroutines, never on the caller of Schedule.
// Fire-time failures are reported and never stop the engine. All methods
// are safe for concurrent use.
type Engine struct {
	store         *Store
	devices       DeviceRegistry
	loc           *time.Location
	invokeTimeout time.Duration
	logger        Logger
	metrics       *Metrics
	now           func() time.Time

	reportersMu sync.RWMutex
	reporters   []Reporter

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewEngine creates an engine over the given store and device registry.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("schedule: store is required")
	}
	if opts.Devices == nil {
		return nil, errors.New("schedule: device registry is required")
	}

	e := &Engine{
		store:         opts.Store,
		devices:       opts.Devices,
		loc:           opts.Location,
		invokeTimeout: opts.InvokeTimeout,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Clock,
		reporters:     append([]Reporter(nil), opts.Reporters...),
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.baseCtx, e.cancelBase = context.WithCancel(context.Background())
	return e, nil
}

// AddReporter registers another fire-event reporter.
func (e *Engine) AddReporter(r Reporter) {
	e.reportersMu.Lock()
	defer e.reportersMu.Unlock()
	e.reporters = append(e.reporters, r)
}

// Schedule registers a deferred operation and arms its timer.
//
// Validation is synchronous: ErrInvalidSchedule, ErrUnknownDevice,
// ErrUnknownOperation or ErrInvalidArguments are returned and nothing is
// stored. The device's power state is not checked here; a device that is
// off when the entry fires reports ErrDeviceRejected.
func (e *Engine) Schedule(ctx context.Context, serial, op string, args []any, sched Schedule, recurring bool) (Handle, error) {
	d := Descriptor{
		ID:           newID(),
		DeviceSerial: serial,
		Operation:    op,
		Arguments:    cloneArgs(args),
		Schedule:     sched,
		Recurring:    recurring,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.validate(ctx, d); err != nil {
		return "", err
	}
	if err := e.arm(d); err != nil {
		return "", err
	}

	e.logger.Info("operation scheduled",
		"id", d.ID,
		"device", serial,
		"operation", op,
		"schedule", sched.String(),
		"recurring", recurring,
	)
	return Handle(d.ID), nil
}

func (e *Engine) validate(ctx context.Context, d Descriptor) error {
	validateSchedule := d.Schedule.Validate
	if d.Recurring {
		validateSchedule = d.Schedule.validateRecurring
	}
	if err := validateSchedule(); err != nil {
		return err
	}
	return classifyRegistration(e.devices.ValidateOperation(ctx, d.DeviceSerial, d.Operation, d.Arguments))
}

func (e *Engine) arm(d Descriptor) error {
	now := e.now()
	delay := d.ComputeDelay(now.In(e.loc))
	if err := e.store.insertAndArm(d, delay, now, e.fire); err != nil {
		return err
	}
	e.metrics.setPending(e.store.Len())
	return nil
}

// Cancel removes a descriptor. A pending fire is prevented; a fire already
// in progress completes but the descriptor is not re-armed. Cancelling an
// unknown or already-finished handle is a no-op. Cancel always returns nil.
func (e *Engine) Cancel(h Handle) error {
	if e.store.remove(string(h)) {
		e.metrics.setPending(e.store.Len())
		e.logger.Info("scheduled operation cancelled", "id", string(h))
	}
	return nil
}

// Get returns the view of one descriptor.
func (e *Engine) Get(h Handle) (View, bool) {
	return e.store.get(string(h))
}

// ListPending returns copies of the stored descriptors in registration
// order, filtered to serial unless serial is empty.
func (e *Engine) ListPending(serial string) []View {
	return e.store.list(serial)
}

// PendingCount returns the number of stored descriptors.
func (e *Engine) PendingCount() int {
	return e.store.Len()
}

// Snapshot returns plain copies of every stored descriptor for persistence.
func (e *Engine) Snapshot() []Descriptor {
	return e.store.snapshot()
}

// DroppedDescriptor is a descriptor Restore could not re-arm, with the reason.
type DroppedDescriptor struct {
	Descriptor Descriptor
	Err        error
}

// RestoreResult summarises a Restore call.
type RestoreResult struct {
	Restored []Handle
	Dropped  []DroppedDescriptor
}

// Restore re-registers previously snapshotted descriptors against the
// current device registry. Descriptors that fail validation (typically
// because the device no longer exists) are dropped, logged and reported
// with OutcomeDropped. Fire times are computed from the moment of restore.
// IDs are kept unless they collide with a stored descriptor.
func (e *Engine) Restore(ctx context.Context, descs []Descriptor) RestoreResult {
	var result RestoreResult

	for _, d := range descs {
		d = d.Clone()
		if d.ID == "" || e.store.Contains(d.ID) {
			d.ID = newID()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = e.now().UTC()
		}

		err := e.validate(ctx, d)
		if err == nil {
			err = e.arm(d)
		}
		if err != nil {
			result.Dropped = append(result.Dropped, DroppedDescriptor{Descriptor: d, Err: err})
			e.logger.Warn("dropping scheduled operation on restore",
				"id", d.ID,
				"device", d.DeviceSerial,
				"operation", d.Operation,
				"error", err,
			)
			e.metrics.observeDropped()
			e.report(Event{
				DescriptorID: d.ID,
				DeviceSerial: d.DeviceSerial,
				Operation:    d.Operation,
				Arguments:    d.Arguments,
				Recurring:    d.Recurring,
				Outcome:      OutcomeDropped,
				FiredAt:      e.now(),
				Err:          err,
			})
			continue
		}
		result.Restored = append(result.Restored, Handle(d.ID))
	}

	e.logger.Info("scheduled operations restored",
		"restored", len(result.Restored),
		"dropped", len(result.Dropped),
	)
	return result
}

// Stop disarms every timer and waits for in-flight invocations until ctx
// is done, at which point their contexts are cancelled. Stored descriptors
// are kept so Snapshot still returns them. Schedule fails afterwards with
// ErrEngineStopped.
func (e *Engine) Stop(ctx context.Context) error {
	e.store.stop()
	err := e.store.wait(ctx)
	e.cancelBase()
	if err != nil {
		return fmt.Errorf("waiting for in-flight operations: %w", err)
	}
	e.logger.Info("scheduler stopped", "pending", e.store.Len())
	return nil
}

// fire is the timer callback.
func (e *Engine) fire(id string, gen uint64) {
	desc, scheduled, ok := e.store.beginFire(id, gen)
	if !ok {
		return
	}

	firedAt := e.now()
	result, err := e.invoke(desc)
	finished := e.now()

	next := e.store.finishFire(id, gen, fireResult{firedAt: firedAt, err: err}, finished,
		func(d Descriptor) time.Duration { return e.nextDelay(d, scheduled, firedAt, finished) },
		e.fire,
	)

	ev := Event{
		DescriptorID: desc.ID,
		DeviceSerial: desc.DeviceSerial,
		Operation:    desc.Operation,
		Arguments:    desc.Arguments,
		Recurring:    desc.Recurring,
		Outcome:      OutcomeSuccess,
		Scheduled:    scheduled,
		FiredAt:      firedAt,
		Duration:     finished.Sub(firedAt),
		Result:       result,
		Err:          err,
		NextFire:     next,
	}
	if err != nil {
		ev.Outcome = OutcomeFailure
		e.logger.Warn("scheduled operation failed",
			"id", desc.ID,
			"device", desc.DeviceSerial,
			"operation", desc.Operation,
			"recurring", desc.Recurring,
			"error", err,
		)
	} else {
		e.logger.Info("scheduled operation fired",
			"id", desc.ID,
			"device", desc.DeviceSerial,
			"operation", desc.Operation,
			"duration", ev.Duration,
		)
	}

	e.metrics.observeFire(ev)
	e.metrics.setPending(e.store.Len())
	e.report(ev)
}

// nextDelay computes the re-arm delay for a recurring descriptor.
//
// Relative schedules are measured from the start of the previous fire, so
// a slow invocation shortens the wait rather than drifting the series.
// Absolute schedules are computed from the later of now and the intended
// fire time so an early wake-up can never fire twice in one day.
func (e *Engine) nextDelay(d Descriptor, scheduled, firedAt, now time.Time) time.Duration {
	if d.Schedule.Kind() == KindRelative {
		remaining := firedAt.Add(d.Schedule.Delay()).Sub(now)
		if remaining < 0 {
			return 0
		}
		return remaining
	}

	base := now
	if base.Before(scheduled) {
		base = scheduled
	}
	return d.ComputeDelay(base.In(e.loc)) + base.Sub(now)
}

func (e *Engine) invoke(d Descriptor) (result any, err error) {
	ctx := e.baseCtx
	if e.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.invokeTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrInvokePanic, r)
		}
	}()

	result, err = e.devices.Invoke(ctx, d.DeviceSerial, d.Operation, d.Arguments)
	return result, classifyFire(err)
}

func (e *Engine) report(ev Event) {
	e.reportersMu.RLock()
	reporters := e.reporters
	e.reportersMu.RUnlock()

	for _, r := range reporters {
		e.safeReport(r, ev)
	}
}

func (e *Engine) safeReport(r Reporter, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("fire reporter panicked", "panic", p, "id", ev.DescriptorID)
		}
	}()
	r.Report(ev)
}
