package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateObserver is notified after an invocation changed a device.
// It is called synchronously after the device lock is released, so it may
// call back into the registry.
type StateObserver interface {
	DeviceStateChanged(d Device)
}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// Invocations are serialised per device; different devices are invoked
// concurrently. All public methods are thread-safe.
type Registry struct {
	repo     Repository
	cache    map[string]*Device
	locks    map[string]*sync.Mutex // per-device invoke lock, same keys as cache
	cacheMu  sync.RWMutex
	logger   Logger
	observer StateObserver
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		locks:  make(map[string]*sync.Mutex),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetStateObserver registers the observer notified after state changes.
func (r *Registry) SetStateObserver(o StateObserver) {
	r.observer = o
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.Serial] = d.DeepCopy()
		if _, ok := r.locks[d.Serial]; !ok {
			r.locks[d.Serial] = &sync.Mutex{}
		}
	}
	for serial := range r.locks {
		if _, ok := r.cache[serial]; !ok {
			delete(r.locks, serial)
		}
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Resolve returns the device with the given serial.
// Returns ErrDeviceNotFound if it does not exist. The result is a deep copy.
func (r *Registry) Resolve(ctx context.Context, serial string) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	cached, ok := r.cache[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	return cached.DeepCopy(), nil
}

// ListDevices returns all devices ordered by serial number.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	return r.filter(func(*Device) bool { return true }), nil
}

// ListByHome returns the devices assigned to a home, ordered by serial number.
func (r *Registry) ListByHome(ctx context.Context, homeID string) ([]Device, error) {
	return r.filter(func(d *Device) bool {
		return d.HomeID != nil && *d.HomeID == homeID
	}), nil
}

// ListByHub returns the devices attached to a hub, ordered by serial number.
func (r *Registry) ListByHub(ctx context.Context, hubSerial string) ([]Device, error) {
	if _, err := r.resolveHub(ctx, hubSerial); err != nil {
		return nil, err
	}
	return r.filter(func(d *Device) bool {
		return d.HubSerial != nil && *d.HubSerial == hubSerial
	}), nil
}

func (r *Registry) filter(keep func(*Device) bool) []Device {
	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if keep(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	r.cacheMu.RUnlock()

	sortBySerial(devices)
	return devices
}

func sortBySerial(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		a, _ := ParseSerial(devices[i].Serial)
		b, _ := ParseSerial(devices[j].Serial)
		return a < b
	})
}

// CreateDevice creates a new device.
// A serial is allocated when the device has none, and type defaults are
// filled into State for attributes the caller did not supply.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateDeviceType(d.Type); err != nil {
		return err
	}

	if d.Serial == "" {
		serial, err := r.repo.NextSerial(ctx)
		if err != nil {
			return fmt.Errorf("allocating serial: %w", err)
		}
		d.Serial = serial
	}

	state := DefaultState(d.Type)
	for k, v := range d.State {
		state[k] = deepCopyValue(v)
	}
	d.State = state

	if err := ValidateDevice(d); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.Serial] = d.DeepCopy()
	r.locks[d.Serial] = &sync.Mutex{}
	r.cacheMu.Unlock()

	r.logger.Info("device created", "serial", d.Serial, "name", d.Name, "type", d.Type)
	return nil
}

// RenameDevice changes the display name of a device.
func (r *Registry) RenameDevice(ctx context.Context, serial, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return r.update(ctx, serial, func(d *Device) error {
		d.Name = name
		return nil
	})
}

// AssignHome moves a device into a home. A nil homeID unassigns it.
func (r *Registry) AssignHome(ctx context.Context, serial string, homeID *string) error {
	return r.update(ctx, serial, func(d *Device) error {
		d.HomeID = homeID
		return nil
	})
}

// AttachToHub attaches a device to a hub, moving it from any hub it was on.
// Hubs cannot be attached to hubs.
//
// The hub lock is held while the device is updated so a concurrent
// DeleteDevice of the hub cannot leave the device pointing at it. Locks
// are always taken hub first.
func (r *Registry) AttachToHub(ctx context.Context, hubSerial, serial string) error {
	if serial == hubSerial {
		return fmt.Errorf("%w: %s cannot be attached to itself", ErrInvalidDevice, serial)
	}
	hubLock := r.deviceLock(hubSerial)
	if hubLock == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, hubSerial)
	}
	hubLock.Lock()
	defer hubLock.Unlock()

	if _, err := r.resolveHub(ctx, hubSerial); err != nil {
		return err
	}
	err := r.update(ctx, serial, func(d *Device) error {
		if d.Type == DeviceTypeHub {
			return fmt.Errorf("%w: hub %s cannot be attached to another hub", ErrInvalidDevice, d.Serial)
		}
		hub := hubSerial
		d.HubSerial = &hub
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("device attached to hub", "serial", serial, "hub", hubSerial)
	return nil
}

// DetachFromHub detaches a device from the given hub.
// Returns ErrNotInHub when the device is attached elsewhere or nowhere.
func (r *Registry) DetachFromHub(ctx context.Context, hubSerial, serial string) error {
	if _, err := r.resolveHub(ctx, hubSerial); err != nil {
		return err
	}
	err := r.update(ctx, serial, func(d *Device) error {
		if d.HubSerial == nil || *d.HubSerial != hubSerial {
			return fmt.Errorf("%w: %s is not attached to %s", ErrNotInHub, serial, hubSerial)
		}
		d.HubSerial = nil
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("device detached from hub", "serial", serial, "hub", hubSerial)
	return nil
}

// resolveHub returns the hub with the given serial, or ErrNotHub when the
// device exists but is another type.
func (r *Registry) resolveHub(ctx context.Context, serial string) (*Device, error) {
	d, err := r.Resolve(ctx, serial)
	if err != nil {
		return nil, err
	}
	if d.Type != DeviceTypeHub {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotHub, serial, d.Type)
	}
	return d, nil
}

func (r *Registry) update(ctx context.Context, serial string, mutate func(*Device) error) error {
	lock := r.deviceLock(serial)
	if lock == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	lock.Lock()
	defer lock.Unlock()

	working, err := r.Resolve(ctx, serial)
	if err != nil {
		return err
	}
	if err := mutate(working); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, working); err != nil {
		return err
	}
	r.replace(working)

	r.logger.Info("device updated", "serial", serial, "name", working.Name)
	return nil
}

// DeleteDevice removes a device. Pending scheduler entries that reference it
// are left alone and will report not-found when they fire.
func (r *Registry) DeleteDevice(ctx context.Context, serial string) error {
	lock := r.deviceLock(serial)
	if lock != nil {
		// Wait for an in-flight invocation on this device to finish.
		lock.Lock()
		defer lock.Unlock()
	}

	if err := r.repo.Delete(ctx, serial); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, serial)
	delete(r.locks, serial)
	for _, d := range r.cache {
		if d.HubSerial != nil && *d.HubSerial == serial {
			d.HubSerial = nil
		}
	}
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "serial", serial)
	return nil
}

// ValidateOperation checks that serial resolves, that its type supports op
// and that args fit the operation's parameters. It does not check the power
// precondition, which depends on state at invocation time.
func (r *Registry) ValidateOperation(ctx context.Context, serial, op string, args []any) error {
	d, err := r.Resolve(ctx, serial)
	if err != nil {
		return err
	}
	operation, ok := LookupOperation(d.Type, op)
	if !ok {
		return fmt.Errorf("%w: %s has no operation %q", ErrUnknownOperation, d.Type, op)
	}
	_, err = operation.CoerceArgs(args)
	return err
}

// Invoke runs operation op on the device with the given serial.
//
// Errors: ErrDeviceNotFound, ErrUnknownOperation, ErrInvalidArguments,
// ErrDeviceRejected, or a persistence failure. The returned value is the
// operation's result (nil for most operations).
func (r *Registry) Invoke(ctx context.Context, serial, op string, args []any) (any, error) {
	result, changed, err := r.apply(ctx, serial, op, args)
	if err != nil {
		return nil, err
	}
	if changed != nil && r.observer != nil {
		r.observer.DeviceStateChanged(*changed)
	}
	return result, nil
}

// apply runs the operation under the device lock and returns a copy of the
// device when its state changed.
func (r *Registry) apply(ctx context.Context, serial, op string, args []any) (any, *Device, error) {
	lock := r.deviceLock(serial)
	if lock == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Re-resolve under the device lock: a concurrent delete may have won.
	working, err := r.Resolve(ctx, serial)
	if err != nil {
		return nil, nil, err
	}

	operation, ok := LookupOperation(working.Type, op)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s has no operation %q", ErrUnknownOperation, working.Type, op)
	}
	coerced, err := operation.CoerceArgs(args)
	if err != nil {
		return nil, nil, err
	}

	result, err := operation.invoke(working, coerced)
	if err != nil {
		return nil, nil, err
	}
	if operation.ReadOnly {
		return result, nil, nil
	}

	working.UpdatedAt = time.Now().UTC()
	if err := r.repo.UpdateState(ctx, working); err != nil {
		return nil, nil, fmt.Errorf("persisting state of %s: %w", serial, err)
	}
	r.replace(working)

	r.logger.Debug("device operation applied", "serial", serial, "operation", op)
	return result, working.DeepCopy(), nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) deviceLock(serial string) *sync.Mutex {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return r.locks[serial]
}

// replace swaps in the new version if the device is still registered.
func (r *Registry) replace(d *Device) {
	r.cacheMu.Lock()
	if _, ok := r.cache[d.Serial]; ok {
		r.cache[d.Serial] = d.DeepCopy()
	}
	r.cacheMu.Unlock()
}
