package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// Domain errors for the schedule package.
//
// Registration errors are returned from Engine.Schedule. Fire-time errors
// never reach the caller; they are delivered to reporters in Event.Err and
// can be matched with errors.Is:
//
//	if errors.Is(ev.Err, schedule.ErrNotFound) {
//	    // device was removed after the entry was registered
//	}
var (
	// ErrUnknownDevice is returned at registration when the serial does not resolve.
	ErrUnknownDevice = errors.New("schedule: unknown device")

	// ErrUnknownOperation means the device type has no operation by that name.
	ErrUnknownOperation = errors.New("schedule: unknown operation")

	// ErrInvalidArguments means the arguments do not fit the operation.
	ErrInvalidArguments = errors.New("schedule: invalid arguments")

	// ErrInvalidSchedule means the schedule is malformed ("25:00", negative
	// delay, or a zero delay on a recurring entry).
	ErrInvalidSchedule = errors.New("schedule: invalid schedule")

	// ErrDeviceRejected means the device refused the operation when it fired.
	ErrDeviceRejected = errors.New("schedule: device rejected operation")

	// ErrNotFound means the device no longer resolved when the entry fired.
	ErrNotFound = errors.New("schedule: device not found")

	// ErrInvokeTimeout means the invocation exceeded scheduler.invoke_timeout.
	ErrInvokeTimeout = errors.New("schedule: invocation timed out")

	// ErrInvokePanic means the device invocation panicked.
	ErrInvokePanic = errors.New("schedule: invocation panicked")

	// ErrEngineStopped is returned when registering after Stop.
	ErrEngineStopped = errors.New("schedule: engine stopped")

	// ErrDuplicateID is returned when a descriptor ID is already in the store.
	ErrDuplicateID = errors.New("schedule: duplicate descriptor id")
)

// classifyRegistration maps a device registry error onto the registration taxonomy.
func classifyRegistration(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, device.ErrDeviceNotFound):
		return fmt.Errorf("%w: %w", ErrUnknownDevice, err)
	case errors.Is(err, device.ErrUnknownOperation):
		return fmt.Errorf("%w: %w", ErrUnknownOperation, err)
	case errors.Is(err, device.ErrInvalidArguments):
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	default:
		return err
	}
}

// classifyFire maps an invocation error onto the fire-time taxonomy.
func classifyFire(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, device.ErrDeviceNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, device.ErrDeviceRejected):
		return fmt.Errorf("%w: %w", ErrDeviceRejected, err)
	case errors.Is(err, device.ErrUnknownOperation):
		return fmt.Errorf("%w: %w", ErrUnknownOperation, err)
	case errors.Is(err, device.ErrInvalidArguments):
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrInvokeTimeout, err)
	default:
		return err
	}
}
