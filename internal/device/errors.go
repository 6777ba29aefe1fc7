package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceRejected) {
//	    // device was powered off
//	}
var (
	// ErrDeviceNotFound is returned when a serial does not resolve to a device.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with a serial that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidDeviceType is returned when a device type is not recognised.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrUnknownOperation is returned when a device type has no operation by that name.
	ErrUnknownOperation = errors.New("device: unknown operation")

	// ErrInvalidArguments is returned when operation arguments have the wrong
	// count, kind or range.
	ErrInvalidArguments = errors.New("device: invalid arguments")

	// ErrDeviceRejected is returned when the device refuses an operation in its
	// current state, for example because it is powered off.
	ErrDeviceRejected = errors.New("device: operation rejected")

	// ErrNotHub is returned when a hub operation names a device that is not a hub.
	ErrNotHub = errors.New("device: not a hub")

	// ErrNotInHub is returned when detaching a device from a hub it is not attached to.
	ErrNotInHub = errors.New("device: not attached to hub")
)
