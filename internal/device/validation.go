package device

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxNameLength = 100

	// SerialPrefix starts every device serial, e.g. "DEV-7".
	SerialPrefix = "DEV-"
)

// ValidateDevice checks that a device is complete and consistent.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if _, ok := ParseSerial(d.Serial); !ok {
		return fmt.Errorf("%w: serial %q must look like %s<n>", ErrInvalidDevice, d.Serial, SerialPrefix)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateDeviceType(d.Type); err != nil {
		return err
	}
	if d.EnergyConsumption < 0 {
		return fmt.Errorf("%w: energy consumption must not be negative", ErrInvalidDevice)
	}
	return nil
}

// ValidateName checks a device name is non-empty and within MaxNameLength.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, MaxNameLength)
	}
	return nil
}

// ValidateDeviceType checks t is one of AllDeviceTypes.
func ValidateDeviceType(t DeviceType) error {
	for _, known := range AllDeviceTypes() {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
}

// FormatSerial builds the serial for the n-th device.
func FormatSerial(n int64) string {
	return SerialPrefix + strconv.FormatInt(n, 10)
}

// ParseSerial extracts the sequence number from a serial such as "DEV-12".
func ParseSerial(serial string) (int64, bool) {
	rest, ok := strings.CutPrefix(serial, SerialPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
