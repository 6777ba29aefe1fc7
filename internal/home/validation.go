package home

import (
	"fmt"
	"net/netip"
	"strings"
)

const maxNameLength = 100

// ValidateName checks a network or home name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// NormaliseAddress validates an IPv4 or IPv6 address and returns its
// canonical text form.
func NormaliseAddress(raw string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return addr.String(), nil
}
