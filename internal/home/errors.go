package home

import "errors"

var (
	// ErrNetworkNotFound is returned when a network ID does not exist.
	ErrNetworkNotFound = errors.New("home: network not found")

	// ErrNetworkExists is returned when another network already uses the address.
	ErrNetworkExists = errors.New("home: network address already in use")

	// ErrHomeNotFound is returned when a home ID does not exist.
	ErrHomeNotFound = errors.New("home: home not found")

	// ErrInvalidName is returned when a network or home name is empty or too long.
	ErrInvalidName = errors.New("home: invalid name")

	// ErrInvalidAddress is returned when a network IP address does not parse.
	ErrInvalidAddress = errors.New("home: invalid ip address")
)
