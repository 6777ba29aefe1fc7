package user

import "errors"

var (
	// ErrUserNotFound is returned when a user ID or username does not exist.
	ErrUserNotFound = errors.New("user: not found")

	// ErrUsernameExists is returned when another user already has the username.
	ErrUsernameExists = errors.New("user: username already exists")

	// ErrInvalidUsername is returned when a username has the wrong format.
	ErrInvalidUsername = errors.New("user: invalid username")

	// ErrReservedUsername is returned for names the system keeps for itself.
	ErrReservedUsername = errors.New("user: username is reserved")

	// ErrNotConnected is returned when disconnecting a user with no network.
	ErrNotConnected = errors.New("user: not connected to a network")

	// ErrNotHubUser is returned when revoking a hub grant the user does not have.
	ErrNotHubUser = errors.New("user: not a user of hub")
)
