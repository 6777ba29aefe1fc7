package user

import (
	"fmt"
	"regexp"
	"strings"
)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// usernamePattern allows letters, digits, dots, hyphens, underscores and
// inner spaces, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]([a-zA-Z0-9._ -]*[a-zA-Z0-9._-])?$`)

// reservedUsernames cannot be registered, in any letter case.
var reservedUsernames = []string{"example", "test", "admin"}

// ValidateUsername checks the format of a username and rejects reserved names.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrInvalidUsername)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidUsername, maxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: %q may only contain letters, digits, spaces, dots, hyphens and underscores",
			ErrInvalidUsername, username)
	}
	for _, reserved := range reservedUsernames {
		if strings.EqualFold(username, reserved) {
			return fmt.Errorf("%w: %q", ErrReservedUsername, username)
		}
	}
	return nil
}
