package user

import "time"

// User is a person who can connect to a network and use its hubs.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	NetworkID *string   `json:"network_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Connected reports whether the user is connected to a network.
func (u *User) Connected() bool {
	return u.NetworkID != nil
}
