// Package user manages the people who use the smart home.
//
// A user has a unique username, is connected to at most one network at a
// time and can be granted access to any number of hubs. Usernames are
// compared case-insensitively and a small set of names is reserved.
//
// Users are persisted in SQLite; deleting a network disconnects its users
// and deleting a hub revokes every grant to it.
package user
