// Package home provides networks and homes, the grouping above devices.
//
// A Network is identified by its IP address and contains Homes. A Home
// contains devices: membership is stored on the device (Device.HomeID), so
// the device registry stays the single owner of device state.
//
// Service adds the operations that span a whole home: a security
// assessment scored out of 10, an energy report over devices that are on,
// and switching every device on or off. Deleting a home deletes its
// devices; deleting a network deletes its homes.
//
// # Thread Safety
//
// Service and SQLiteRepository are safe for concurrent use.
package home
