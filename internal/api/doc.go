// Package api implements the HTTP REST API and WebSocket server for the
// smart home core.
//
// This package provides:
//   - REST endpoints for devices, hubs, users, networks, homes and
//     scheduled operations
//   - A WebSocket broadcaster pushing schedule fires and device state changes
//   - Prometheus metrics at /metrics
//   - Middleware (request ID, logging, recovery, CORS, body limit, rate limit)
//
// # Scheduling
//
// POST /api/v1/schedules registers a deferred operation with the scheduler
// engine and returns its handle immediately. Registration errors map onto
// HTTP status codes (unknown device 404, bad operation, arguments or
// schedule 400). Fire-time outcomes are never returned over HTTP; clients
// receive them on the "schedule.fired" WebSocket channel, and every fire
// is queryable afterwards through GET /api/v1/audit when an audit
// repository is configured.
//
// # Events
//
// GET /api/v1/ws upgrades to a WebSocket. Channels are chosen with
// ?channels=schedule.fired,device.state_changed or later with subscribe
// and unsubscribe frames, each answered by an ack or error frame with the
// same ID. Events for a subscriber whose queue is full are dropped.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
