// Package schedule implements deferred and recurring device operations.
//
// A Descriptor names a device serial, an operation, its arguments, a
// Schedule and whether it recurs. The Engine validates it against the
// device registry, stores it and arms a timer. When the timer fires the
// operation is invoked on the device and an Event is handed to every
// Reporter. One-shot descriptors are then removed; recurring ones re-arm.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐
//	│      Engine      │    │      Store       │    │  DeviceRegistry  │
//	│   (engine.go)    │───▶│    (store.go)    │    │ (device package) │
//	│                  │    │                  │    │                  │
//	│ • Validate       │    │ • Entries by ID  │◀───│ • Validate op    │
//	│ • Fire/Re-arm    │    │ • Timer per entry│    │ • Invoke op      │
//	│ • Snapshot       │    │ • Stale-fire gen │    │                  │
//	└──────────────────┘    └──────────────────┘    └──────────────────┘
//	         │
//	         ▼
//	┌──────────────────┐
//	│    Reporters     │  log, MQTT, InfluxDB, WebSocket
//	└──────────────────┘
//
// # Schedules
//
// A Schedule is either relative ("fire 90s after arming") or absolute
// ("fire at 07:30"). Absolute times are interpreted in the engine's
// Location. A time equal to or before now fires at that time tomorrow.
//
//	s, _ := schedule.Parse("23:59") // absolute
//	s, _ = schedule.Parse("90")     // relative, seconds
//
// # Errors
//
// Engine.Schedule returns ErrInvalidSchedule, ErrUnknownDevice,
// ErrUnknownOperation or ErrInvalidArguments synchronously. Failures at
// fire time (ErrNotFound, ErrDeviceRejected, ErrInvokeTimeout,
// ErrInvokePanic) only reach reporters and never stop the engine; a
// recurring descriptor keeps its schedule after a failed fire.
//
// # Persistence
//
// Engine.Snapshot and Engine.Restore together with SnapshotRepository carry
// pending descriptors across restarts. Restored fire times are computed
// from the moment of restore.
//
// # Thread Safety
//
// All Engine methods are safe for concurrent use. A descriptor is never
// fired concurrently with itself.
package schedule
