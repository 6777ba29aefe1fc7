// Package device provides the Device Registry for the smart home core.
//
// The registry is the catalogue of every simulated device. It resolves a
// stable serial ("DEV-<n>") to a device and invokes named operations on it.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │    │    Repository    │    │    Operations    │
//	│  (registry.go)   │───▶│  (repository.go) │    │ (operations.go)  │
//	│                  │    │                  │    │                  │
//	│ • Resolve/Invoke │    │ • SQLite queries │    │ • Per-type table │
//	│ • In-memory cache│    │ • Serial sequence│    │ • Arg coercion   │
//	│ • Per-device lock│    │ • Memory variant │    │ • Power check    │
//	└──────────────────┘    └──────────────────┘    └──────────────────┘
//
// # Operations
//
// Each DeviceType has a fixed catalogue (see Operations). Every type shares
// turn_on, turn_off, toggle, set_energy_consumption and get_energy_consumption.
// Operations marked RequiresPower fail with ErrDeviceRejected while the device
// is off.
//
// # Usage
//
//	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	lamp := &device.Device{Name: "Hall lamp", Type: device.DeviceTypeLight}
//	_ = registry.CreateDevice(ctx, lamp) // lamp.Serial is now e.g. "DEV-1"
//	_, err := registry.Invoke(ctx, lamp.Serial, "set_brightness", []any{80})
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Invocations on the same
// device are serialised; reads return deep copies.
package device
