package device

import "time"

// Device represents a simulated smart device.
//
// Serial is assigned once at creation ("DEV-<n>") and is never reused, so
// it stays valid as an external reference for the lifetime of the device.
type Device struct {
	Serial            string     `json:"serial"`
	Name              string     `json:"name"`
	Type              DeviceType `json:"type"`
	HomeID            *string    `json:"home_id,omitempty"`
	HubSerial         *string    `json:"hub_serial,omitempty"`
	IsOn              bool       `json:"is_on"`
	EnergyConsumption float64    `json:"energy_consumption"`
	State             State      `json:"state"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// State holds the type-specific attributes of a device (brightness, colour,
// temperature, ...). Keys are the constants below.
type State map[string]any

// State keys.
const (
	StateBrightness    = "brightness"
	StateColour        = "colour"
	StateTemperature   = "temperature"
	StateResolution    = "resolution"
	StateRecording     = "recording"
	StateApplianceType = "appliance_type"
	StateVolume        = "volume"
	StateSong          = "song"
	StatePlaying       = "playing"
	StateLocked        = "locked"
	StateRinging       = "ringing"
	StateOpen          = "open"
)

// DeviceType identifies which operation catalogue applies to a device.
type DeviceType string

// Supported device types.
const (
	DeviceTypeLight      DeviceType = "light"
	DeviceTypeThermostat DeviceType = "thermostat"
	DeviceTypeCamera     DeviceType = "camera"
	DeviceTypeAppliance  DeviceType = "appliance"
	DeviceTypeSpeaker    DeviceType = "speaker"
	DeviceTypeLock       DeviceType = "lock"
	DeviceTypeDoorbell   DeviceType = "doorbell"
	DeviceTypeDoor       DeviceType = "door"
	DeviceTypeHub        DeviceType = "hub"
)

// AllDeviceTypes returns every supported device type.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeLight,
		DeviceTypeThermostat,
		DeviceTypeCamera,
		DeviceTypeAppliance,
		DeviceTypeSpeaker,
		DeviceTypeLock,
		DeviceTypeDoorbell,
		DeviceTypeDoor,
		DeviceTypeHub,
	}
}

// IsSecurity reports whether the type counts towards a home's security assessment.
func (t DeviceType) IsSecurity() bool {
	switch t {
	case DeviceTypeLock, DeviceTypeCamera, DeviceTypeDoorbell, DeviceTypeDoor:
		return true
	default:
		return false
	}
}

// DefaultState returns the attributes a new device of type t starts with.
func DefaultState(t DeviceType) State {
	switch t {
	case DeviceTypeLight:
		return State{StateBrightness: 50, StateColour: "White"}
	case DeviceTypeThermostat:
		return State{StateTemperature: 22.0}
	case DeviceTypeCamera:
		return State{StateResolution: "1080p", StateRecording: false}
	case DeviceTypeAppliance:
		return State{StateApplianceType: "generic"}
	case DeviceTypeSpeaker:
		return State{StateVolume: 50, StatePlaying: false, StateSong: ""}
	case DeviceTypeLock:
		return State{StateLocked: true}
	case DeviceTypeDoorbell:
		return State{StateRinging: false}
	case DeviceTypeDoor:
		return State{StateOpen: false}
	default:
		return State{}
	}
}

// DeepCopy returns an independent copy of the device.
// Registry reads hand out copies so callers can never mutate cached state.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.HomeID != nil {
		home := *d.HomeID
		cpy.HomeID = &home
	}
	if d.HubSerial != nil {
		hub := *d.HubSerial
		cpy.HubSerial = &hub
	}
	cpy.State = State(deepCopyMap(d.State))
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case State:
		return State(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
