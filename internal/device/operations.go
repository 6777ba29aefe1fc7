package device

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ArgKind is the expected kind of an operation argument.
type ArgKind string

// Argument kinds.
const (
	ArgInt    ArgKind = "int"
	ArgFloat  ArgKind = "float"
	ArgString ArgKind = "string"
)

// Param describes one positional operation argument.
type Param struct {
	Name string  `json:"name"`
	Kind ArgKind `json:"kind"`
}

// Operation is a named capability of a device type.
//
// Arity and argument kinds are fixed. Operations marked RequiresPower are
// refused with ErrDeviceRejected while the device is off; that is the only
// place the power precondition is checked.
type Operation struct {
	Name          string  `json:"name"`
	Params        []Param `json:"params,omitempty"`
	RequiresPower bool    `json:"requires_power"`

	// ReadOnly operations do not modify the device and are not persisted.
	ReadOnly bool `json:"read_only,omitempty"`

	apply func(d *Device, args []any) (any, error)
}

// Operation names shared by every device type.
const (
	OpTurnOn               = "turn_on"
	OpTurnOff              = "turn_off"
	OpToggle               = "toggle"
	OpSetEnergyConsumption = "set_energy_consumption"
	OpGetEnergyConsumption = "get_energy_consumption"
)

var commonOperations = []Operation{
	{Name: OpTurnOn, apply: func(d *Device, _ []any) (any, error) {
		d.IsOn = true
		return nil, nil
	}},
	{Name: OpTurnOff, apply: func(d *Device, _ []any) (any, error) {
		d.IsOn = false
		return nil, nil
	}},
	{Name: OpToggle, apply: func(d *Device, _ []any) (any, error) {
		d.IsOn = !d.IsOn
		return d.IsOn, nil
	}},
	{
		Name:   OpSetEnergyConsumption,
		Params: []Param{{Name: "kwh", Kind: ArgFloat}},
		apply: func(d *Device, args []any) (any, error) {
			v := args[0].(float64)
			if v < 0 {
				return nil, fmt.Errorf("%w: energy consumption must not be negative", ErrInvalidArguments)
			}
			d.EnergyConsumption = v
			return nil, nil
		},
	},
	{
		Name:          OpGetEnergyConsumption,
		RequiresPower: true,
		ReadOnly:      true,
		apply: func(d *Device, _ []any) (any, error) {
			return d.EnergyConsumption, nil
		},
	},
}

var typeOperations = map[DeviceType][]Operation{
	DeviceTypeLight: {
		{
			Name:          "set_brightness",
			Params:        []Param{{Name: "level", Kind: ArgInt}},
			RequiresPower: true,
			apply: func(d *Device, args []any) (any, error) {
				level := args[0].(int)
				if level < 0 || level > 100 {
					return nil, fmt.Errorf("%w: brightness %d outside 0-100", ErrInvalidArguments, level)
				}
				d.State[StateBrightness] = level
				return nil, nil
			},
		},
		{
			Name:          "set_colour",
			Params:        []Param{{Name: "colour", Kind: ArgString}},
			RequiresPower: true,
			apply:         setString(StateColour),
		},
	},
	DeviceTypeThermostat: {
		{
			Name:          "set_temperature",
			Params:        []Param{{Name: "celsius", Kind: ArgFloat}},
			RequiresPower: true,
			apply: func(d *Device, args []any) (any, error) {
				d.State[StateTemperature] = args[0].(float64)
				return nil, nil
			},
		},
		{
			Name:          "increase_temperature",
			Params:        []Param{{Name: "delta", Kind: ArgFloat}},
			RequiresPower: true,
			apply:         adjustFloat(StateTemperature, 1),
		},
		{
			Name:          "decrease_temperature",
			Params:        []Param{{Name: "delta", Kind: ArgFloat}},
			RequiresPower: true,
			apply:         adjustFloat(StateTemperature, -1),
		},
	},
	DeviceTypeCamera: {
		{
			Name:          "set_resolution",
			Params:        []Param{{Name: "resolution", Kind: ArgString}},
			RequiresPower: true,
			apply:         setString(StateResolution),
		},
		{Name: "record", RequiresPower: true, apply: setBool(StateRecording, true)},
		{Name: "stop_recording", RequiresPower: true, apply: setBool(StateRecording, false)},
	},
	DeviceTypeAppliance: {
		{
			Name:   "set_appliance_type",
			Params: []Param{{Name: "appliance_type", Kind: ArgString}},
			apply:  setString(StateApplianceType),
		},
	},
	DeviceTypeSpeaker: {
		{
			Name:   "set_volume",
			Params: []Param{{Name: "level", Kind: ArgInt}},
			apply: func(d *Device, args []any) (any, error) {
				return nil, setVolume(d, args[0].(int))
			},
		},
		{
			Name:   "increase_volume",
			Params: []Param{{Name: "delta", Kind: ArgInt}},
			apply: func(d *Device, args []any) (any, error) {
				return nil, setVolume(d, intState(d.State, StateVolume)+args[0].(int))
			},
		},
		{
			Name:   "decrease_volume",
			Params: []Param{{Name: "delta", Kind: ArgInt}},
			apply: func(d *Device, args []any) (any, error) {
				return nil, setVolume(d, intState(d.State, StateVolume)-args[0].(int))
			},
		},
		{
			Name:          "play_music",
			Params:        []Param{{Name: "song", Kind: ArgString}},
			RequiresPower: true,
			apply: func(d *Device, args []any) (any, error) {
				d.State[StateSong] = args[0].(string)
				d.State[StatePlaying] = true
				return nil, nil
			},
		},
		{Name: "stop_music", RequiresPower: true, apply: setBool(StatePlaying, false)},
	},
	DeviceTypeLock: {
		{Name: "lock", apply: setBool(StateLocked, true)},
		{Name: "unlock", apply: setBool(StateLocked, false)},
	},
	DeviceTypeDoorbell: {
		{Name: "ring", apply: setBool(StateRinging, true)},
		{Name: "stop_ringing", apply: setBool(StateRinging, false)},
	},
	DeviceTypeDoor: {
		{Name: "open_door", apply: setBool(StateOpen, true)},
		{Name: "close_door", apply: setBool(StateOpen, false)},
	},
}

func setString(key string) func(*Device, []any) (any, error) {
	return func(d *Device, args []any) (any, error) {
		v := strings.TrimSpace(args[0].(string))
		if v == "" {
			return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidArguments, key)
		}
		d.State[key] = v
		return nil, nil
	}
}

func setBool(key string, value bool) func(*Device, []any) (any, error) {
	return func(d *Device, _ []any) (any, error) {
		d.State[key] = value
		return nil, nil
	}
}

func adjustFloat(key string, sign float64) func(*Device, []any) (any, error) {
	return func(d *Device, args []any) (any, error) {
		next := floatState(d.State, key) + sign*args[0].(float64)
		d.State[key] = next
		return next, nil
	}
}

func setVolume(d *Device, level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: volume %d outside 0-100", ErrInvalidArguments, level)
	}
	d.State[StateVolume] = level
	return nil
}

// intState reads a numeric attribute that may have come back from JSON as float64.
func intState(s State, key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatState(s State, key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Operations returns the catalogue for a device type, sorted by name.
func Operations(t DeviceType) []Operation {
	specific := typeOperations[t]
	ops := make([]Operation, 0, len(commonOperations)+len(specific))
	ops = append(ops, commonOperations...)
	ops = append(ops, specific...)
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// LookupOperation finds an operation by name for a device type.
func LookupOperation(t DeviceType, name string) (Operation, bool) {
	for _, op := range typeOperations[t] {
		if op.Name == name {
			return op, true
		}
	}
	for _, op := range commonOperations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

// CoerceArgs checks arity and converts each argument to the kind the
// operation expects. Integral floats are accepted for int parameters
// because JSON decoding yields float64.
func (op Operation) CoerceArgs(args []any) ([]any, error) {
	if len(args) != len(op.Params) {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d",
			ErrInvalidArguments, op.Name, len(op.Params), len(args))
	}

	out := make([]any, len(args))
	for i, p := range op.Params {
		v, err := coerce(p.Kind, args[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %q: %v", ErrInvalidArguments, op.Name, p.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseArgs converts textual arguments (from the menu or a query string)
// into the kinds the operation expects.
func (op Operation) ParseArgs(raw []string) ([]any, error) {
	if len(raw) != len(op.Params) {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d",
			ErrInvalidArguments, op.Name, len(op.Params), len(raw))
	}

	out := make([]any, len(raw))
	for i, p := range op.Params {
		switch p.Kind {
		case ArgInt:
			n, err := strconv.Atoi(raw[i])
			if err != nil {
				return nil, fmt.Errorf("%w: %s argument %q: %q is not an integer", ErrInvalidArguments, op.Name, p.Name, raw[i])
			}
			out[i] = n
		case ArgFloat:
			f, err := strconv.ParseFloat(raw[i], 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: %s argument %q: %q is not a number", ErrInvalidArguments, op.Name, p.Name, raw[i])
			}
			out[i] = f
		default:
			out[i] = raw[i]
		}
	}
	return out, nil
}

func coerce(kind ArgKind, v any) (any, error) {
	switch kind {
	case ArgInt:
		return toInt(v)
	case ArgFloat:
		return toFloat(v)
	case ArgString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("want integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("want integer, got %s", n)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("want number, got %s", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("want finite number, got %v", f)
	}
	return f, nil
}

// invoke applies the operation to d after checking the power precondition.
// args must already be coerced.
func (op Operation) invoke(d *Device, args []any) (any, error) {
	if op.RequiresPower && !d.IsOn {
		return nil, fmt.Errorf("%w: %s is off, cannot %s", ErrDeviceRejected, d.Serial, op.Name)
	}
	if d.State == nil {
		d.State = State{}
	}
	return op.apply(d, args)
}
