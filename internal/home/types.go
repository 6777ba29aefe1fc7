package home

import "time"

// Network groups homes behind one address.
type Network struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Home is a set of devices on a network. Devices point at their home
// through device.Device.HomeID.
type Home struct {
	ID        string    `json:"id"`
	NetworkID string    `json:"network_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Security scoring.
const (
	// MaxSecurityScore is the top of the security scale.
	MaxSecurityScore = 10

	// SecureThreshold is the lowest score considered secure.
	SecureThreshold = 6
)

// SecurityReport is the outcome of a home security assessment.
type SecurityReport struct {
	HomeID          string `json:"home_id"`
	HomeName        string `json:"home_name"`
	TotalDevices    int    `json:"total_devices"`
	SecurityDevices int    `json:"security_devices"`
	ActiveSecurity  int    `json:"active_security_devices"`
	Score           int    `json:"score"`
	MaxScore        int    `json:"max_score"`
	Secure          bool   `json:"secure"`
}

// EnergyReport sums consumption over the devices of a home that are on.
type EnergyReport struct {
	HomeID        string  `json:"home_id"`
	HomeName      string  `json:"home_name"`
	TotalDevices  int     `json:"total_devices"`
	ActiveDevices int     `json:"active_devices"`
	TotalKWh      float64 `json:"total_kwh"`
}

// PowerResult lists the outcome of switching every device in a home.
type PowerResult struct {
	On      bool              `json:"on"`
	Changed []string          `json:"changed"`
	Failed  map[string]string `json:"failed,omitempty"`
}
