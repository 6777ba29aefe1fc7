package home

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceDirectory is the part of the device registry the Service needs.
// device.Registry satisfies it.
type DeviceDirectory interface {
	ListByHome(ctx context.Context, homeID string) ([]device.Device, error)
	AssignHome(ctx context.Context, serial string, homeID *string) error
	DeleteDevice(ctx context.Context, serial string) error
	Invoke(ctx context.Context, serial, op string, args []any) (any, error)
}

// Service manages networks and homes and the device operations that span
// a whole home.
type Service struct {
	repo    Repository
	devices DeviceDirectory
	logger  Logger
}

// NewService creates a home service.
func NewService(repo Repository, devices DeviceDirectory) *Service {
	return &Service{repo: repo, devices: devices, logger: noopLogger{}}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// CreateNetwork registers a network at the given IP address.
func (s *Service) CreateNetwork(ctx context.Context, name, ipAddress string) (*Network, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	addr, err := NormaliseAddress(ipAddress)
	if err != nil {
		return nil, err
	}

	n := &Network{ID: uuid.NewString(), Name: strings.TrimSpace(name), IPAddress: addr}
	if err := s.repo.CreateNetwork(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Info("network created", "id", n.ID, "ip_address", n.IPAddress)
	return n, nil
}

// GetNetwork returns one network.
func (s *Service) GetNetwork(ctx context.Context, id string) (*Network, error) {
	return s.repo.GetNetwork(ctx, id)
}

// ListNetworks returns all networks.
func (s *Service) ListNetworks(ctx context.Context) ([]Network, error) {
	return s.repo.ListNetworks(ctx)
}

// DeleteNetwork removes a network together with its homes and their devices.
func (s *Service) DeleteNetwork(ctx context.Context, id string) error {
	if _, err := s.repo.GetNetwork(ctx, id); err != nil {
		return err
	}
	homes, err := s.repo.ListHomesByNetwork(ctx, id)
	if err != nil {
		return err
	}
	for _, h := range homes {
		if err := s.DeleteHome(ctx, h.ID); err != nil {
			return fmt.Errorf("deleting home %s of network %s: %w", h.ID, id, err)
		}
	}
	if err := s.repo.DeleteNetwork(ctx, id); err != nil {
		return err
	}
	s.logger.Info("network deleted", "id", id, "homes", len(homes))
	return nil
}

// NetworkDevices returns every device in every home of a network.
func (s *Service) NetworkDevices(ctx context.Context, networkID string) ([]device.Device, error) {
	if _, err := s.repo.GetNetwork(ctx, networkID); err != nil {
		return nil, err
	}
	homes, err := s.repo.ListHomesByNetwork(ctx, networkID)
	if err != nil {
		return nil, err
	}
	var all []device.Device
	for _, h := range homes {
		devices, err := s.devices.ListByHome(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, devices...)
	}
	return all, nil
}

// CreateHome adds a home to a network.
func (s *Service) CreateHome(ctx context.Context, networkID, name string) (*Home, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetNetwork(ctx, networkID); err != nil {
		return nil, err
	}

	h := &Home{ID: uuid.NewString(), NetworkID: networkID, Name: strings.TrimSpace(name)}
	if err := s.repo.CreateHome(ctx, h); err != nil {
		return nil, err
	}
	s.logger.Info("home created", "id", h.ID, "network", networkID, "name", h.Name)
	return h, nil
}

// GetHome returns one home.
func (s *Service) GetHome(ctx context.Context, id string) (*Home, error) {
	return s.repo.GetHome(ctx, id)
}

// ListHomes returns the homes of networkID, or all homes when it is empty.
func (s *Service) ListHomes(ctx context.Context, networkID string) ([]Home, error) {
	if networkID == "" {
		return s.repo.ListHomes(ctx)
	}
	return s.repo.ListHomesByNetwork(ctx, networkID)
}

// DeleteHome removes a home and every device in it.
func (s *Service) DeleteHome(ctx context.Context, id string) error {
	if _, err := s.repo.GetHome(ctx, id); err != nil {
		return err
	}
	devices, err := s.devices.ListByHome(ctx, id)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if err := s.devices.DeleteDevice(ctx, d.Serial); err != nil {
			return fmt.Errorf("deleting device %s of home %s: %w", d.Serial, id, err)
		}
	}
	if err := s.repo.DeleteHome(ctx, id); err != nil {
		return err
	}
	s.logger.Info("home deleted", "id", id, "devices", len(devices))
	return nil
}

// Devices returns the devices of a home.
func (s *Service) Devices(ctx context.Context, homeID string) ([]device.Device, error) {
	if _, err := s.repo.GetHome(ctx, homeID); err != nil {
		return nil, err
	}
	return s.devices.ListByHome(ctx, homeID)
}

// AssignDevice moves a device into a home.
func (s *Service) AssignDevice(ctx context.Context, homeID, serial string) error {
	if _, err := s.repo.GetHome(ctx, homeID); err != nil {
		return err
	}
	id := homeID
	return s.devices.AssignHome(ctx, serial, &id)
}

// UnassignDevice detaches a device from its home.
func (s *Service) UnassignDevice(ctx context.Context, serial string) error {
	return s.devices.AssignHome(ctx, serial, nil)
}

// SecurityAssessment scores a home's security devices: one point for each
// lock, camera, doorbell or door and one more for each that is on.
func (s *Service) SecurityAssessment(ctx context.Context, homeID string) (*SecurityReport, error) {
	h, err := s.repo.GetHome(ctx, homeID)
	if err != nil {
		return nil, err
	}
	devices, err := s.devices.ListByHome(ctx, homeID)
	if err != nil {
		return nil, err
	}

	report := &SecurityReport{
		HomeID:       h.ID,
		HomeName:     h.Name,
		TotalDevices: len(devices),
		MaxScore:     MaxSecurityScore,
	}
	for _, d := range devices {
		if !d.Type.IsSecurity() {
			continue
		}
		report.SecurityDevices++
		report.Score++
		if d.IsOn {
			report.ActiveSecurity++
			report.Score++
		}
	}
	report.Secure = report.Score >= SecureThreshold
	return report, nil
}

// EnergyReport totals the consumption of the devices in a home that are on.
func (s *Service) EnergyReport(ctx context.Context, homeID string) (*EnergyReport, error) {
	h, err := s.repo.GetHome(ctx, homeID)
	if err != nil {
		return nil, err
	}
	devices, err := s.devices.ListByHome(ctx, homeID)
	if err != nil {
		return nil, err
	}

	report := &EnergyReport{HomeID: h.ID, HomeName: h.Name, TotalDevices: len(devices)}
	for _, d := range devices {
		if d.IsOn {
			report.ActiveDevices++
			report.TotalKWh += d.EnergyConsumption
		}
	}
	return report, nil
}

// SetPowerAll turns every device in a home on or off. A device that fails
// is recorded in the result and does not stop the others.
func (s *Service) SetPowerAll(ctx context.Context, homeID string, on bool) (*PowerResult, error) {
	if _, err := s.repo.GetHome(ctx, homeID); err != nil {
		return nil, err
	}
	devices, err := s.devices.ListByHome(ctx, homeID)
	if err != nil {
		return nil, err
	}

	op := device.OpTurnOff
	if on {
		op = device.OpTurnOn
	}

	result := &PowerResult{On: on, Changed: []string{}}
	for _, d := range devices {
		if _, err := s.devices.Invoke(ctx, d.Serial, op, nil); err != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[d.Serial] = err.Error()
			s.logger.Warn("power change failed", "home", homeID, "serial", d.Serial, "error", err)
			continue
		}
		result.Changed = append(result.Changed, d.Serial)
	}
	return result, nil
}
