package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/home"
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

// NetworkLookup resolves networks. home.Service satisfies it.
type NetworkLookup interface {
	GetNetwork(ctx context.Context, id string) (*home.Network, error)
}

// DeviceLookup resolves devices. device.Registry satisfies it.
type DeviceLookup interface {
	Resolve(ctx context.Context, serial string) (*device.Device, error)
}

// Service manages users, their network connection and their hub grants.
type Service struct {
	repo     Repository
	networks NetworkLookup
	devices  DeviceLookup
	logger   Logger
}

// NewService creates a user service.
func NewService(repo Repository, networks NetworkLookup, devices DeviceLookup) *Service {
	return &Service{repo: repo, networks: networks, devices: devices, logger: noopLogger{}}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// CreateUser registers a new user.
func (s *Service) CreateUser(ctx context.Context, username string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	u := &User{Username: username}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user created", "id", u.ID, "username", u.Username)
	return u, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// FindUser resolves ref as a user ID first and then as a username.
func (s *Service) FindUser(ctx context.Context, ref string) (*User, error) {
	u, err := s.repo.GetByID(ctx, ref)
	if errors.Is(err, ErrUserNotFound) {
		u, err = s.repo.GetByUsername(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, ref)
		}
		return nil, err
	}
	return u, nil
}

// ListUsers returns all users, or those connected to networkID when it is set.
func (s *Service) ListUsers(ctx context.Context, networkID string) ([]User, error) {
	if networkID == "" {
		return s.repo.List(ctx)
	}
	if _, err := s.networks.GetNetwork(ctx, networkID); err != nil {
		return nil, err
	}
	return s.repo.ListByNetwork(ctx, networkID)
}

// DeleteUser removes a user and its hub grants.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", "id", id)
	return nil
}

// UserCount returns the number of registered users.
func (s *Service) UserCount(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Connect connects a user to a network, replacing any previous connection.
func (s *Service) Connect(ctx context.Context, userID, networkID string) (*User, error) {
	n, err := s.networks.GetNetwork(ctx, networkID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetNetwork(ctx, userID, &n.ID); err != nil {
		return nil, err
	}
	s.logger.Info("user connected", "id", userID, "network", n.ID, "ip_address", n.IPAddress)
	return s.repo.GetByID(ctx, userID)
}

// Disconnect detaches a user from its network.
// Returns ErrNotConnected when the user has no network.
func (s *Service) Disconnect(ctx context.Context, userID string) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Connected() {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, u.Username)
	}
	if err := s.repo.SetNetwork(ctx, userID, nil); err != nil {
		return nil, err
	}
	s.logger.Info("user disconnected", "id", userID, "network", *u.NetworkID)
	u.NetworkID = nil
	return u, nil
}

// AddHubUser grants a user access to a hub.
func (s *Service) AddHubUser(ctx context.Context, hubSerial, userID string) error {
	if err := s.requireHub(ctx, hubSerial); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.AddToHub(ctx, hubSerial, userID); err != nil {
		return err
	}
	s.logger.Info("user added to hub", "id", userID, "hub", hubSerial)
	return nil
}

// RemoveHubUser revokes a user's access to a hub.
func (s *Service) RemoveHubUser(ctx context.Context, hubSerial, userID string) error {
	if err := s.requireHub(ctx, hubSerial); err != nil {
		return err
	}
	if err := s.repo.RemoveFromHub(ctx, hubSerial, userID); err != nil {
		if errors.Is(err, ErrNotHubUser) {
			return fmt.Errorf("%w: %s on %s", ErrNotHubUser, userID, hubSerial)
		}
		return err
	}
	s.logger.Info("user removed from hub", "id", userID, "hub", hubSerial)
	return nil
}

// HubUsers lists the users granted access to a hub.
func (s *Service) HubUsers(ctx context.Context, hubSerial string) ([]User, error) {
	if err := s.requireHub(ctx, hubSerial); err != nil {
		return nil, err
	}
	return s.repo.ListByHub(ctx, hubSerial)
}

func (s *Service) requireHub(ctx context.Context, serial string) error {
	d, err := s.devices.Resolve(ctx, serial)
	if err != nil {
		return err
	}
	if d.Type != device.DeviceTypeHub {
		return fmt.Errorf("%w: %s is a %s", device.ErrNotHub, serial, d.Type)
	}
	return nil
}
