package device

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is a Repository kept entirely in process memory.
// It backs throwaway simulator sessions and tests that do not need SQLite.
type MemoryRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	order   []string
	seq     int64
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]*Device)}
}

// GetBySerial retrieves a device by serial.
func (m *MemoryRepository) GetBySerial(_ context.Context, serial string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[serial]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// List returns devices in creation order.
func (m *MemoryRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]Device, 0, len(m.order))
	for _, serial := range m.order {
		devices = append(devices, *m.devices[serial].DeepCopy())
	}
	return devices, nil
}

// Create inserts a new device.
func (m *MemoryRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.Serial]; ok {
		return ErrDeviceExists
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	m.devices[d.Serial] = d.DeepCopy()
	m.order = append(m.order, d.Serial)
	if n, ok := ParseSerial(d.Serial); ok && n > m.seq {
		m.seq = n
	}
	return nil
}

// Update writes the name, home and hub assignment of a device.
func (m *MemoryRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.devices[d.Serial]
	if !ok {
		return ErrDeviceNotFound
	}
	stored.Name = d.Name
	cpy := d.DeepCopy()
	stored.HomeID = cpy.HomeID
	stored.HubSerial = cpy.HubSerial
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateState writes the power flag, energy figure and state attributes.
func (m *MemoryRepository) UpdateState(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.devices[d.Serial]
	if !ok {
		return ErrDeviceNotFound
	}
	stored.IsOn = d.IsOn
	stored.EnergyConsumption = d.EnergyConsumption
	stored.State = State(deepCopyMap(d.State))
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes a device by serial. Devices attached to it as a hub are
// detached, matching the SQLite foreign key.
func (m *MemoryRepository) Delete(_ context.Context, serial string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[serial]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, serial)
	for _, d := range m.devices {
		if d.HubSerial != nil && *d.HubSerial == serial {
			d.HubSerial = nil
		}
	}
	for i, s := range m.order {
		if s == serial {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// NextSerial allocates the next never-used serial.
func (m *MemoryRepository) NextSerial(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return FormatSerial(m.seq), nil
}
