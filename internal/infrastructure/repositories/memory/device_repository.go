package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
)

type MemoryDeviceRepository struct {
	devices map[domain.DeviceID]*domain.Device
	mu      sync.RWMutex
}

func NewMemoryDeviceRepository() ports.DeviceRepository {
	return &MemoryDeviceRepository{
		devices: make(map[domain.DeviceID]*domain.Device),
	}
}

func (r *MemoryDeviceRepository) Upsert(ctx context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *device
	r.devices[device.ID] = &copied
	return nil
}

func (r *MemoryDeviceRepository) GetByID(ctx context.Context, id domain.DeviceID) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

func (r *MemoryDeviceRepository) GetByExternalID(ctx context.Context, userID domain.UserID, provider domain.Provider, externalID string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, device := range r.devices {
		if device.UserID == userID && device.Provider == provider && device.ExternalID == externalID {
			copied := *device
			return &copied, nil
		}
	}
	return nil, domain.ErrDeviceNotFound
}

func (r *MemoryDeviceRepository) FindByUser(ctx context.Context, userID domain.UserID) ([]*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []*domain.Device
	for _, device := range r.devices {
		if device.UserID == userID {
			copied := *device
			devices = append(devices, &copied)
		}
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (r *MemoryDeviceRepository) UpdateStatus(ctx context.Context, id domain.DeviceID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return domain.ErrDeviceNotFound
	}
	device.Status = status
	device.LastSeen = time.Now()
	return nil
}
