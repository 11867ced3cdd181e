package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisDeviceRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisDeviceRepository(client *redis.Client) ports.DeviceRepository {
	return &RedisDeviceRepository{
		client: client,
		prefix: "homehub:device:",
	}
}

func (r *RedisDeviceRepository) deviceKey(id domain.DeviceID) string {
	return r.prefix + string(id)
}

func (r *RedisDeviceRepository) userIndexKey(userID domain.UserID) string {
	return fmt.Sprintf("%suser:%s", r.prefix, userID)
}

func (r *RedisDeviceRepository) externalKey(userID domain.UserID, provider domain.Provider, externalID string) string {
	return fmt.Sprintf("%sext:%s:%s:%s", r.prefix, userID, provider, externalID)
}

func (r *RedisDeviceRepository) Upsert(ctx context.Context, device *domain.Device) error {
	data, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.deviceKey(device.ID), data, 0)
	pipe.SAdd(ctx, r.userIndexKey(device.UserID), string(device.ID))
	if device.ExternalID != "" {
		pipe.Set(ctx, r.externalKey(device.UserID, device.Provider, device.ExternalID), string(device.ID), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store device: %w", err)
	}
	return nil
}

func (r *RedisDeviceRepository) GetByID(ctx context.Context, id domain.DeviceID) (*domain.Device, error) {
	data, err := r.client.Get(ctx, r.deviceKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	var device domain.Device
	if err := json.Unmarshal([]byte(data), &device); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device: %w", err)
	}
	return &device, nil
}

func (r *RedisDeviceRepository) GetByExternalID(ctx context.Context, userID domain.UserID, provider domain.Provider, externalID string) (*domain.Device, error) {
	id, err := r.client.Get(ctx, r.externalKey(userID, provider, externalID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve external id: %w", err)
	}
	return r.GetByID(ctx, domain.DeviceID(id))
}

func (r *RedisDeviceRepository) FindByUser(ctx context.Context, userID domain.UserID) ([]*domain.Device, error) {
	ids, err := r.client.SMembers(ctx, r.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	sort.Strings(ids)

	devices := make([]*domain.Device, 0, len(ids))
	for _, id := range ids {
		device, err := r.GetByID(ctx, domain.DeviceID(id))
		if err == domain.ErrDeviceNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func (r *RedisDeviceRepository) UpdateStatus(ctx context.Context, id domain.DeviceID, status string) error {
	device, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	device.Status = status
	device.LastSeen = time.Now()
	return r.Upsert(ctx, device)
}
