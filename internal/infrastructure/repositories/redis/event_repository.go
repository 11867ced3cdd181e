package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// maxEventsPerUser bounds per-user history in Redis; the list is trimmed
// on every append.
const maxEventsPerUser = 1000

// redisEvent includes the owning user id, which the domain type keeps
// out of its JSON form.
type redisEvent struct {
	UserID domain.UserID `json:"user_id"`
	domain.Event
}

type RedisEventRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisEventRepository(client *redis.Client) ports.EventRepository {
	return &RedisEventRepository{
		client: client,
		prefix: "homehub:events:",
	}
}

func (r *RedisEventRepository) historyKey(userID domain.UserID) string {
	return r.prefix + string(userID)
}

func (r *RedisEventRepository) Append(ctx context.Context, event *domain.Event) error {
	data, err := json.Marshal(redisEvent{UserID: event.UserID, Event: *event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := r.historyKey(event.UserID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxEventsPerUser-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

func (r *RedisEventRepository) ListRecent(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Event, error) {
	if limit <= 0 || limit > maxEventsPerUser {
		limit = maxEventsPerUser
	}

	entries, err := r.client.LRange(ctx, r.historyKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]*domain.Event, 0, len(entries))
	for _, entry := range entries {
		var stored redisEvent
		if err := json.Unmarshal([]byte(entry), &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		event := stored.Event
		event.UserID = stored.UserID
		events = append(events, &event)
	}
	return events, nil
}
