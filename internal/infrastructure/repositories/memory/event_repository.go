package memory

import (
	"context"
	"sync"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
)

// maxEventsPerUser bounds the in-memory history; the oldest events fall
// off first.
const maxEventsPerUser = 1000

type MemoryEventRepository struct {
	events map[domain.UserID][]*domain.Event
	mu     sync.RWMutex
}

func NewMemoryEventRepository() ports.EventRepository {
	return &MemoryEventRepository{
		events: make(map[domain.UserID][]*domain.Event),
	}
}

func (r *MemoryEventRepository) Append(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *event
	history := append(r.events[event.UserID], &copied)
	if len(history) > maxEventsPerUser {
		history = history[len(history)-maxEventsPerUser:]
	}
	r.events[event.UserID] = history
	return nil
}

// ListRecent returns up to limit events, newest first.
func (r *MemoryEventRepository) ListRecent(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.events[userID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}

	recent := make([]*domain.Event, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		copied := *history[i]
		recent = append(recent, &copied)
	}
	return recent, nil
}
