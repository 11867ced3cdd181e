package memory

import (
	"context"
	"os"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	"homehub/pkg/cache"

	"go.uber.org/zap"
)

// MemoryStreamSessionStore keeps live stream sessions in a TTL cache.
// Sessions that go untouched past the idle timeout are reaped by the
// cache sweep, and their segment directories reclaimed by the eviction
// hook.
type MemoryStreamSessionStore struct {
	cache  *cache.Cache
	logger *zap.SugaredLogger
}

func NewMemoryStreamSessionStore(idleTimeout, sweepInterval time.Duration, logger *zap.SugaredLogger) *MemoryStreamSessionStore {
	store := &MemoryStreamSessionStore{logger: logger}
	store.cache = cache.New(idleTimeout, sweepInterval, store.onEvict)
	return store
}

func (s *MemoryStreamSessionStore) onEvict(key string, value interface{}) {
	session, ok := value.(*domain.StreamSession)
	if !ok {
		return
	}
	if err := os.RemoveAll(session.Dir); err != nil {
		s.logger.Warnw("failed reclaiming expired session directory",
			"session_id", key, "error", err)
		return
	}
	s.logger.Infow("stream session expired", "session_id", key)
}

func (s *MemoryStreamSessionStore) Put(ctx context.Context, session *domain.StreamSession) error {
	copied := *session
	s.cache.Set(string(session.ID), &copied)
	return nil
}

func (s *MemoryStreamSessionStore) Get(ctx context.Context, id domain.StreamSessionID) (*domain.StreamSession, error) {
	value, ok := s.cache.Get(string(id))
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	session := value.(*domain.StreamSession)
	copied := *session
	return &copied, nil
}

func (s *MemoryStreamSessionStore) Touch(ctx context.Context, id domain.StreamSessionID) error {
	if !s.cache.Touch(string(id)) {
		return domain.ErrStreamNotFound
	}
	return nil
}

func (s *MemoryStreamSessionStore) Delete(ctx context.Context, id domain.StreamSessionID) error {
	s.cache.Delete(string(id))
	return nil
}

// Close stops the expiry sweep.
func (s *MemoryStreamSessionStore) Close() {
	s.cache.Close()
}

var _ ports.StreamSessionStore = (*MemoryStreamSessionStore)(nil)
