package services

import (
	"sync"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"go.uber.org/zap"
)

type SessionKey struct {
	UserID   domain.UserID
	Provider domain.Provider
}

// Session is the live, in-memory authenticated link to a vendor for one
// user. It exists only while the process runs; nothing here is persisted.
type Session struct {
	UserID      domain.UserID
	Provider    domain.Provider
	Conn        ports.VendorConn
	ConnectedAt time.Time

	closeOnce sync.Once
}

// Close tears down the vendor connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.Conn != nil {
			err = s.Conn.Close()
		}
	})
	return err
}

// SessionRegistry is the single source of truth for "who is connected".
// All writers (manual connect, stored-credential reconnect,
// adapter-reported disconnect) go through it.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[SessionKey]*Session
	keyLocks map[SessionKey]*sync.Mutex

	logger *zap.SugaredLogger
}

func NewSessionRegistry(logger *zap.SugaredLogger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[SessionKey]*Session),
		keyLocks: make(map[SessionKey]*sync.Mutex),
		logger:   logger,
	}
}

// Lock serializes session mutations for one (user, provider) key.
// Concurrent connect attempts for the same key run one at a time; other
// keys are unaffected. The returned func releases the key.
func (r *SessionRegistry) Lock(userID domain.UserID, provider domain.Provider) func() {
	key := SessionKey{UserID: userID, Provider: provider}

	r.mu.Lock()
	keyLock, ok := r.keyLocks[key]
	if !ok {
		keyLock = &sync.Mutex{}
		r.keyLocks[key] = keyLock
	}
	r.mu.Unlock()

	keyLock.Lock()
	return keyLock.Unlock
}

// Get returns the live session for the key, or nil.
func (r *SessionRegistry) Get(userID domain.UserID, provider domain.Provider) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[SessionKey{UserID: userID, Provider: provider}]
}

// Set installs a session. Any superseded session for the same key is
// torn down first so at most one stays live per (user, provider).
func (r *SessionRegistry) Set(session *Session) {
	key := SessionKey{UserID: session.UserID, Provider: session.Provider}

	r.mu.Lock()
	previous := r.sessions[key]
	r.sessions[key] = session
	r.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			r.logger.Warnw("failed closing superseded session",
				"user_id", session.UserID, "provider", session.Provider, "error", err)
		}
	}
}

// Remove drops the registry entry and returns the removed session for
// teardown, or nil when the key was not connected.
func (r *SessionRegistry) Remove(userID domain.UserID, provider domain.Provider) *Session {
	key := SessionKey{UserID: userID, Provider: provider}

	r.mu.Lock()
	session := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	return session
}

// RemoveSession drops the entry only if it still holds exactly this
// session. A pump noticing its vendor link died must not evict a newer
// session that already replaced it.
func (r *SessionRegistry) RemoveSession(session *Session) bool {
	key := SessionKey{UserID: session.UserID, Provider: session.Provider}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[key] != session {
		return false
	}
	delete(r.sessions, key)
	return true
}

// IsConnected is a pure lookup, no network call.
func (r *SessionRegistry) IsConnected(userID domain.UserID, provider domain.Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[SessionKey{UserID: userID, Provider: provider}]
	return ok
}

// Count returns the number of live sessions per provider.
func (r *SessionRegistry) Count(provider domain.Provider) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for key := range r.sessions {
		if key.Provider == provider {
			n++
		}
	}
	return n
}

// CloseAll tears down every session; used at process shutdown.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[SessionKey]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			r.logger.Warnw("failed closing session during shutdown",
				"user_id", s.UserID, "provider", s.Provider, "error", err)
		}
	}
}
