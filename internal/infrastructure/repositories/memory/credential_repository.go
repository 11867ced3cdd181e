package memory

import (
	"context"
	"sort"
	"sync"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
)

type credentialKey struct {
	UserID   domain.UserID
	Provider domain.Provider
}

type MemoryCredentialRepository struct {
	credentials map[credentialKey]*domain.StoredCredential
	mu          sync.RWMutex
}

func NewMemoryCredentialRepository() ports.CredentialRepository {
	return &MemoryCredentialRepository{
		credentials: make(map[credentialKey]*domain.StoredCredential),
	}
}

func (r *MemoryCredentialRepository) Upsert(ctx context.Context, cred *domain.StoredCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := credentialKey{UserID: cred.UserID, Provider: cred.Provider}
	copied := *cred
	if existing, ok := r.credentials[key]; ok {
		copied.Version = existing.Version + 1
	}
	r.credentials[key] = &copied
	return nil
}

func (r *MemoryCredentialRepository) Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.StoredCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.credentials[credentialKey{UserID: userID, Provider: provider}]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	copied := *cred
	return &copied, nil
}

func (r *MemoryCredentialRepository) Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := credentialKey{UserID: userID, Provider: provider}
	if _, ok := r.credentials[key]; !ok {
		return domain.ErrCredentialNotFound
	}
	delete(r.credentials, key)
	return nil
}

func (r *MemoryCredentialRepository) ListUserIDsWithStoredCredential(ctx context.Context, provider domain.Provider) ([]domain.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var userIDs []domain.UserID
	for key := range r.credentials {
		if key.Provider == provider {
			userIDs = append(userIDs, key.UserID)
		}
	}

	// Stable order keeps the reconnection sweep deterministic.
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	return userIDs, nil
}
