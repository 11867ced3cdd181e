package ports

import (
	"context"

	"homehub/internal/core/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type CredentialRepository interface {
	// Upsert replaces any existing credential for the same (user, provider).
	Upsert(ctx context.Context, cred *domain.StoredCredential) error
	Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.StoredCredential, error)
	Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) error
	// ListUserIDsWithStoredCredential returns user ids in a stable order so
	// the reconnection sweep is deterministic.
	ListUserIDsWithStoredCredential(ctx context.Context, provider domain.Provider) ([]domain.UserID, error)
}

type DeviceRepository interface {
	Upsert(ctx context.Context, device *domain.Device) error
	GetByID(ctx context.Context, id domain.DeviceID) (*domain.Device, error)
	GetByExternalID(ctx context.Context, userID domain.UserID, provider domain.Provider, externalID string) (*domain.Device, error)
	FindByUser(ctx context.Context, userID domain.UserID) ([]*domain.Device, error)
	UpdateStatus(ctx context.Context, id domain.DeviceID, status string) error
}

type EventRepository interface {
	// Append stores an immutable event. Events are never updated or deleted.
	Append(ctx context.Context, event *domain.Event) error
	ListRecent(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Event, error)
}

type StreamSessionStore interface {
	Put(ctx context.Context, session *domain.StreamSession) error
	Get(ctx context.Context, id domain.StreamSessionID) (*domain.StreamSession, error)
	// Touch extends the idle-expiry deadline.
	Touch(ctx context.Context, id domain.StreamSessionID) error
	Delete(ctx context.Context, id domain.StreamSessionID) error
}
