package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisCredentialRepository stores encrypted credential envelopes. Only
// the envelope ever reaches Redis; plaintext credentials stay in process
// memory.
type RedisCredentialRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisCredentialRepository(client *redis.Client) ports.CredentialRepository {
	return &RedisCredentialRepository{
		client: client,
		prefix: "homehub:credential:",
	}
}

func (r *RedisCredentialRepository) credentialKey(userID domain.UserID, provider domain.Provider) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, provider, userID)
}

func (r *RedisCredentialRepository) indexKey(provider domain.Provider) string {
	return fmt.Sprintf("%sindex:%s", r.prefix, provider)
}

func (r *RedisCredentialRepository) Upsert(ctx context.Context, cred *domain.StoredCredential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.credentialKey(cred.UserID, cred.Provider), data, 0)
	pipe.SAdd(ctx, r.indexKey(cred.Provider), string(cred.UserID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (r *RedisCredentialRepository) Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.StoredCredential, error) {
	data, err := r.client.Get(ctx, r.credentialKey(userID, provider)).Result()
	if err == redis.Nil {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	var cred domain.StoredCredential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

func (r *RedisCredentialRepository) Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.credentialKey(userID, provider))
	pipe.SRem(ctx, r.indexKey(provider), string(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

func (r *RedisCredentialRepository) ListUserIDsWithStoredCredential(ctx context.Context, provider domain.Provider) ([]domain.UserID, error) {
	members, err := r.client.SMembers(ctx, r.indexKey(provider)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	// Set members come back unordered; sort for a deterministic sweep.
	sort.Strings(members)

	userIDs := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, domain.UserID(m))
	}
	return userIDs, nil
}
