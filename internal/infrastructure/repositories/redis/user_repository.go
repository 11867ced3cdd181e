package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// redisUser carries the password hash, which the domain type excludes
// from its JSON form.
type redisUser struct {
	ID           domain.UserID   `json:"id"`
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	PasswordHash []byte          `json:"password_hash"`
	Role         domain.UserRole `json:"role"`
	CreatedAt    time.Time       `json:"created_at"`
}

type RedisUserRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisUserRepository(client *redis.Client) ports.UserRepository {
	return &RedisUserRepository{
		client: client,
		prefix: "homehub:user:",
	}
}

func (r *RedisUserRepository) userKey(id domain.UserID) string {
	return r.prefix + string(id)
}

func (r *RedisUserRepository) usernameKey(username string) string {
	return r.prefix + "name:" + username
}

func (r *RedisUserRepository) Create(ctx context.Context, user *domain.User) error {
	// Reserve the username first; SetNX makes concurrent registrations
	// with the same name lose cleanly.
	reserved, err := r.client.SetNX(ctx, r.usernameKey(user.Username), string(user.ID), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve username: %w", err)
	}
	if !reserved {
		return fmt.Errorf("username already taken: %s", user.Username)
	}

	data, err := json.Marshal(redisUser{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		CreatedAt:    user.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := r.client.Set(ctx, r.userKey(user.ID), data, 0).Err(); err != nil {
		r.client.Del(ctx, r.usernameKey(user.Username))
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

func (r *RedisUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	data, err := r.client.Get(ctx, r.userKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var stored redisUser
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &domain.User{
		ID:           stored.ID,
		Username:     stored.Username,
		Email:        stored.Email,
		PasswordHash: stored.PasswordHash,
		Role:         stored.Role,
		CreatedAt:    stored.CreatedAt,
	}, nil
}

func (r *RedisUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	id, err := r.client.Get(ctx, r.usernameKey(username)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username: %w", err)
	}
	return r.GetByID(ctx, domain.UserID(id))
}
