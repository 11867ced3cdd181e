package repositories

import (
	"context"

	"homehub/internal/core/ports"
	"homehub/internal/infrastructure/repositories/memory"
	redisrepo "homehub/internal/infrastructure/repositories/redis"
	"homehub/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		cfg:      cfg,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateUserRepository creates a user repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateUserRepository() ports.UserRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisUserRepository(f.redisClient)
	}
	return memory.NewMemoryUserRepository()
}

// CreateCredentialRepository creates a credential repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateCredentialRepository() ports.CredentialRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisCredentialRepository(f.redisClient)
	}
	return memory.NewMemoryCredentialRepository()
}

// CreateDeviceRepository creates a device repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateDeviceRepository() ports.DeviceRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisDeviceRepository(f.redisClient)
	}
	return memory.NewMemoryDeviceRepository()
}

// CreateEventRepository creates an event repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateEventRepository() ports.EventRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisEventRepository(f.redisClient)
	}
	return memory.NewMemoryEventRepository()
}

// CreateStreamSessionStore creates the live stream session store. It is
// always memory-backed: stream sessions point at segment files on the
// local disk, so they are meaningless on any other instance.
func (f *RepositoryFactory) CreateStreamSessionStore() *memory.MemoryStreamSessionStore {
	return memory.NewMemoryStreamSessionStore(
		f.cfg.Livestream.IdleTimeout,
		f.cfg.Livestream.SweepInterval,
		f.logger,
	)
}

// RedisClient exposes the raw client for infrastructure that needs it
// directly, such as the reconnection sweep lock. Nil when Redis is not
// in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
