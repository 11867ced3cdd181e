package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Vault struct {
		// Secret is the application-wide encryption secret, supplied once
		// at process start. Losing it makes stored credentials
		// permanently unrecoverable.
		Secret       string `yaml:"secret"`
		Argon2Time   uint32 `yaml:"argon2_time"`
		Argon2Memory uint32 `yaml:"argon2_memory"` // KiB
		Argon2Lanes  uint8  `yaml:"argon2_lanes"`
	} `yaml:"vault"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
		// StreamTokenTTL bounds the short-lived signed token the media
		// player carries as a query parameter.
		StreamTokenTTL time.Duration `yaml:"stream_token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Providers struct {
		Vacuum struct {
			BaseURL      string        `yaml:"base_url"`
			PollInterval time.Duration `yaml:"poll_interval"`
		} `yaml:"vacuum"`
		Doorbell struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"doorbell"`
	} `yaml:"providers"`

	Livestream struct {
		MediaRoot     string        `yaml:"media_root"`
		IdleTimeout   time.Duration `yaml:"idle_timeout"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		PingInterval  time.Duration `yaml:"ping_interval"`
		PongTimeout   time.Duration `yaml:"pong_timeout"`
		// SubscriberBuffer bounds the per-subscriber event queue; a
		// stalled client drops events rather than stalling publication.
		SubscriberBuffer int `yaml:"subscriber_buffer"`
	} `yaml:"livestream"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int     `yaml:"connections_per_minute"`
			MessagesPerSecond    float64 `yaml:"messages_per_second"`
			Burst                int     `yaml:"burst"`
			MaxMessageSizeBytes  int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Vault.Secret == "" {
		return fmt.Errorf("vault.secret must not be empty")
	}
	if c.Vault.Argon2Time == 0 {
		return fmt.Errorf("vault.argon2_time must be > 0")
	}
	if c.Vault.Argon2Memory < 8*1024 {
		return fmt.Errorf("vault.argon2_memory must be >= 8192 KiB")
	}
	if c.Vault.Argon2Lanes == 0 {
		return fmt.Errorf("vault.argon2_lanes must be > 0")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be > 0")
	}
	if c.Auth.StreamTokenTTL <= 0 {
		return fmt.Errorf("auth.stream_token_ttl must be > 0")
	}

	if c.Livestream.MediaRoot == "" {
		return fmt.Errorf("livestream.media_root must not be empty")
	}
	if c.Livestream.IdleTimeout <= 0 {
		return fmt.Errorf("livestream.idle_timeout must be > 0")
	}
	if c.Livestream.SweepInterval <= 0 {
		return fmt.Errorf("livestream.sweep_interval must be > 0")
	}
	if c.Livestream.PingInterval <= 0 {
		return fmt.Errorf("livestream.ping_interval must be > 0")
	}
	if c.Livestream.PongTimeout <= 0 {
		return fmt.Errorf("livestream.pong_timeout must be > 0")
	}
	if c.Livestream.SubscriberBuffer <= 0 {
		return fmt.Errorf("livestream.subscriber_buffer must be > 0")
	}

	if c.Providers.Vacuum.PollInterval <= 0 {
		return fmt.Errorf("providers.vacuum.poll_interval must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Vault.Secret = ""
	cfg.Vault.Argon2Time = 1
	cfg.Vault.Argon2Memory = 64 * 1024
	cfg.Vault.Argon2Lanes = 4

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.Auth.StreamTokenTTL = 5 * time.Minute
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Providers.Vacuum.BaseURL = "https://api.vacuum.example.com"
	cfg.Providers.Vacuum.PollInterval = 30 * time.Second
	cfg.Providers.Doorbell.BaseURL = "https://api.doorbell.example.com"

	cfg.Livestream.MediaRoot = "/var/lib/homehub/streams"
	cfg.Livestream.IdleTimeout = 2 * time.Minute
	cfg.Livestream.SweepInterval = time.Minute
	cfg.Livestream.PingInterval = 30 * time.Second
	cfg.Livestream.PongTimeout = 60 * time.Second
	cfg.Livestream.SubscriberBuffer = 64

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 100
	cfg.RateLimiting.WebSocket.Burst = 200
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("HOMEHUB_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("HOMEHUB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("HOMEHUB_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("HOMEHUB_VAULT_SECRET"); secret != "" {
		c.Vault.Secret = secret
	}
	if addr := os.Getenv("HOMEHUB_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if root := os.Getenv("HOMEHUB_MEDIA_ROOT"); root != "" {
		c.Livestream.MediaRoot = root
	}
}
