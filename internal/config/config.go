// Package config provides configuration management for medadmin.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Connection-string environment variables. They take precedence over the
// config file and the MEDADMIN_* variables.
const (
	EnvRedisURL    = "REDIS_URL"
	EnvDatabaseURL = "DATABASE_URL"
)

// Config holds all configuration for medadmin.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	KV          KVConfig          `mapstructure:"kv"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Tenants     TenantsConfig     `mapstructure:"tenants"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	GRPC        GRPCConfig        `mapstructure:"grpc"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// KVConfig selects and tunes the tenant key-value backend.
type KVConfig struct {
	// Backend is "redis" or "memory".
	Backend        string `mapstructure:"backend"`
	MemoryMaxSize  int    `mapstructure:"memory_max_size"`
	DefaultPerPage int    `mapstructure:"default_per_page"`
	MaxPerPage     int    `mapstructure:"max_per_page"`
}

// RedisConfig holds the hosted key-value store connection.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection used for migrations and
// readiness checks.
type DatabaseConfig struct {
	URL               string        `mapstructure:"url"`
	MaxConnections    int           `mapstructure:"max_connections"`
	MinConnections    int           `mapstructure:"min_connections"`
	MigrateOnStartup  bool          `mapstructure:"migrate_on_startup"`
	MigrationsTimeout time.Duration `mapstructure:"migrations_timeout"`
}

// TenantsConfig tunes the tenant registry cache.
type TenantsConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// GRPCConfig holds the gRPC health service configuration.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables and validates
// it for serving.
func Load(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadDatabase reads configuration for commands that only talk to PostgreSQL.
func LoadDatabase(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("config validation failed: %s is required", EnvDatabaseURL)
	}
	return cfg, nil
}

// LoadKV reads configuration for commands that only talk to the key-value store.
func LoadKV(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.KV.Backend == "redis" && cfg.Redis.URL == "" {
		return nil, fmt.Errorf("config validation failed: %s is required", EnvRedisURL)
	}
	return cfg, nil
}

func load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/medadmin/")
	}

	// Read environment variables
	v.SetEnvPrefix("MEDADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The connection strings keep their conventional names
	if err := v.BindEnv("redis.url", EnvRedisURL, "MEDADMIN_REDIS_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", EnvRedisURL, err)
	}
	if err := v.BindEnv("database.url", EnvDatabaseURL, "MEDADMIN_DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", EnvDatabaseURL, err)
	}

	// Read config file (ignore if not found, use defaults/env)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Key-value defaults
	v.SetDefault("kv.backend", "redis")
	v.SetDefault("kv.memory_max_size", 100000)
	v.SetDefault("kv.default_per_page", 20)
	v.SetDefault("kv.max_per_page", 100)

	// Redis defaults
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.migrate_on_startup", true)
	v.SetDefault("database.migrations_timeout", "2m")

	// Tenant registry defaults
	v.SetDefault("tenants.cache_size", 10000)
	v.SetDefault("tenants.cache_ttl", "5m")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	// Rate limiter defaults
	v.SetDefault("rate_limiter.enabled", true)
	v.SetDefault("rate_limiter.requests_per_second", 500.0)
	v.SetDefault("rate_limiter.burst_size", 100)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// gRPC health defaults
	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.port", 50051)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.KV.Backend {
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("%s is required when kv.backend is redis", EnvRedisURL)
		}
	case "memory":
	default:
		return fmt.Errorf("kv.backend must be one of: redis, memory (got %q)", c.KV.Backend)
	}

	if c.KV.DefaultPerPage <= 0 {
		return fmt.Errorf("kv.default_per_page must be positive")
	}
	if c.KV.MaxPerPage < c.KV.DefaultPerPage {
		return fmt.Errorf("kv.max_per_page must be at least kv.default_per_page")
	}

	if c.Database.MigrateOnStartup && c.Database.URL == "" {
		return fmt.Errorf("%s is required when database.migrate_on_startup is set", EnvDatabaseURL)
	}

	if c.Tenants.CacheTTL < 0 {
		return fmt.Errorf("tenants.cache_ttl must not be negative")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	if c.GRPC.Enabled {
		if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
			return fmt.Errorf("invalid grpc port: %d", c.GRPC.Port)
		}
	}

	return nil
}
