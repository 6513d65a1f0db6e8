package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"    validate:"required"`
	API      APIConfig      `mapstructure:"api"      validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig contains connection settings for the cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// APIConfig contains settings for the remote generation service.
type APIConfig struct {
	// BaseURL is the root of the generation backend, e.g.
	// https://api.example.com/. Endpoints are resolved relative to it.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// RequestTimeout bounds non-generation calls (auth, usage).
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`

	// GenerateTimeout bounds generation calls, which routinely take much
	// longer than metadata endpoints.
	GenerateTimeout time.Duration `mapstructure:"generate_timeout" validate:"required"`

	// MaxAttempts caps HTTP attempts per request inside the retry wrapper.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gte=1,lte=10"`
}

// QueueConfig contains tuning knobs for the job queue engine.
type QueueConfig struct {
	// BatchSize is how many jobs a single drain pass claims.
	BatchSize int `mapstructure:"batch_size" validate:"required,gte=1"`

	// MaxAttempts is the claim-cycle cap after which a still-failing job is
	// marked failed instead of retried.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gte=1"`

	// Lease is how long a claimed job may stay in processing before a
	// later pass considers it abandoned and resets it.
	Lease time.Duration `mapstructure:"lease" validate:"required"`

	// PurgeAge is how old a completed row must be before cleanup deletes it.
	PurgeAge time.Duration `mapstructure:"purge_age" validate:"required"`

	// DrainDelay is the re-arm delay when pending work remains after a pass.
	DrainDelay time.Duration `mapstructure:"drain_delay" validate:"required"`

	// QuotaRetryDelay is the pause applied when the remote service reports
	// the quota exhausted mid-drain.
	QuotaRetryDelay time.Duration `mapstructure:"quota_retry_delay" validate:"required"`
}
