// Package config defines process configuration and loading hooks.
package config

// Backend names accepted by StoreBackend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the document store: memory or redis.
	StoreBackend string `koanf:"store_backend"`

	// RedisAddr, RedisDB and RedisPassword configure the redis backend.
	RedisAddr     string `koanf:"redis_addr"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPassword string `koanf:"redis_password"`

	// DedupeSize bounds the idempotency receipt cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ReconcileQueueSize bounds the projection repair queue.
	ReconcileQueueSize int `koanf:"reconcile_queue_size"`

	// ReconcileWorkers sets the number of repair workers.
	ReconcileWorkers int `koanf:"reconcile_workers"`

	// ReconcileMaxAttempts bounds retries per repair job.
	ReconcileMaxAttempts int `koanf:"reconcile_max_attempts"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// AwardConflictRetries bounds award retries after write conflicts.
	AwardConflictRetries int `koanf:"award_conflict_retries"`

	// AwardTransientRetries bounds award retries after store errors.
	AwardTransientRetries int `koanf:"award_transient_retries"`

	// AwardRetryBackoffMS sets the pause between award retries.
	AwardRetryBackoffMS int `koanf:"award_retry_backoff_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		StoreBackend:          BackendMemory,
		RedisAddr:             "localhost:6379",
		DedupeSize:            50_000,
		ReconcileQueueSize:    4096,
		ReconcileWorkers:      2,
		ReconcileMaxAttempts:  5,
		MaxLeaderboardLimit:   100,
		AwardConflictRetries:  5,
		AwardTransientRetries: 3,
		AwardRetryBackoffMS:   50,
	}
}
