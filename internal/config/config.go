// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Snapshot backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds every setting read from the environment. A .env file is picked up
// by the godotenv autoload import in each cmd.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`

	SnapshotBackend string `env:"SNAPSHOT_BACKEND" envDefault:"memory"`
	SnapshotKey     string `env:"SNAPSHOT_KEY" envDefault:"scoreTrackerGame"`

	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"scoretracker.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	HistorianQueueName string        `env:"HISTORIAN_QUEUE_NAME" envDefault:"scoretracker_actions"`
	HistorianBatchSize int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	HistorianFlushMs   int           `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`
	InactivityTimeout  time.Duration `env:"GAME_INACTIVITY_TIMEOUT" envDefault:"10m"`

	// TokenExpireTime is a Go duration, or "never"/"0" for tokens without exp.
	TokenExpireTime string `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`

	// Signing keys for table tokens. Both empty means a throwaway pair per process.
	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`

	// TableIdleTimeout is how long an unused table stays in memory.
	TableIdleTimeout time.Duration `env:"TABLE_IDLE_TIMEOUT" envDefault:"30m"`

	WinThreshold int `env:"WIN_THRESHOLD" envDefault:"10000"`
	StarsToWin   int `env:"STARS_TO_WIN" envDefault:"5"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later at connect time.
func (c Config) Validate() error {
	switch c.SnapshotBackend {
	case BackendMemory, BackendRedis, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend)
	}
	if c.HistorianBatchSize <= 0 {
		return fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive")
	}
	if c.HistorianFlushMs <= 0 {
		return fmt.Errorf("HISTORIAN_FLUSH_MS must be positive")
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set together")
	}
	if c.TableIdleTimeout <= 0 {
		return fmt.Errorf("TABLE_IDLE_TIMEOUT must be positive")
	}
	return nil
}

// PersistentKeys reports whether token signing keys are read from disk.
func (c Config) PersistentKeys() bool {
	return c.JWTPrivateKeyPath != "" && c.JWTPublicKeyPath != ""
}

// TokenTTL returns the session lifetime; zero means tokens never expire.
func (c Config) TokenTTL() (time.Duration, error) {
	v := strings.TrimSpace(c.TokenExpireTime)
	if v == "" || v == "0" || strings.EqualFold(v, "never") {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("TOKEN_EXPIRE_TIME must not be negative")
	}
	return d, nil
}

// FlushInterval is HistorianFlushMs as a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.HistorianFlushMs) * time.Millisecond
}

// IsProduction reports whether cookies should be marked Secure.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// RuleOverrides returns the rule settings in the shape game.Rules.Update expects.
func (c Config) RuleOverrides() map[string]interface{} {
	return map[string]interface{}{
		"winThreshold": c.WinThreshold,
		"starsToWin":   c.StarsToWin,
	}
}

// NewLogger builds the process logger at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL %q, using info", c.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
