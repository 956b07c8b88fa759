package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/heraldhq/herald/pkg/config"
)

// Config holds all configuration for the notification engine.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HERALD_HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"herald"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"herald"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"herald"`
	PostgresSSL  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Redis (rate limiter counters)
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Dispatcher
	DispatchWorkers   int           `env:"DISPATCH_WORKERS_PER_CHANNEL" envDefault:"2"`
	DispatchQueueSize int           `env:"DISPATCH_QUEUE_SIZE" envDefault:"256"`
	DeferralDelay     time.Duration `env:"DISPATCH_DEFERRAL_DELAY" envDefault:"1m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load herald config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.DispatchWorkers < 1 {
		return fmt.Errorf("invalid dispatch worker count: %d", c.DispatchWorkers)
	}
	if c.DeferralDelay <= 0 {
		return fmt.Errorf("deferral delay must be positive: %s", c.DeferralDelay)
	}
	return nil
}
