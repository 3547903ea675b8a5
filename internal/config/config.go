package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "BLERTBANK"

type Config struct {
	DatabaseURL             string        `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxOpenConns    int           `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"30"`
	DatabaseMaxIdleConns    int           `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	DatabaseConnMaxLifetime time.Duration `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"30m"`
	TxMaxAttempts           int           `envconfig:"TX_MAX_ATTEMPTS" default:"5"`

	Port           int    `envconfig:"PORT" default:"3009"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ServiceToken   string `envconfig:"SERVICE_TOKEN" required:"true"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFilePath string `envconfig:"LOG_FILE_PATH"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	RedisURL            string        `envconfig:"REDIS_URL"`
	IdempotencyCacheTTL time.Duration `envconfig:"IDEMPOTENCY_CACHE_TTL" default:"24h"`

	RabbitMQURI      string `envconfig:"RABBITMQ_URI"`
	RabbitMQExchange string `envconfig:"RABBITMQ_EXCHANGE" default:"blertcoin"`

	// SystemAccounts maps system account names to their kind.
	SystemAccounts map[string]string `envconfig:"SYSTEM_ACCOUNTS" default:"treasury:treasury,purchases:sink"`
}

// Load reads configuration from the environment, after applying a .env file
// in the working directory if one exists.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%s_DATABASE_URL must not be blank", envPrefix)
	}
	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("%s_TX_MAX_ATTEMPTS must be at least 1", envPrefix)
	}
	if strings.TrimSpace(c.ServiceToken) == "" {
		return fmt.Errorf("%s_SERVICE_TOKEN must not be blank", envPrefix)
	}
	return nil
}

func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
