// Package config содержит логику чтения конфигурации сервиса расчётов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса расчётов.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	GatewayURL   string `env:"GATEWAY_URL"`
	RedisAddress string `env:"REDIS_ADDRESS"`

	GatewayAPIUser     string        `env:"GATEWAY_API_USER"`
	GatewayAPIKey      string        `env:"GATEWAY_API_KEY"`
	GatewayTimeout     time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	PaymentRedirectURL string        `env:"PAYMENT_REDIRECT_URL"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaOrderTopic string   `env:"KAFKA_ORDER_TOPIC" envDefault:"order-events"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	AuthSecret  string `env:"AUTH_SECRET"`

	PendingCheckInterval time.Duration `env:"PENDING_CHECK_INTERVAL" envDefault:"1m"`
	PendingMinAge        time.Duration `env:"PENDING_MIN_AGE" envDefault:"5m"`
	VerifyWebhooks       bool          `env:"VERIFY_WEBHOOKS" envDefault:"false"`
	WebhookDedupTTL      time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"24h"`
}

// Production сообщает, запущен ли сервис в боевом режиме.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Parse считывает конфигурацию из файла .env, переменных окружения и флагов командной строки.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayURL := cfg.GatewayURL
	envRedisAddress := cfg.RedisAddress

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayURL, "g", "", "payment gateway base URL")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for webhook deduplication")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayURL != "" {
		cfg.GatewayURL = envGatewayURL
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.DatabaseURI == "" {
		return nil, errors.New("database URI is required")
	}

	return cfg, nil
}
