package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
)

var (
	ErrUnknownBackend     = errors.New("unknown store backend")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required for the postgres backend")
)

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// Store
	StoreBackend   string `envconfig:"STORE_BACKEND" default:"memory"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	DynamoTable    string `envconfig:"DYNAMODB_TABLE" default:"yoga-documents"`
	DynamoEndpoint string `envconfig:"DYNAMODB_ENDPOINT"`
	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Events
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"yoga-bookings"`
	KafkaGroupID string   `envconfig:"KAFKA_GROUP_ID" default:"yoga-notifier"`

	// Idempotency
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	// Email
	SMTPHost string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort string `envconfig:"SMTP_PORT" default:"1025"`
	SMTPFrom string `envconfig:"SMTP_FROM" default:"noreply@yoga-studio.local"`

	CatalogSeedFile string        `envconfig:"CATALOG_SEED_FILE"`
	ConnectAttempts uint          `envconfig:"CONNECT_ATTEMPTS" default:"5"`
	ConnectDelay    time.Duration `envconfig:"CONNECT_DELAY" default:"2s"`
}

// Load reads .env (if present) and then the process environment
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.KafkaBrokers = cleanList(c.KafkaBrokers)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendDynamo:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.StoreBackend)
	}
	return nil
}

// EventsEnabled reports whether booking events should be published
func (c Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if t := strings.TrimSpace(item); t != "" {
			out = append(out, t)
		}
	}
	return out
}
