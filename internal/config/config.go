package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Platforms PlatformsConfig
	Server    ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// RedisConfig holds redis connection settings for the sync lease.
// When disabled, scheduled syncs run without cross-instance coordination.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// KafkaConfig holds Kafka/event streaming configuration.
// When disabled, webhook events are dispatched in-process.
type KafkaConfig struct {
	Enabled       bool
	Brokers       string
	Topic         string
	ConsumerGroup string
}

// SchedulerConfig holds sync scheduler configuration
type SchedulerConfig struct {
	Interval        time.Duration // how often integrations are considered due
	MaxConcurrency  int           // bounded fan-out per tick
	DispatchWorkers int           // workers draining webhook dispatch
}

// PlatformCredentials holds app-level credentials for one platform
type PlatformCredentials struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
}

// PlatformsConfig holds app-level credentials per supported platform
type PlatformsConfig struct {
	Facebook        PlatformCredentials
	TikTok          PlatformCredentials
	Line            PlatformCredentials
	Shopee          PlatformCredentials
	GoogleAnalytics PlatformCredentials
	// FailureRedirectURI is where OAuth callbacks land on error,
	// without internal detail in the URL.
	FailureRedirectURI string
	WebAppURI          string
	// WebhookVerifyToken answers Facebook's GET subscription challenge.
	WebhookVerifyToken string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Redis configuration
	cfg.Redis.Enabled = getEnvWithDefault("REDIS_ENABLED", "false") == "true"
	if cfg.Redis.Enabled {
		if cfg.Redis.Host, err = requireEnv("REDIS_HOST"); err != nil {
			return nil, err
		}
		port := getEnvWithDefault("REDIS_PORT", "6379")
		cfg.Redis.Port, err = strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_PORT: %w", err)
		}
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
		db := getEnvWithDefault("REDIS_DB", "0")
		cfg.Redis.DB, err = strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_DB: %w", err)
		}
	}

	// Kafka configuration
	cfg.Kafka.Enabled = getEnvWithDefault("KAFKA_ENABLED", "false") == "true"
	if cfg.Kafka.Enabled {
		if cfg.Kafka.Brokers, err = requireEnv("KAFKA_BROKERS"); err != nil {
			return nil, err
		}
	}
	cfg.Kafka.Topic = getEnvWithDefault("KAFKA_TOPIC", "webhook-events")
	cfg.Kafka.ConsumerGroup = getEnvWithDefault("KAFKA_CONSUMER_GROUP", "webhook-consumers")

	// Scheduler configuration
	interval := getEnvWithDefault("SYNC_INTERVAL", "1h")
	cfg.Scheduler.Interval, err = time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SYNC_INTERVAL: %w", err)
	}

	maxConcurrency := getEnvWithDefault("SYNC_MAX_CONCURRENCY", "4")
	cfg.Scheduler.MaxConcurrency, err = strconv.Atoi(maxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SYNC_MAX_CONCURRENCY: %w", err)
	}

	dispatchWorkers := getEnvWithDefault("DISPATCH_WORKERS", "10")
	cfg.Scheduler.DispatchWorkers, err = strconv.Atoi(dispatchWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DISPATCH_WORKERS: %w", err)
	}

	// Platform credentials. Client ids/secrets are app-level; missing values
	// disable OAuth for that platform but keep manual credential configs working.
	cfg.Platforms.Facebook = loadPlatformCredentials("FACEBOOK")
	cfg.Platforms.TikTok = loadPlatformCredentials("TIKTOK")
	cfg.Platforms.Line = loadPlatformCredentials("LINE")
	cfg.Platforms.Shopee = loadPlatformCredentials("SHOPEE")
	cfg.Platforms.GoogleAnalytics = loadPlatformCredentials("GOOGLE_ANALYTICS")

	if cfg.Platforms.WebAppURI, err = requireEnv("WEBAPP_URI"); err != nil {
		return nil, err
	}
	cfg.Platforms.FailureRedirectURI = getEnvWithDefault("OAUTH_FAILURE_REDIRECT_URI",
		cfg.Platforms.WebAppURI+"/integrations?oauth=failed")
	cfg.Platforms.WebhookVerifyToken = os.Getenv("WEBHOOK_VERIFY_TOKEN")

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// loadPlatformCredentials reads optional app-level credentials for one platform
func loadPlatformCredentials(prefix string) PlatformCredentials {
	return PlatformCredentials{
		ClientID:      os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret:  os.Getenv(prefix + "_CLIENT_SECRET"),
		WebhookSecret: os.Getenv(prefix + "_WEBHOOK_SECRET"),
	}
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
