package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	WebSocket struct {
		Port int
	}
	Redis struct {
		Enabled    bool
		Addr       string
		Password   string
		DB         int
		TTLSeconds int
	}
	RabbitMQ struct {
		Enabled  bool
		Host     string
		Port     int
		User     string
		Password string
		Exchange string
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// CacheTTL returns the redis entry TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// applyDefaults sets safe defaults for optional fields. The store connection
// parameters have no defaults beyond host/port: a missing user, password, or
// database name is a fatal startup error.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// WebSocket
	if cfg.WebSocket.Port == 0 {
		cfg.WebSocket.Port = 8080
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.TTLSeconds == 0 {
		cfg.Redis.TTLSeconds = 300
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.Exchange == "" {
		cfg.RabbitMQ.Exchange = "fleet.events"
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// Database (required: missing store credentials abort startup)
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// WebSocket
	if c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535 {
		problems = append(problems, "websocket.port must be in 1..65535")
	}

	// Redis (only when enabled)
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required when redis is enabled")
		}
		if c.Redis.TTLSeconds <= 0 {
			problems = append(problems, "redis.ttl_seconds must be positive")
		}
	}

	// RabbitMQ (only when enabled)
	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
			problems = append(problems, "rabbitmq.port must be in 1..65535")
		}
		if c.RabbitMQ.User == "" {
			problems = append(problems, "rabbitmq.user is required when rabbitmq is enabled")
		}
		if c.RabbitMQ.Password == "" {
			problems = append(problems, "rabbitmq.password is required when rabbitmq is enabled")
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
