// Package config loads gateway configuration: a YAML file for structure,
// environment variables (optionally via .env) for secrets and overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/clearfab/gateway/internal/resiliency"
)

type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Database    DatabaseConfig          `yaml:"database"`
	Redis       RedisConfig             `yaml:"redis"`
	PubSub      PubSubConfig            `yaml:"pubsub"`
	UETR        UETRConfig              `yaml:"uetr"`
	Idempotency IdempotencyConfig       `yaml:"idempotency"`
	Queue       QueueConfig             `yaml:"queue"`
	Adapters    map[string]string       `yaml:"adapters"` // service name -> endpoint URL
	Policies    map[string]PolicyConfig `yaml:"policies"` // policy name -> override
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_seconds"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	Topic     string `yaml:"topic"`
}

type UETRConfig struct {
	SystemID string `yaml:"system_id"`
}

type IdempotencyConfig struct {
	TTLHours int `yaml:"ttl_hours"`
}

type QueueConfig struct {
	ExpiryHours  int `yaml:"expiry_hours"`
	DrainWorkers int `yaml:"drain_workers"`
}

// PolicyConfig mirrors resiliency.Policy in YAML.
type PolicyConfig struct {
	Policy resiliency.Policy `yaml:",inline"`
}

// Load reads the YAML file, then lets the environment override the values
// operators most often change. A .env file is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		cfg.PubSub.ProjectID = v
	}
	if v := os.Getenv("PUBSUB_TOPIC"); v != "" {
		cfg.PubSub.Topic = v
	}
	if v := os.Getenv("UETR_SYSTEM_ID"); v != "" {
		cfg.UETR.SystemID = v
	}
	if v := os.Getenv("QUEUE_EXPIRY_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.ExpiryHours = n
		}
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Env:             "development",
			ShutdownTimeout: 30,
		},
		UETR:        UETRConfig{SystemID: "GW01"},
		Idempotency: IdempotencyConfig{TTLHours: 24},
		Queue:       QueueConfig{ExpiryHours: 72, DrainWorkers: 5},
		Adapters:    map[string]string{},
		Policies:    map[string]PolicyConfig{},
	}
}

// IdempotencyTTL returns the configured TTL as a duration.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.Idempotency.TTLHours) * time.Hour
}

// QueueExpiry returns the queued-message lifetime.
func (c *Config) QueueExpiry() time.Duration {
	return time.Duration(c.Queue.ExpiryHours) * time.Hour
}
