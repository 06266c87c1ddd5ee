package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// SourceConfig describes one upstream adapter.
type SourceConfig struct {
	ID   string `yaml:"id" validate:"required"`
	Kind string `yaml:"kind" validate:"required,oneof=platform_status trade_history positions logs consensus"`
	Mode string `yaml:"mode" validate:"required,oneof=poll stream"`

	// Poll/HTTP and websocket sources.
	URL string `yaml:"url"`
	// Kafka-backed sources.
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`

	PollInterval     time.Duration `yaml:"poll_interval" default:"5s"`
	HistoryLimit     int           `yaml:"history_limit" default:"100"`
	FailureThreshold int           `yaml:"failure_threshold" default:"3"`
	Allocation       float64       `yaml:"allocation"`
}

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Aggregator struct {
		BufferCapacity     int           `yaml:"buffer_capacity" default:"200"`
		QueueSize          int           `yaml:"queue_size" default:"64"`
		MaxPending         int           `yaml:"max_pending" default:"1000"`
		StalenessThreshold time.Duration `yaml:"staleness_threshold" default:"15s"`
		BackoffBase        time.Duration `yaml:"backoff_base" default:"1s"`
		BackoffCap         time.Duration `yaml:"backoff_cap" default:"30s"`
	} `yaml:"aggregator"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Key      string `yaml:"key" default:"tradedeck:snapshot"`
		Channel  string `yaml:"channel" default:"tradedeck:updates"`
	} `yaml:"redis"`
	Sources []SourceConfig `yaml:"sources" validate:"min=1,dive"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers := strings.Split(v, ",")
		for i := range c.Sources {
			if len(c.Sources[i].Brokers) > 0 {
				c.Sources[i].Brokers = brokers
			}
		}
	}
	return c, nil
}

// Validate checks structural rules plus per-source transport requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true

		if len(s.Brokers) > 0 {
			if s.Topic == "" {
				return fmt.Errorf("source %s: topic is required with brokers", s.ID)
			}
		} else if s.URL == "" {
			return fmt.Errorf("source %s: url or brokers is required", s.ID)
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}

// AllocationsBySource returns per-source capital allocations.
func (c *Config) AllocationsBySource() map[string]float64 {
	out := make(map[string]float64, len(c.Sources))
	for _, s := range c.Sources {
		if s.Allocation > 0 {
			out[s.ID] = s.Allocation
		}
	}
	return out
}

// SourceIDs lists every configured source id.
func (c *Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		ids = append(ids, s.ID)
	}
	return ids
}
