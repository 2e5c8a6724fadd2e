// Package config loads and validates the core's startup configuration
// from YAML.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/arma-extdb/extdb-core/internal/sessionpool"
	"gopkg.in/yaml.v3"
)

// CoreConfig holds the top-level process configuration: worker count,
// output buffer size, and the admission-control cap.
type CoreConfig struct {
	Workers         int    `yaml:"workers"`
	OutputSize      int    `yaml:"output_size"`
	MaxOutstanding  int64  `yaml:"max_outstanding"`
	MetricsPort     int    `yaml:"metrics_port"`
	HealthCheckPort int    `yaml:"health_check_port"`
	InstanceID      string `yaml:"instance_id"`
}

// RedisConfig holds the Redis connection configuration the PUBSUB
// protocol handler and the health checker both read.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Config is the root configuration structure.
type Config struct {
	Core      CoreConfig                         `yaml:"core"`
	Redis     RedisConfig                        `yaml:"redis"`
	Databases map[string]*sessionpool.Descriptor `yaml:"databases"`
}

// fileConfig mirrors the YAML file's structure.
type fileConfig struct {
	Core      CoreConfig                         `yaml:"core"`
	Redis     RedisConfig                        `yaml:"redis"`
	Databases map[string]*sessionpool.Descriptor `yaml:"databases"`
}

// Load reads and parses the core configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg := &Config{
		Core:      file.Core,
		Redis:     file.Redis,
		Databases: file.Databases,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

// validate checks mandatory fields and the inter-field invariant from
// Open Question (a): a database section's max_sessions controls the
// upper bound and must be set explicitly (min_sessions alone is
// insufficient to size the pool).
func (c *Config) validate() error {
	for name, db := range c.Databases {
		if db.Host == "" && db.IsServerStyle() {
			return fmt.Errorf("database[%s].host is required", name)
		}
		if db.MaxSessions == 0 {
			return fmt.Errorf("database[%s].max_sessions is required", name)
		}
		if db.MinSessions > db.MaxSessions {
			return fmt.Errorf("database[%s].min_sessions (%d) exceeds max_sessions (%d)",
				name, db.MinSessions, db.MaxSessions)
		}
	}
	return nil
}

// applyDefaults fills in reasonable defaults for unset optional fields.
func (c *Config) applyDefaults() {
	if c.Core.Workers == 0 {
		c.Core.Workers = runtime.NumCPU()
	}
	if c.Core.OutputSize == 0 {
		c.Core.OutputSize = 1024
	}
	if c.Core.MetricsPort == 0 {
		c.Core.MetricsPort = 9090
	}
	if c.Core.HealthCheckPort == 0 {
		c.Core.HealthCheckPort = 8080
	}
	if c.Core.InstanceID == "" {
		hostname, _ := os.Hostname()
		c.Core.InstanceID = hostname
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	for _, db := range c.Databases {
		if db.MinSessions == 0 {
			db.MinSessions = 2
		}
		if db.IdleTime == 0 {
			db.IdleTime = 5 * time.Minute
		}
		if db.AcquireTimeout == 0 {
			db.AcquireTimeout = 5 * time.Second
		}
	}
}
