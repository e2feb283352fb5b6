package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with YAML-friendly types: durations are
// strings so "30s" parses the same here as under viper, and pointer
// fields distinguish an absent key from an explicit zero.
type fileConfig struct {
	Server struct {
		Addr           *string `yaml:"addr"`
		RequestTimeout *string `yaml:"request_timeout"`
		MaxConns       *int    `yaml:"max_conns"`
	} `yaml:"server"`
	Storage struct {
		Backend *string `yaml:"backend"`
		Path    *string `yaml:"path"`
		Shards  *int    `yaml:"shards"`
		Dolt    struct {
			Host     *string `yaml:"host"`
			Port     *int    `yaml:"port"`
			User     *string `yaml:"user"`
			Password *string `yaml:"password"`
			Database *string `yaml:"database"`
			DataDir  *string `yaml:"data_dir"`
			Embedded *bool   `yaml:"embedded"`
		} `yaml:"dolt"`
	} `yaml:"storage"`
	Log struct {
		Level *string `yaml:"level"`
	} `yaml:"log"`
	Telemetry struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"telemetry"`
}

// LoadFile decodes a YAML config file directly over the defaults,
// bypassing viper and the environment entirely. Libraries embedding
// the runtime use this when they own the config file and do not want
// process-wide env coupling.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg := Default()
	if err := raw.apply(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// apply merges the keys present in the file onto cfg.
func (raw *fileConfig) apply(cfg *Config) error {
	if raw.Server.Addr != nil {
		cfg.Server.Addr = *raw.Server.Addr
	}
	if raw.Server.RequestTimeout != nil {
		d, err := time.ParseDuration(*raw.Server.RequestTimeout)
		if err != nil {
			return fmt.Errorf("server.request_timeout: %w", err)
		}
		cfg.Server.RequestTimeout = d
	}
	if raw.Server.MaxConns != nil {
		cfg.Server.MaxConns = *raw.Server.MaxConns
	}

	if raw.Storage.Backend != nil {
		cfg.Storage.Backend = *raw.Storage.Backend
	}
	if raw.Storage.Path != nil {
		cfg.Storage.Path = *raw.Storage.Path
	}
	if raw.Storage.Shards != nil {
		cfg.Storage.Shards = *raw.Storage.Shards
	}

	d := &raw.Storage.Dolt
	if d.Host != nil {
		cfg.Storage.Dolt.Host = *d.Host
	}
	if d.Port != nil {
		cfg.Storage.Dolt.Port = *d.Port
	}
	if d.User != nil {
		cfg.Storage.Dolt.User = *d.User
	}
	if d.Password != nil {
		cfg.Storage.Dolt.Password = *d.Password
	}
	if d.Database != nil {
		cfg.Storage.Dolt.Database = *d.Database
	}
	if d.DataDir != nil {
		cfg.Storage.Dolt.DataDir = *d.DataDir
	}
	if d.Embedded != nil {
		cfg.Storage.Dolt.Embedded = *d.Embedded
	}

	if raw.Log.Level != nil {
		cfg.Log.Level = *raw.Log.Level
	}
	if raw.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *raw.Telemetry.Enabled
	}
	return nil
}
