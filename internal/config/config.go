// Package config loads gateway and CLI configuration from agora.yaml,
// AGORA_* environment variables, and built-in defaults, in that order
// of precedence (env beats file beats defaults).
//
// Two loaders are provided: Load builds a viper-backed Config for the
// binaries (file + env + defaults), and LoadFile decodes a YAML file
// directly for library use, with no environment involvement.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is the file name searched in the working directory
// when no explicit path is given.
const DefaultConfigFile = "agora.yaml"

// Config keys, also the YAML structure of agora.yaml. Environment
// overrides replace separators with underscores: storage.backend
// becomes AGORA_STORAGE_BACKEND.
const (
	KeyServerAddr           = "server.addr"
	KeyServerRequestTimeout = "server.request_timeout"
	KeyServerMaxConns       = "server.max_conns"

	KeyStorageBackend = "storage.backend"
	KeyStoragePath    = "storage.path"
	KeyStorageShards  = "storage.shards"

	KeyDoltHost     = "storage.dolt.host"
	KeyDoltPort     = "storage.dolt.port"
	KeyDoltUser     = "storage.dolt.user"
	KeyDoltPassword = "storage.dolt.password"
	KeyDoltDatabase = "storage.dolt.database"
	KeyDoltDataDir  = "storage.dolt.data_dir"
	KeyDoltEmbedded = "storage.dolt.embedded"

	KeyLogLevel         = "log.level"
	KeyTelemetryEnabled = "telemetry.enabled"
)

// Backend names accepted under storage.backend.
const (
	BackendSQLite  = "sqlite"
	BackendDolt    = "dolt"
	BackendSharded = "sharded"
)

// Config is the full configuration tree for agorad and agora.
type Config struct {
	Server    Server    `yaml:"server" json:"server"`
	Storage   Storage   `yaml:"storage" json:"storage"`
	Log       Log       `yaml:"log" json:"log"`
	Telemetry Telemetry `yaml:"telemetry" json:"telemetry"`
}

// Server configures the gateway listener.
type Server struct {
	// Addr is the listen address. ":0" binds an ephemeral port, which
	// in-process launchers use to avoid clashes.
	Addr string `yaml:"addr" json:"addr"`

	// RequestTimeout bounds one HTTP request end to end.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// MaxConns caps concurrent connections. Zero means no cap.
	MaxConns int `yaml:"max_conns" json:"max_conns"`
}

// Storage selects and configures the journal backend.
type Storage struct {
	Backend string `yaml:"backend" json:"backend"`

	// Path is the database file (sqlite) or shard directory (sharded).
	Path string `yaml:"path" json:"path"`

	// Shards is the shard count for the sharded backend. It must stay
	// the same across opens of the same directory.
	Shards int `yaml:"shards" json:"shards"`

	Dolt Dolt `yaml:"dolt" json:"dolt"`
}

// Dolt configures the dolt backend, either a sql-server connection or
// an embedded database under DataDir.
type Dolt struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database" json:"database"`
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	Embedded bool   `yaml:"embedded" json:"embedded"`
}

// Log configures local logging.
type Log struct {
	Level string `yaml:"level" json:"level"`
}

// Telemetry toggles the OpenTelemetry plumbing.
type Telemetry struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return fromViper(newViperDefaults())
}

// Load reads configuration from path (or ./agora.yaml when path is
// empty), layers AGORA_* environment variables on top, and validates
// the result. A missing file is an error only when the path was given
// explicitly.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper builds the viper instance shared by Load and Watch.
func newViper(path string) (*viper.Viper, error) {
	v := newViperDefaults()

	v.SetEnvPrefix("AGORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// No file in the working directory is fine; env and defaults
		// still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", DefaultConfigFile, err)
		}
	}
	return v, nil
}

func newViperDefaults() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyServerAddr, "127.0.0.1:8080")
	v.SetDefault(KeyServerRequestTimeout, "30s")
	v.SetDefault(KeyServerMaxConns, 0)

	v.SetDefault(KeyStorageBackend, BackendSQLite)
	v.SetDefault(KeyStoragePath, "agora.db")
	v.SetDefault(KeyStorageShards, 4)

	v.SetDefault(KeyDoltHost, "127.0.0.1")
	v.SetDefault(KeyDoltPort, 3306)
	v.SetDefault(KeyDoltUser, "root")
	v.SetDefault(KeyDoltPassword, "")
	v.SetDefault(KeyDoltDatabase, "agora")
	v.SetDefault(KeyDoltDataDir, "")
	v.SetDefault(KeyDoltEmbedded, false)

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyTelemetryEnabled, false)

	return v
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: Server{
			Addr:           v.GetString(KeyServerAddr),
			RequestTimeout: v.GetDuration(KeyServerRequestTimeout),
			MaxConns:       v.GetInt(KeyServerMaxConns),
		},
		Storage: Storage{
			Backend: v.GetString(KeyStorageBackend),
			Path:    v.GetString(KeyStoragePath),
			Shards:  v.GetInt(KeyStorageShards),
			Dolt: Dolt{
				Host:     v.GetString(KeyDoltHost),
				Port:     v.GetInt(KeyDoltPort),
				User:     v.GetString(KeyDoltUser),
				Password: v.GetString(KeyDoltPassword),
				Database: v.GetString(KeyDoltDatabase),
				DataDir:  v.GetString(KeyDoltDataDir),
				Embedded: v.GetBool(KeyDoltEmbedded),
			},
		},
		Log: Log{
			Level: v.GetString(KeyLogLevel),
		},
		Telemetry: Telemetry{
			Enabled: v.GetBool(KeyTelemetryEnabled),
		},
	}
}

// Validate checks cross-field constraints. Getters already coerce
// types, so this is about values, not shapes.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendDolt, BackendSharded:
	default:
		return fmt.Errorf("unknown storage backend: %s (supported: sqlite, dolt, sharded)", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendSharded && c.Storage.Shards <= 0 {
		return fmt.Errorf("storage.shards must be positive for the sharded backend, got %d", c.Storage.Shards)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must not be negative")
	}
	return nil
}
