package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds service configuration. Values come from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	HTTP struct {
		Addr          string `yaml:"addr"`           // default: :5000
		AllowedOrigin string `yaml:"allowed_origin"` // CORS origin of the web frontend
	} `yaml:"http"`
	Store struct {
		Driver    string        `yaml:"driver"`     // mysql (default), sqlite, memory
		OpTimeout time.Duration `yaml:"op_timeout"` // per-operation deadline
	} `yaml:"store"`
	MySQL struct {
		DSN string `yaml:"dsn"` // e.g., user:pass@tcp(host:3306)/dbname
	} `yaml:"mysql"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Identity struct {
		Header    string `yaml:"header"`      // request header carrying the user id
		DevUserID string `yaml:"dev_user_id"` // used when the header is absent; empty disables
	} `yaml:"identity"`
}

// Default returns the configuration used before any file or environment
// overrides.
func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":5000"
	cfg.HTTP.AllowedOrigin = "http://localhost:3000"
	cfg.Store.Driver = DriverMySQL
	cfg.Store.OpTimeout = 5 * time.Second
	cfg.SQLite.Path = "timetracker.db"
	cfg.Identity.Header = "X-User-ID"
	return cfg
}

// Load builds the configuration. path names an optional YAML file; when empty
// TIMETRACKER_CONFIG is consulted. Environment variables override the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("TIMETRACKER_CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.HTTP.Addr, "HTTP_ADDR")
	setString(&cfg.HTTP.AllowedOrigin, "CORS_ORIGIN")
	setString(&cfg.Store.Driver, "STORE_DRIVER")
	setString(&cfg.MySQL.DSN, "MYSQL_DSN")
	setString(&cfg.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Identity.Header, "IDENTITY_HEADER")
	setString(&cfg.Identity.DevUserID, "DEV_USER_ID")

	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.New("STORE_TIMEOUT must be a duration, e.g. 5s")
		}
		cfg.Store.OpTimeout = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMySQL:
		if c.MySQL.DSN == "" {
			return errors.New("MYSQL_DSN is required for the mysql store")
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want mysql, sqlite or memory)", c.Store.Driver)
	}
	if c.Store.OpTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.HTTP.Addr == "" {
		return errors.New("HTTP_ADDR must not be empty")
	}
	return nil
}
