// Package config loads the TOML configuration shared by all flightlog commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/flightlog/internal/comms"
	"github.com/yegors/flightlog/internal/crew"
	"github.com/yegors/flightlog/internal/reconcile"
	"github.com/yegors/flightlog/internal/server"
	"github.com/yegors/flightlog/pkg/logger"
)

// DefaultPath is where Load looks when no path is given
const DefaultPath = "~/.config/flightlog/config.toml"

// Environment overrides
const (
	EnvPassword = "FLIGHTLOG_PASSWORD"
	EnvDatabase = "FLIGHTLOG_DB"
	EnvServer   = "FLIGHTLOG_SERVER"
)

// Config holds all flightlog settings
type Config struct {
	Logging    LoggingConfig    `toml:"logging"`
	Database   DatabaseConfig   `toml:"database"`
	Import     ImportConfig     `toml:"import"`
	FlightTime FlightTimeConfig `toml:"flight_time"`
	Sync       SyncConfig       `toml:"sync"`
	API        APIConfig        `toml:"api"`
	Server     ServerConfig     `toml:"server"`
}

// LoggingConfig selects level and format of the log output
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DatabaseConfig locates the local logbook
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ImportConfig tunes document reconciliation
type ImportConfig struct {
	MatchWindow         time.Duration `toml:"match_window"`
	ConflictPolicy      string        `toml:"conflict_policy"`
	RemoveStalePlanned  bool          `toml:"remove_stale_planned"`
	IncludeDeadhead     bool          `toml:"include_deadhead"`
	TakeoffLandingTimes int           `toml:"takeoff_landing_times"`
	Workers             int           `toml:"workers"`
}

// FlightTimeConfig controls computed time columns
type FlightTimeConfig struct {
	IFRByDefault bool `toml:"ifr_by_default"`
	// AirportsFile adds airports to the built-in list
	AirportsFile string `toml:"airports_file"`
}

// SyncConfig is the client side of synchronisation
type SyncConfig struct {
	Server             string        `toml:"server"`
	Username           string        `toml:"username"`
	Password           string        `toml:"password"`
	TLS                bool          `toml:"tls"`
	InsecureSkipVerify bool          `toml:"insecure_skip_verify"`
	SOCKS5Proxy        string        `toml:"socks5_proxy"`
	DialTimeout        time.Duration `toml:"dial_timeout"`
	RequestTimeout     time.Duration `toml:"request_timeout"`
	MaxRetries         int           `toml:"max_retries"`
	RetryDelay         time.Duration `toml:"retry_delay"`
}

// APIConfig is the local HTTP API
type APIConfig struct {
	Address            string   `toml:"address"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// ServerConfig is the sync server
type ServerConfig struct {
	Address           string        `toml:"address"`
	DatabasePath      string        `toml:"database_path"`
	TLSCertFile       string        `toml:"tls_cert_file"`
	TLSKeyFile        string        `toml:"tls_key_file"`
	IdleTimeout       time.Duration `toml:"idle_timeout"`
	AllowRegistration bool          `toml:"allow_registration"`
	BcryptCost        int           `toml:"bcrypt_cost"`
}

// DefaultConfig returns the settings used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			Path: "~/.local/share/flightlog/logbook.db",
		},
		Import: ImportConfig{
			MatchWindow:         reconcile.DefaultWindow,
			ConflictPolicy:      string(reconcile.PolicyReport),
			TakeoffLandingTimes: crew.DefaultTakeoffLandingTimes,
		},
		FlightTime: FlightTimeConfig{
			IFRByDefault: true,
		},
		Sync: SyncConfig{
			DialTimeout:    10 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
			RetryDelay:     time.Second,
		},
		API: APIConfig{
			Address: "127.0.0.1:8470",
		},
		Server: ServerConfig{
			Address:      ":8471",
			DatabasePath: "~/.local/share/flightlog/server.db",
			IdleTimeout:  2 * time.Minute,
		},
	}
}

// Load reads the file at path over the defaults. A missing file is not an
// error. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(resolved, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to parse config %s: %w", resolved, err)
	}

	cfg.applyEnvOverrides()

	if cfg.Database.Path, err = ExpandPath(cfg.Database.Path); err != nil {
		return nil, err
	}
	if cfg.Server.DatabasePath, err = ExpandPath(cfg.Server.DatabasePath); err != nil {
		return nil, err
	}
	if cfg.FlightTime.AirportsFile != "" {
		if cfg.FlightTime.AirportsFile, err = ExpandPath(cfg.FlightTime.AirportsFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if password := os.Getenv(EnvPassword); password != "" {
		c.Sync.Password = password
	}
	if path := os.Getenv(EnvDatabase); path != "" {
		c.Database.Path = path
	}
	if addr := os.Getenv(EnvServer); addr != "" {
		c.Sync.Server = addr
	}
}

// Validate checks values that would otherwise fail deep inside a command
func (c *Config) Validate() error {
	if _, err := reconcile.ParsePolicy(c.Import.ConflictPolicy); err != nil {
		return fmt.Errorf("import.conflict_policy: %w", err)
	}
	if c.Import.TakeoffLandingTimes < 0 {
		return fmt.Errorf("import.takeoff_landing_times must not be negative")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("server.tls_cert_file and server.tls_key_file must be set together")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// Logger returns the logger settings
func (c *Config) Logger(verbose bool) logger.Config {
	level := c.Logging.Level
	if verbose {
		level = "debug"
	}
	return logger.Config{Level: level, Format: c.Logging.Format}
}

// ReconcileOptions returns the checker options
func (c *Config) ReconcileOptions() reconcile.Options {
	policy, _ := reconcile.ParsePolicy(c.Import.ConflictPolicy)
	return reconcile.Options{
		Window:             c.Import.MatchWindow,
		ConflictPolicy:     policy,
		RemoveStalePlanned: c.Import.RemoveStalePlanned,
		IncludeDeadhead:    c.Import.IncludeDeadhead,
	}
}

// ClientConfig returns the sync client settings
func (c *Config) ClientConfig() comms.ClientConfig {
	return comms.ClientConfig{
		Address:            c.Sync.Server,
		TLS:                c.Sync.TLS,
		InsecureSkipVerify: c.Sync.InsecureSkipVerify,
		SOCKS5Proxy:        c.Sync.SOCKS5Proxy,
		DialTimeout:        c.Sync.DialTimeout,
		RequestTimeout:     c.Sync.RequestTimeout,
		MaxRetries:         c.Sync.MaxRetries,
		RetryDelay:         c.Sync.RetryDelay,
	}
}

// ServerConfig returns the sync server settings
func (c *Config) ServerConfig() server.Config {
	return server.Config{
		Address:           c.Server.Address,
		TLSCertFile:       c.Server.TLSCertFile,
		TLSKeyFile:        c.Server.TLSKeyFile,
		IdleTimeout:       c.Server.IdleTimeout,
		AllowRegistration: c.Server.AllowRegistration,
		BcryptCost:        c.Server.BcryptCost,
	}
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	resolved, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(resolved, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ and makes path absolute
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if trimmed == ":memory:" {
		return trimmed, nil
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
