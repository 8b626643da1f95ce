package config

import (
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/homelab/guestcfg/internal/datastore"
	"github.com/jbweber/homelab/guestcfg/internal/guest"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "GUESTCFG_"

// Config holds all configuration for guestcfg
type Config struct {
	DBPath string    `yaml:"dbPath"`
	Port   string    `yaml:"port"`
	SSH    SSHConfig `yaml:"ssh"`
	Log    LogConfig `yaml:"log"`
}

// SSHConfig controls how guests are reached
type SSHConfig struct {
	User                  string        `yaml:"user"`
	KeyPath               string        `yaml:"keyPath"`
	Port                  int           `yaml:"port"`
	Timeout               time.Duration `yaml:"timeout"`
	KnownHostsPath        string        `yaml:"knownHostsPath"`
	InsecureIgnoreHostKey bool          `yaml:"insecureIgnoreHostKey"`
}

// LogConfig controls log output
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		DBPath: "~/guestcfg/data/guestcfg.db",
		Port:   "8080",
		SSH: SSHConfig{
			User:           "core",
			Port:           22,
			Timeout:        30 * time.Second,
			KnownHostsPath: "~/.ssh/known_hosts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(log.TextFormat),
		},
	}
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (*Config, error) {
	c := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv overrides fields from GUESTCFG_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DB_PATH":         &c.DBPath,
		"PORT":            &c.Port,
		"SSH_USER":        &c.SSH.User,
		"SSH_KEY":         &c.SSH.KeyPath,
		"SSH_KNOWN_HOSTS": &c.SSH.KnownHostsPath,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "SSH_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSSH_PORT: %w", EnvPrefix, err)
		}
		c.SSH.Port = port
	}
	if v, ok := lookup(EnvPrefix + "SSH_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSSH_TIMEOUT: %w", EnvPrefix, err)
		}
		c.SSH.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "SSH_INSECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSSH_INSECURE: %w", EnvPrefix, err)
		}
		c.SSH.InsecureIgnoreHostKey = b
	}
	return nil
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path is required: %w", errdefs.ErrInvalidArgument)
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q: %w", c.Port, errdefs.ErrInvalidArgument)
	}
	if c.SSH.User == "" {
		return fmt.Errorf("ssh user is required: %w", errdefs.ErrInvalidArgument)
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return fmt.Errorf("invalid ssh port %d: %w", c.SSH.Port, errdefs.ErrInvalidArgument)
	}
	if c.SSH.Timeout <= 0 {
		return fmt.Errorf("ssh timeout must be positive: %w", errdefs.ErrInvalidArgument)
	}
	switch log.OutputFormat(c.Log.Format) {
	case log.TextFormat, log.JSONFormat:
	default:
		return fmt.Errorf("unknown log format %q: %w", c.Log.Format, errdefs.ErrInvalidArgument)
	}
	return nil
}

// ConfigureLogging applies the log section to the global logger
func (c *Config) ConfigureLogging() error {
	if err := log.SetLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, errdefs.ErrInvalidArgument)
	}
	return log.SetFormat(log.OutputFormat(c.Log.Format))
}

// GuestSSH returns the dial settings for a guest at address, adding the
// configured port when address has none.
func (c *Config) GuestSSH(address, user string) guest.SSHConfig {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(c.SSH.Port))
	}
	if user == "" {
		user = c.SSH.User
	}
	cfg := guest.SSHConfig{
		Address:               address,
		User:                  user,
		Timeout:               c.SSH.Timeout,
		InsecureIgnoreHostKey: c.SSH.InsecureIgnoreHostKey,
	}
	if c.SSH.KeyPath != "" {
		cfg.KeyPath = c.expandPath(c.SSH.KeyPath)
	}
	if !c.SSH.InsecureIgnoreHostKey && c.SSH.KnownHostsPath != "" {
		cfg.KnownHostsPath = c.expandPath(c.SSH.KnownHostsPath)
	}
	return cfg
}

// InitializeDatabase creates and configures the database connection
func (c *Config) InitializeDatabase() (*sql.DB, error) {
	dbPath := c.expandPath(c.DBPath)

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	ds, err := datastore.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	OptimizeDatabaseConnection(ds.DB)

	if err := ApplyPragmaOptimizations(ds.DB); err != nil {
		ds.Close()
		return nil, fmt.Errorf("failed to apply performance optimizations: %w", err)
	}

	return ds.DB, nil
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(homeDir, path[2:])
}
