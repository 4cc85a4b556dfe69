package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/seer/config.yaml"

// Config holds all seer configuration.
type Config struct {
	// Enabled is the global switch. When false the engine refuses all work.
	Enabled bool          `yaml:"enabled"`
	Storage StorageConfig `yaml:"storage"`
	Network NetworkConfig `yaml:"network"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

type StorageConfig struct {
	ProfileDir  string `yaml:"profile_dir"`
	DBFile      string `yaml:"db_file"`
	Synchronous string `yaml:"synchronous"`
}

type NetworkConfig struct {
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
	ResolveTimeoutSeconds int `yaml:"resolve_timeout_seconds"`
}

type DaemonConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxRequestSize int64  `yaml:"max_request_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

var (
	synchronousModes = []string{"OFF", "NORMAL", "FULL", "EXTRA"}
	logLevels        = []string{"debug", "info", "warn", "error"}
	logEncodings     = []string{"json", "console"}
)

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read, contains invalid YAML, or
// holds values out of range.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Storage.Synchronous = strings.ToUpper(cfg.Storage.Synchronous)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated and numeric fields.
func (c *Config) Validate() error {
	if !slices.Contains(synchronousModes, c.Storage.Synchronous) {
		return fmt.Errorf("invalid storage.synchronous %q: want one of %v", c.Storage.Synchronous, synchronousModes)
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("invalid logging.level %q: want one of %v", c.Logging.Level, logLevels)
	}
	if !slices.Contains(logEncodings, c.Logging.Encoding) {
		return fmt.Errorf("invalid logging.encoding %q: want one of %v", c.Logging.Encoding, logEncodings)
	}
	if c.Storage.DBFile == "" || strings.ContainsRune(c.Storage.DBFile, filepath.Separator) {
		return fmt.Errorf("invalid storage.db_file %q: want a bare file name", c.Storage.DBFile)
	}
	if c.Daemon.Port < 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("invalid daemon.port %d", c.Daemon.Port)
	}
	if c.Network.ConnectTimeoutSeconds <= 0 || c.Network.ResolveTimeoutSeconds <= 0 {
		return fmt.Errorf("network timeouts must be positive")
	}
	return nil
}

// ProfileDir returns the storage directory with ~ expanded.
func (c *Config) ProfileDir() (string, error) {
	return expandPath(c.Storage.ProfileDir)
}

// DBPath returns the full path of the database file.
func (c *Config) DBPath() (string, error) {
	dir, err := c.ProfileDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.DBFile), nil
}

// Addr is the daemon's listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Daemon.Host, c.Daemon.Port)
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// ResolvePath expands a user-supplied config path, falling back to
// DefaultConfigPath when it is empty.
func ResolvePath(path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	return expandPath(path)
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
