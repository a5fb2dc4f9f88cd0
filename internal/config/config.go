package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultRefreshSeconds = 5

type Config struct {
	Repos          []string  `yaml:"repos"`
	RefreshSeconds int       `yaml:"refresh_seconds"`
	LogFile        string    `yaml:"log_file,omitempty"`
	Log            LogConfig `yaml:"log,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// DefaultPath is ~/.config/prwatch/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "prwatch", "config.yaml")
}

func DefaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "prwatch", "prwatch.log")
}

// Load reads the config file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Save writes the config, creating parent directories.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// LogPath is the configured log file, or DefaultLogFile when unset. The
// default stays out of the struct so Save never writes it into the file.
func (c *Config) LogPath() string {
	if c.LogFile == "" {
		return DefaultLogFile()
	}
	return c.LogFile
}

func (c *Config) LogLevel() string {
	if c.Log.Level == "" {
		return "info"
	}
	return c.Log.Level
}

func (c *Config) setDefaults() {
	if c.RefreshSeconds <= 0 {
		c.RefreshSeconds = defaultRefreshSeconds
	}
}

func (c *Config) validate() error {
	repos := make([]string, 0, len(c.Repos))
	seen := make(map[string]bool, len(c.Repos))
	for i, r := range c.Repos {
		normalized, err := NormalizeRepo(r)
		if err != nil {
			return fmt.Errorf("repos[%d]: %w", i, err)
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		repos = append(repos, normalized)
	}
	c.Repos = repos

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q (debug|info|warn|error)", c.Log.Level)
	}
	return nil
}

// File is a Config persisted at Path.
type File struct {
	Path string
}

func (f File) Load() (*Config, error) { return Load(f.Path) }

func (f File) Save(cfg *Config) error { return Save(f.Path, cfg) }
