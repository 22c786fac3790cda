// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultDir      = ".dis"
	FileName        = "config.json"
	EnvConfigPath   = "DIS_CONFIG"
	BackendFS       = "fs"
	BackendBadger   = "badger"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	defaultLogLevel = "warn"
)

type Config struct {
	Repository struct {
		Dir string `json:"dir"`
	} `json:"repository"`

	Storage struct {
		Backend string `json:"backend"` // fs, badger, sqlite, memory
	} `json:"storage"`

	Cache struct {
		Size int `json:"size"`
	} `json:"cache"`

	Diff struct {
		ContextLines int `json:"context_lines"`
	} `json:"diff"`

	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Diff.ContextLines = 3
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Repository.Dir == "" {
		c.Repository.Dir = DefaultDir
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFS
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 256
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 7070
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFS, BackendBadger, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Diff.ContextLines < 0 {
		return fmt.Errorf("invalid diff context lines %d", c.Diff.ContextLines)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// Keys absent from the file keep their defaults; zero values that are
	// written out are kept.
	config := Default()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Resolve finds the configuration for a working directory. An explicit path
// wins, then $DIS_CONFIG, then <dir>/.dis/config.json, then defaults.
func Resolve(explicit, workDir string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return Load(env)
	}

	cfg, err := Load(filepath.Join(workDir, DefaultDir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes the configuration to path unless a file already exists there.
// It reports whether the file was written.
func (c *Config) Save(path string) (bool, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return false, err
	}
	return true, nil
}
