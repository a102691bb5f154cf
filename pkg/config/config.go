// Package config loads drivecheck settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfig names the config file when --config is not given.
	EnvConfig = "DRIVECHECK_CONFIG"
	// EnvDBPath overrides db.path.
	EnvDBPath = "DRIVECHECK_DB_PATH"

	dirName  = ".drivecheck"
	fileName = "config.yaml"
	dbName   = "drivecheck.db"
)

// Config is the full settings tree.
type Config struct {
	DB     DBConfig     `yaml:"db"`
	Log    LogConfig    `yaml:"log"`
	Agent  AgentConfig  `yaml:"agent"`
	AttrDB AttrDBConfig `yaml:"attrdb"`
}

// DBConfig locates the history database.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AgentConfig configures the remote agent.
type AgentConfig struct {
	Port     int    `yaml:"port"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
	LogFile  string `yaml:"log_file"`
}

// AttrDBConfig points at an optional attribute name overlay.
type AttrDBConfig struct {
	Path string `yaml:"path"`
}

// Dir returns the per-user settings directory, or "" if there is no home.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, dirName)
}

// Default returns the built-in settings.
func Default() Config {
	dbPath := dbName
	if dir := Dir(); dir != "" {
		dbPath = filepath.Join(dir, dbName)
	}
	return Config{
		DB:    DBConfig{Path: dbPath},
		Log:   LogConfig{Level: "info", Format: "text"},
		Agent: AgentConfig{Port: 2223},
	}
}

// Load resolves the config file, applies it over the defaults and then
// applies the environment. An explicit path must exist; the default file
// may be absent.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		explicit = false
		if dir := Dir(); dir != "" {
			path = filepath.Join(dir, fileName)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DB.Path = v
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings that would fail later at runtime.
func (c Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	if c.Agent.Port <= 0 || c.Agent.Port > 65535 {
		return fmt.Errorf("invalid agent.port: %d", c.Agent.Port)
	}
	return nil
}

// Apply configures logger level and formatter.
func (c LogConfig) Apply(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch c.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
