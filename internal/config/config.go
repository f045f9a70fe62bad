// Package config loads cstudio settings from defaults, a config file,
// CSTUDIO_* environment variables and bound command-line flags, in that
// order of precedence (last wins).
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cipherstudio/cipherstudio/internal/logging"
)

// EnvPrefix is prepended to environment variable names.
const EnvPrefix = "CSTUDIO"

// Config is the fully resolved configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Tree      TreeConfig      `mapstructure:"tree"`
	Preview   PreviewConfig   `mapstructure:"preview"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres, libsql
	DSN    string `mapstructure:"dsn"`    // file path for sqlite
}

// AuthConfig configures identity tokens.
type AuthConfig struct {
	Secret    string        `mapstructure:"secret"`
	TokenFile string        `mapstructure:"token_file"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// TreeConfig configures path derivation.
type TreeConfig struct {
	Separator string `mapstructure:"separator"`
}

// PreviewConfig configures the preview server.
type PreviewConfig struct {
	Port int `mapstructure:"port"`
}

// WorkspaceConfig configures the on-disk mirror.
type WorkspaceConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Autosave bool          `mapstructure:"autosave"`
}

// DefaultDataDir returns ~/.cstudio, or .cstudio when the home directory
// is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cstudio"
	}
	return filepath.Join(home, ".cstudio")
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	logDefaults := logging.DefaultConfig()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_file", "")
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.format", logDefaults.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logDefaults.MaxSizeMB)
	v.SetDefault("log.max_backups", logDefaults.MaxBackups)
	v.SetDefault("tree.separator", "/")
	v.SetDefault("preview.port", 5173)
	v.SetDefault("workspace.debounce", 300*time.Millisecond)
	v.SetDefault("workspace.autosave", true)
}

// Load reads configuration into v and decodes it.
//
// When cfgFile is empty, cstudio.{toml,yaml,json} is searched in the
// current directory and then in the user config directory. A missing file
// is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("cstudio")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "cstudio"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillDerived places data files under DataDir when not set explicitly.
func (c *Config) fillDerived() {
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = filepath.Join(c.DataDir, "studio.db")
	}
	if c.Auth.TokenFile == "" {
		c.Auth.TokenFile = filepath.Join(c.DataDir, "token")
	}
}

// Validate checks the decoded values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "libsql":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or libsql (got %q)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
	}
	if c.Tree.Separator == "" {
		return fmt.Errorf("tree.separator must not be empty")
	}
	if c.Preview.Port < 0 || c.Preview.Port > 65535 {
		return fmt.Errorf("preview.port out of range: %d", c.Preview.Port)
	}
	if c.Workspace.Debounce < 0 {
		return fmt.Errorf("workspace.debounce must not be negative")
	}
	return nil
}

// Logging converts the log section for the logging package.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// Secret returns the token signing secret. Without a configured secret, a
// random one is generated once and kept in DataDir/secret.
func (c *Config) Secret() (string, error) {
	if c.Auth.Secret != "" {
		return c.Auth.Secret, nil
	}

	path := filepath.Join(c.DataDir, "secret")
	data, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		return strings.TrimSpace(string(data)), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write secret: %w", err)
	}
	return secret, nil
}
