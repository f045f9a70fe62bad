package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CSTUDIO_DATA_DIR", dir)

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if want := filepath.Join(dir, "studio.db"); cfg.Database.DSN != want {
		t.Errorf("Database.DSN = %q, want %q", cfg.Database.DSN, want)
	}
	if want := filepath.Join(dir, "token"); cfg.Auth.TokenFile != want {
		t.Errorf("Auth.TokenFile = %q, want %q", cfg.Auth.TokenFile, want)
	}
	if cfg.Workspace.Debounce != 300*time.Millisecond {
		t.Errorf("Workspace.Debounce = %v, want 300ms", cfg.Workspace.Debounce)
	}
	if cfg.Tree.Separator != "/" {
		t.Errorf("Tree.Separator = %q, want /", cfg.Tree.Separator)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cstudio.toml")
	content := `
data_dir = "` + filepath.ToSlash(dir) + `"

[database]
driver = "postgres"
dsn = "postgres://localhost/cstudio"

[log]
level = "debug"

[workspace]
debounce = "1s"
autosave = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	t.Setenv("CSTUDIO_PREVIEW_PORT", "9000")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/cstudio" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Workspace.Debounce != time.Second || cfg.Workspace.Autosave {
		t.Errorf("Workspace = %+v", cfg.Workspace)
	}
	if cfg.Preview.Port != 9000 {
		t.Errorf("Preview.Port = %d, want 9000 from env", cfg.Preview.Port)
	}
	if cfg.Logging().Level != "debug" {
		t.Errorf("Logging().Level = %q", cfg.Logging().Level)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() accepted a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "x.db"},
		Tree:     TreeConfig{Separator: "/"},
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"postgres without dsn", func(c *Config) { c.Database = DatabaseConfig{Driver: "postgres"} }, true},
		{"empty separator", func(c *Config) { c.Tree.Separator = "" }, true},
		{"bad port", func(c *Config) { c.Preview.Port = 70000 }, true},
		{"negative debounce", func(c *Config) { c.Workspace.Debounce = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSecret_GeneratedOnce(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}

	first, err := cfg.Secret()
	if err != nil {
		t.Fatalf("Secret() failed: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("generated secret length = %d, want 64", len(first))
	}
	second, err := cfg.Secret()
	if err != nil {
		t.Fatalf("second Secret() failed: %v", err)
	}
	if first != second {
		t.Error("Secret() generated a new value on the second call")
	}

	cfg.Auth.Secret = "configured"
	if got, _ := cfg.Secret(); got != "configured" {
		t.Errorf("Secret() = %q, want configured", got)
	}
}
