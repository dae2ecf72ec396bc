package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 8080 {
		t.Errorf("server defaults = %s:%d, want 0.0.0.0:8080", cfg.Host, cfg.Port)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("log defaults = %s/%s, want info/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Precision != 2 {
		t.Errorf("precision default = %d, want 2", cfg.Precision)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
log:
  level: debug
`)
	t.Setenv("RR_SERVER_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want file value debug", cfg.LogLevel)
	}
}

func TestLoadRejectsTokensInFile(t *testing.T) {
	path := writeConfig(t, `
auth:
  admin_token: supersecret
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config files") {
		t.Fatalf("Load() error = %v, want token-in-file rejection", err)
	}
}

func TestLoadTokensFromEnv(t *testing.T) {
	t.Setenv("RR_AUTH_ADMIN_TOKEN", "admin-secret")
	t.Setenv("RR_AUTH_CATALOG_TOKEN", "catalog-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AdminToken != "admin-secret" || cfg.CatalogToken != "catalog-secret" {
		t.Errorf("tokens = %q/%q, want env values", cfg.AdminToken, cfg.CatalogToken)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Port = 70000 }, true},
		{"precision negative", func(c *Config) { c.Precision = -1 }, true},
		{"precision too high", func(c *Config) { c.Precision = 9 }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"console format", func(c *Config) { c.LogFormat = "console" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Host: "127.0.0.1", Port: 8080, LogFormat: "json", Precision: 2}
			tt.mutate(cfg)
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
