// Package config loads service configuration with viper. Precedence is
// environment (RR_ prefix) over config file over defaults. Auth tokens are
// environment-only and never read from config files.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the serve command needs.
type Config struct {
	Host        string
	Port        int
	DatabaseURL string
	LogLevel    string
	LogFormat   string

	// Precision is the currency decimal precision used when rounding
	// computed price overrides.
	Precision int

	// AdminToken / CatalogToken authenticate the development token
	// authenticator. Deployments relying on platform sessions leave them
	// unset.
	AdminToken   string
	CatalogToken string
}

// Load reads configuration from the optional file path and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.precision", 2)

	v.SetEnvPrefix("RR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// Tokens are secrets: environment only.
	if v.InConfig("auth.admin_token") || v.InConfig("auth.catalog_token") {
		return nil, fmt.Errorf("auth tokens are not allowed in config files (use RR_AUTH_ADMIN_TOKEN / RR_AUTH_CATALOG_TOKEN)")
	}

	cfg := &Config{
		Host:         v.GetString("server.host"),
		Port:         v.GetInt("server.port"),
		DatabaseURL:  v.GetString("db.url"),
		LogLevel:     v.GetString("log.level"),
		LogFormat:    v.GetString("log.format"),
		Precision:    v.GetInt("pricing.precision"),
		AdminToken:   v.GetString("auth.admin_token"),
		CatalogToken: v.GetString("auth.catalog_token"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Precision < 0 || c.Precision > 8 {
		return fmt.Errorf("pricing precision must be between 0 and 8, got %d", c.Precision)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.LogFormat)
	}
	return nil
}
