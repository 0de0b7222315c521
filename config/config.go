package config

import (
	"os"
	"strconv"
	"strings"
)

// Global config instance
var global *Config

// Config holds process-level settings loaded from the environment (.env).
// Strategy parameters live in StrategyConfig and are validated separately.
type Config struct {
	APIServerPort int
	JWTSecret     string
	AdminPassword string
	DBPath        string
	LogLevel      string
}

// Init loads global config from environment variables.
func Init() {
	cfg := &Config{
		APIServerPort: 8080,
		DBPath:        "hedgegrid.db",
		LogLevel:      "info",
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = strings.TrimSpace(v)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "default-jwt-secret-change-in-production"
	}

	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = strings.TrimSpace(v)
	}

	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}

	global = cfg
}

// Get returns the global config, initializing it on first use.
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}
