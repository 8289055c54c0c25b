// Package config loads linkdash configuration from built-in defaults, an
// optional YAML file and the environment, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abdusco/linkdash/internal/validation"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Log       LogConfig       `koanf:"log"`
	Redirect  RedirectConfig  `koanf:"redirect"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	BaseURL         string        `koanf:"base_url" validate:"required,url"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
	Timezone        string        `koanf:"timezone"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Location is the zone whose midnight starts "today" in statistics.
func (s ServerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn" validate:"required"`
}

type AuthConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"`
	TokenTTL         time.Duration `koanf:"token_ttl" validate:"min=1m"`
	AdminCredentials string        `koanf:"admin_credentials"`
	CookieSecure     bool          `koanf:"cookie_secure"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Debug bool   `koanf:"debug"`
}

type RedirectConfig struct {
	Permanent         bool          `koanf:"permanent"`
	ExpiredURL        string        `koanf:"expired_url" validate:"required"`
	NotFoundURL       string        `koanf:"not_found_url" validate:"required"`
	AccountingTimeout time.Duration `koanf:"accounting_timeout" validate:"min=1ms"`
}

type RateLimitConfig struct {
	Enabled       bool    `koanf:"enabled"`
	RedirectRPS   float64 `koanf:"redirect_rps" validate:"min=0"`
	RedirectBurst int     `koanf:"redirect_burst" validate:"min=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			BaseURL:         "http://localhost:8080",
			ShutdownTimeout: 10 * time.Second,
			Timezone:        "Local",
		},
		Database: DatabaseConfig{
			DSN: "linkdash.db",
		},
		Auth: AuthConfig{
			TokenTTL:     30 * 24 * time.Hour,
			CookieSecure: false,
		},
		Log: LogConfig{
			Level: "info",
		},
		Redirect: RedirectConfig{
			Permanent:         true,
			ExpiredURL:        "/link/expired",
			NotFoundURL:       "/link/not-found",
			AccountingTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			RedirectRPS:   30,
			RedirectBurst: 60,
		},
	}
}

// envMappings maps environment variables to config paths. Anything not listed
// is ignored.
var envMappings = map[string]string{
	"HOST":                      "server.host",
	"PORT":                      "server.port",
	"BASE_URL":                  "server.base_url",
	"SHUTDOWN_TIMEOUT":          "server.shutdown_timeout",
	"STATS_TIMEZONE":            "server.timezone",
	"DATABASE_URL":              "database.dsn",
	"JWT_SECRET":                "auth.jwt_secret",
	"TOKEN_TTL":                 "auth.token_ttl",
	"ADMIN_CREDENTIALS":         "auth.admin_credentials",
	"COOKIE_SECURE":             "auth.cookie_secure",
	"LOG_LEVEL":                 "log.level",
	"DEBUG":                     "log.debug",
	"REDIRECT_PERMANENT":        "redirect.permanent",
	"REDIRECT_EXPIRED_URL":      "redirect.expired_url",
	"REDIRECT_NOT_FOUND_URL":    "redirect.not_found_url",
	"ACCOUNTING_TIMEOUT":        "redirect.accounting_timeout",
	"RATE_LIMIT_ENABLED":        "ratelimit.enabled",
	"RATE_LIMIT_REDIRECT_RPS":   "ratelimit.redirect_rps",
	"RATE_LIMIT_REDIRECT_BURST": "ratelimit.redirect_burst",
}

func envTransformFunc(key string) string {
	return envMappings[key]
}

// Load reads .env (when present), then layers defaults, the config file and
// the environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return load(findConfigFile())
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyFallbacks fills development defaults for secrets that were left empty.
func (c *Config) applyFallbacks() {
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")

	if c.Auth.AdminCredentials == "" {
		c.Auth.AdminCredentials = "admin:admin"
		log.Warn().Msg("using default admin credentials - set ADMIN_CREDENTIALS for production")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = c.Auth.AdminCredentials
		log.Warn().Msg("using ADMIN_CREDENTIALS as JWT_SECRET - set JWT_SECRET for production")
	}
}

func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if _, err := c.Server.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Server.Timezone, err)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
