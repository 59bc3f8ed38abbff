// Package common provides shared utilities for the AIveilix gateway
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the gateway
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Auth        AuthConfig      `toml:"auth"`
	Knowledge   KnowledgeConfig `toml:"knowledge"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	PublicURL   string `toml:"public_url"`   // externally visible base URL, used as OAuth issuer
	FrontendURL string `toml:"frontend_url"` // consent page origin
}

// StorageConfig holds storage backend configuration.
// Backend "badger" uses an embedded BadgerHold store at Path;
// backend "surrealdb" connects to the configured SurrealDB instance.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Path      string `toml:"path"`
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// AuthConfig holds OAuth and user-JWT configuration.
type AuthConfig struct {
	UserJWTSecret   string          `toml:"user_jwt_secret"` // HS256 secret for consent-flow user JWTs
	CodeTTL         string          `toml:"code_ttl"`        // duration string, default "10m"
	AccessTokenTTL  string          `toml:"access_token_ttl"`  // default "1h"
	RefreshTokenTTL string          `toml:"refresh_token_ttl"` // default "720h" (30 days)
	RateLimit       RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig holds the token-bucket parameters applied to the
// token and registration endpoints, keyed by remote address.
type RateLimitConfig struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// KnowledgeConfig holds the Knowledge Service client configuration.
type KnowledgeConfig struct {
	BaseURL      string `toml:"base_url"`
	ServiceToken string `toml:"service_token"`
	RateLimit    int    `toml:"rate_limit"`
	Timeout      string `toml:"timeout"`
}

// GetTimeout parses and returns the client timeout duration
func (c *KnowledgeConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// GetCodeTTL parses the authorization code lifetime.
func (c *AuthConfig) GetCodeTTL() time.Duration {
	d, err := time.ParseDuration(c.CodeTTL)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetAccessTokenTTL parses the access token lifetime.
func (c *AuthConfig) GetAccessTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.AccessTokenTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetRefreshTokenTTL parses the refresh token lifetime.
func (c *AuthConfig) GetRefreshTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshTokenTTL)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return d
}

// Issuer returns the OAuth issuer identifier.
func (c *Config) Issuer() string {
	return strings.TrimRight(c.Server.PublicURL, "/")
}

// ResourceURL returns the canonical protected-resource identifier,
// used as the default token audience.
func (c *Config) ResourceURL() string {
	return c.Issuer() + "/mcp"
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        7223,
			PublicURL:   "http://localhost:7223",
			FrontendURL: "http://localhost:6677",
		},
		Storage: StorageConfig{
			Backend:   "badger",
			Path:      "data/auth",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "aiveilix",
			Database:  "gateway",
			Username:  "root",
			Password:  "root",
		},
		Auth: AuthConfig{
			UserJWTSecret:   "dev-jwt-secret-change-in-production",
			CodeTTL:         "10m",
			AccessTokenTTL:  "1h",
			RefreshTokenTTL: "720h",
			RateLimit: RateLimitConfig{
				RPS:   10,
				Burst: 20,
			},
		},
		Knowledge: KnowledgeConfig{
			BaseURL:   "http://localhost:9000",
			RateLimit: 20,
			Timeout:   "30s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AIVEILIX_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("AIVEILIX_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("AIVEILIX_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if v := os.Getenv("AIVEILIX_PUBLIC_URL"); v != "" {
		config.Server.PublicURL = v
	}
	if v := os.Getenv("AIVEILIX_FRONTEND_URL"); v != "" {
		config.Server.FrontendURL = v
	}

	if level := os.Getenv("AIVEILIX_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage overrides
	if v := os.Getenv("AIVEILIX_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}
	if v := os.Getenv("AIVEILIX_DATA_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("AIVEILIX_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("AIVEILIX_STORAGE_NAMESPACE"); v != "" {
		config.Storage.Namespace = v
	}
	if v := os.Getenv("AIVEILIX_STORAGE_DATABASE"); v != "" {
		config.Storage.Database = v
	}
	if v := os.Getenv("AIVEILIX_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("AIVEILIX_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	// Auth overrides
	if v := os.Getenv("AIVEILIX_AUTH_JWT_SECRET"); v != "" {
		config.Auth.UserJWTSecret = v
	}
	if v := os.Getenv("AIVEILIX_AUTH_ACCESS_TOKEN_TTL"); v != "" {
		config.Auth.AccessTokenTTL = v
	}
	if v := os.Getenv("AIVEILIX_AUTH_REFRESH_TOKEN_TTL"); v != "" {
		config.Auth.RefreshTokenTTL = v
	}

	// Knowledge Service overrides
	if v := os.Getenv("AIVEILIX_KNOWLEDGE_URL"); v != "" {
		config.Knowledge.BaseURL = v
	}
	if v := os.Getenv("AIVEILIX_KNOWLEDGE_TOKEN"); v != "" {
		config.Knowledge.ServiceToken = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
