package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 7223, cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Auth.GetCodeTTL())
	assert.Equal(t, time.Hour, cfg.Auth.GetAccessTokenTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.GetRefreshTokenTTL())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigMergesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aiveilix.toml")
	content := `
environment = "production"

[server]
port = 9999
public_url = "https://gw.example.com"

[auth]
access_token_ttl = "30m"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "https://gw.example.com", cfg.Issuer())
	assert.Equal(t, "https://gw.example.com/mcp", cfg.ResourceURL())
	assert.Equal(t, 30*time.Minute, cfg.Auth.GetAccessTokenTTL())
	// Untouched sections keep defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadConfigSkipsMissingFiles(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/aiveilix.toml")
	require.NoError(t, err)
	assert.Equal(t, 7223, cfg.Server.Port)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("AIVEILIX_PORT", "8123")
	t.Setenv("AIVEILIX_STORAGE_BACKEND", "surrealdb")
	t.Setenv("AIVEILIX_AUTH_JWT_SECRET", "override-secret")
	t.Setenv("AIVEILIX_KNOWLEDGE_URL", "http://knowledge:9000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "surrealdb", cfg.Storage.Backend)
	assert.Equal(t, "override-secret", cfg.Auth.UserJWTSecret)
	assert.Equal(t, "http://knowledge:9000", cfg.Knowledge.BaseURL)
}

func TestIssuerTrimsTrailingSlash(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Server.PublicURL = "https://gw.example.com/"
	assert.Equal(t, "https://gw.example.com", cfg.Issuer())
	assert.Equal(t, "https://gw.example.com/mcp", cfg.ResourceURL())
}
