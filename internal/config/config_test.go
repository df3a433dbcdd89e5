package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("WALLQUOTE_CONFIG", "")
	t.Setenv("WALLQUOTE_AUTH__SECRET", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 8*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 6*time.Hour, cfg.Redis.ZoneTTL)
	assert.Equal(t, 2*time.Minute, cfg.Booking.Timeout)
	assert.True(t, cfg.Booking.TestMode)
	assert.False(t, cfg.Booking.Enabled)
	assert.Empty(t, cfg.Auth.Secret, "no weak secret is injected")
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "wallquote.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
booking:
  enabled: true
  username: portal-user
  password: from-file
zones:
  file: /etc/wallquote/zones.yaml
`), 0o600))

	t.Setenv("WALLQUOTE_CONFIG", path)
	t.Setenv("WALLQUOTE_BOOKING__PASSWORD", "from-env")
	t.Setenv("WALLQUOTE_BOOKING__TEST_MODE", "false")
	t.Setenv("WALLQUOTE_AUTH__TOKEN_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "portal-user", cfg.Booking.Username)
	assert.Equal(t, "from-env", cfg.Booking.Password)
	assert.False(t, cfg.Booking.TestMode)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "/etc/wallquote/zones.yaml", cfg.Zones.File)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WALLQUOTE_REDIS__ADDR=localhost:6379\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("WALLQUOTE_REDIS__ADDR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadMissingFileFails(t *testing.T) {
	isolate(t)
	t.Setenv("WALLQUOTE_CONFIG", "/nonexistent/wallquote.yaml")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.HTTP.Addr = ":8080"
		c.Auth.Secret = strongSecret
		c.Auth.TokenTTL = time.Hour
		c.Booking.Timeout = time.Minute
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "short secret", mutate: func(c *Config) { c.Auth.Secret = "short" }, wantErr: true},
		{name: "missing addr", mutate: func(c *Config) { c.HTTP.Addr = "" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.Auth.TokenTTL = 0 }, wantErr: true},
		{name: "booking without credentials", mutate: func(c *Config) { c.Booking.Enabled = true }, wantErr: true},
		{
			name: "booking with credentials",
			mutate: func(c *Config) {
				c.Booking.Enabled = true
				c.Booking.Username = "u"
				c.Booking.Password = "p"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
