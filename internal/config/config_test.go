package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSQL() Config {
	return Config{
		Env:                  "development",
		Port:                 "8375",
		Backend:              BackendSQL,
		DBDriver:             "sqlite",
		JWTSecret:            "dev",
		SessionRetryAttempts: 10,
		SessionRetryDelay:    500 * time.Millisecond,
		TracingSamplerRatio:  1,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"sqlite development", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "mongo" }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"rest without url", func(c *Config) { c.Backend = BackendREST; c.SupabaseAnonKey = "k" }, true},
		{"rest without key", func(c *Config) { c.Backend = BackendREST; c.SupabaseURL = "https://x.supabase.co" }, true},
		{"rest complete", func(c *Config) {
			c.Backend = BackendREST
			c.SupabaseURL = "https://x.supabase.co"
			c.SupabaseAnonKey = "anon"
		}, false},
		{"no retry attempts", func(c *Config) { c.SessionRetryAttempts = 0 }, true},
		{"sampler out of range", func(c *Config) { c.TracingSamplerRatio = 1.5 }, true},
		{"production default secret", func(c *Config) { c.Env = "production"; c.JWTSecret = defaultJWTSecret }, true},
		{"production postgres without ssl", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "secure-secret-at-least-32-chars-long"
			c.DBDriver = "postgres"
			c.DBPassword = "strong-password"
			c.DBSSLMode = "disable"
		}, true},
		{"production postgres", func(c *Config) {
			c.Env = "prod"
			c.JWTSecret = "secure-secret-at-least-32-chars-long"
			c.DBDriver = "postgres"
			c.DBPassword = "strong-password"
			c.DBSSLMode = "require"
		}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validSQL()
			tt.mutate(&c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("BACKEND", " SQL ")
	t.Setenv("SESSION_RETRY_DELAY", "250ms")
	t.Setenv("GATEWAY_RPS", "2.5")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, BackendSQL, c.Backend)
	assert.Equal(t, 250*time.Millisecond, c.SessionRetryDelay)
	assert.Equal(t, 10, c.SessionRetryAttempts)
	assert.Equal(t, time.Minute, c.SessionRefreshMargin)
	assert.InDelta(t, 2.5, c.GatewayRPS, 0.001)
	assert.Equal(t, "default", c.DeviceID)
}

func TestOrigins(t *testing.T) {
	t.Parallel()
	c := Config{AllowedOrigins: " http://a , ,http://b"}
	assert.Equal(t, []string{"http://a", "http://b"}, c.Origins())
}
