// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted in BACKEND.
const (
	BackendREST = "rest"
	BackendSQL  = "sql"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env     string `mapstructure:"APP_ENV"`
	Port    string `mapstructure:"PORT"`
	Backend string `mapstructure:"BACKEND"`

	// hosted backend
	SupabaseURL     string        `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey string        `mapstructure:"SUPABASE_ANON_KEY"`
	FunctionsURL    string        `mapstructure:"FUNCTIONS_URL"`
	GatewayTimeout  time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	GatewayRPS      float64       `mapstructure:"GATEWAY_RPS"`
	GatewayBurst    int           `mapstructure:"GATEWAY_BURST"`

	// self-hosted backend
	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	JWTSecret  string `mapstructure:"JWT_SECRET"`

	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3UseSSL    bool   `mapstructure:"S3_USE_SSL"`
	S3PublicURL string `mapstructure:"S3_PUBLIC_URL"`

	RedisURL string `mapstructure:"REDIS_URL"`
	DeviceID string `mapstructure:"DEVICE_ID"`

	SessionRetryAttempts int           `mapstructure:"SESSION_RETRY_ATTEMPTS"`
	SessionRetryDelay    time.Duration `mapstructure:"SESSION_RETRY_DELAY"`
	SessionRefreshMargin time.Duration `mapstructure:"SESSION_REFRESH_MARGIN"`

	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	RepoLogging bool `mapstructure:"REPO_LOGGING"`
}

const defaultJWTSecret = "dev-secret-change-me"

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// the base file is optional
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("BACKEND", BackendSQL)

	viper.SetDefault("SUPABASE_URL", "")
	viper.SetDefault("SUPABASE_ANON_KEY", "")
	viper.SetDefault("FUNCTIONS_URL", "")
	viper.SetDefault("GATEWAY_TIMEOUT", "15s")
	viper.SetDefault("GATEWAY_RPS", 10)
	viper.SetDefault("GATEWAY_BURST", 20)

	viper.SetDefault("DB_DRIVER", "sqlite")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "frzterr")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "frzterr.db")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)

	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("S3_ACCESS_KEY", "")
	viper.SetDefault("S3_SECRET_KEY", "")
	viper.SetDefault("S3_USE_SSL", false)
	viper.SetDefault("S3_PUBLIC_URL", "")

	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("DEVICE_ID", "default")

	viper.SetDefault("SESSION_RETRY_ATTEMPTS", 10)
	viper.SetDefault("SESSION_RETRY_DELAY", "500ms")
	viper.SetDefault("SESSION_REFRESH_MARGIN", "60s")

	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	viper.SetDefault("REPO_LOGGING", true)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.TracingExporter = strings.ToLower(strings.TrimSpace(c.TracingExporter))
}

// IsProduction reports whether the config targets a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.Backend {
	case BackendREST:
		if c.SupabaseURL == "" {
			return errors.New("SUPABASE_URL is required for the rest backend")
		}
		if c.SupabaseAnonKey == "" {
			return errors.New("SUPABASE_ANON_KEY is required for the rest backend")
		}
		if c.GatewayRPS < 0 {
			return errors.New("GATEWAY_RPS must not be negative")
		}
	case BackendSQL:
		if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
			return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
		}
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required for the sql backend")
		}
		if c.IsProduction() {
			if c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 32 {
				return errors.New("JWT_SECRET must be at least 32 characters and changed from the default in production")
			}
			if c.DBDriver == "postgres" && (c.DBPassword == "password" || c.DBPassword == "") {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBDriver == "postgres" && (c.DBSSLMode == "disable" || c.DBSSLMode == "") {
				return errors.New("DB_SSLMODE must not be 'disable' in production")
			}
		}
	default:
		return fmt.Errorf("BACKEND must be %q or %q, got %q", BackendREST, BackendSQL, c.Backend)
	}

	if c.SessionRetryAttempts < 1 {
		return errors.New("SESSION_RETRY_ATTEMPTS must be at least 1")
	}
	if c.SessionRetryDelay < 0 {
		return errors.New("SESSION_RETRY_DELAY must not be negative")
	}
	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be between 0 and 1")
	}

	if c.IsProduction() && c.AllowedOrigins == "*" {
		log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
	}

	return nil
}

// Origins splits ALLOWED_ORIGINS into its entries.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
