// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSecretKey is only acceptable outside production.
const DefaultSecretKey = "change-me-outside-of-development"

// Publisher modes.
const (
	PublisherEmbedded = "embedded"
	PublisherAsynq    = "asynq"
	PublisherOff      = "off"
)

// Rate limit modes.
const (
	RateLimitAuto = "auto"
	RateLimitOn   = "on"
	RateLimitOff  = "off"
)

// Config holds application configuration values loaded from the JSON config
// file and environment variables.
type Config struct {
	SecretKey       string        `mapstructure:"SECRET_KEY"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	MailServer      string        `mapstructure:"MAIL_SERVER"`
	MailPort        int           `mapstructure:"MAIL_PORT"`
	MailUsername    string        `mapstructure:"MAIL_USERNAME"`
	MailPassword    string        `mapstructure:"MAIL_PASSWORD"`
	MailUseTLS      bool          `mapstructure:"MAIL_USE_TLS"`
	MailSender      string        `mapstructure:"MAIL_SENDER"`
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"APP_ENV"`
	BaseURL         string        `mapstructure:"BASE_URL"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	UploadDir       string        `mapstructure:"UPLOAD_DIR"`
	PublisherMode   string        `mapstructure:"PUBLISHER_MODE"`
	PublishInterval time.Duration `mapstructure:"PUBLISH_INTERVAL"`
	ResetTokenTTL   time.Duration `mapstructure:"RESET_TOKEN_TTL"`
	SessionTTL      time.Duration `mapstructure:"SESSION_TTL"`
	RememberTTL     time.Duration `mapstructure:"REMEMBER_TTL"`
	MaxUploadMB     int           `mapstructure:"MAX_UPLOAD_MB"`
	DBMaxOpenConns  int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns  int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	TracingEnabled  bool          `mapstructure:"TRACING_ENABLED"`
	TracingExporter string        `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string        `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64       `mapstructure:"TRACE_SAMPLE_RATE"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	RateLimit       string        `mapstructure:"RATE_LIMIT"`
}

// ConfigPath resolves the config file location: explicit path, then
// QUILLPOST_CONFIG, then ./config.json.
func ConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("QUILLPOST_CONFIG"); p != "" {
		return p
	}
	return "config.json"
}

// LoadConfig reads the JSON config file at path (see ConfigPath) and overlays
// environment variables. A missing or unreadable file is an error.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	viper.SetConfigFile(ConfigPath(path))
	viper.SetConfigType("json")
	viper.AutomaticEnv()

	viper.SetDefault("SECRET_KEY", "")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("MAIL_SERVER", "")
	viper.SetDefault("MAIL_PORT", 587)
	viper.SetDefault("MAIL_USERNAME", "")
	viper.SetDefault("MAIL_PASSWORD", "")
	viper.SetDefault("MAIL_USE_TLS", true)
	viper.SetDefault("MAIL_SENDER", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("BASE_URL", "http://localhost:8080")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("UPLOAD_DIR", "static/profile_pics")
	viper.SetDefault("PUBLISHER_MODE", PublisherEmbedded)
	viper.SetDefault("PUBLISH_INTERVAL", "60s")
	viper.SetDefault("RESET_TOKEN_TTL", "100000s")
	viper.SetDefault("SESSION_TTL", "24h")
	viper.SetDefault("REMEMBER_TTL", "720h")
	viper.SetDefault("MAX_UPLOAD_MB", 4)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 20)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACE_SAMPLE_RATE", 1.0)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("RATE_LIMIT", RateLimitAuto)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", viper.ConfigFileUsed(), err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.PublisherMode = strings.ToLower(strings.TrimSpace(config.PublisherMode))
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	config.RateLimit = strings.ToLower(strings.TrimSpace(config.RateLimit))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// RateLimited reports whether request rate limits are enforced. In auto mode
// local and test environments run without them.
func (c *Config) RateLimited() bool {
	switch c.RateLimit {
	case RateLimitOn:
		return true
	case RateLimitOff:
		return false
	}
	switch strings.ToLower(c.Env) {
	case "", "test", "development":
		return false
	}
	return true
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.PublishInterval <= 0 {
		return errors.New("PUBLISH_INTERVAL must be positive")
	}
	if c.ResetTokenTTL <= 0 {
		return errors.New("RESET_TOKEN_TTL must be positive")
	}
	switch c.PublisherMode {
	case PublisherEmbedded, PublisherOff:
	case PublisherAsynq:
		if c.RedisURL == "" {
			return errors.New("PUBLISHER_MODE=asynq requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown PUBLISHER_MODE %q", c.PublisherMode)
	}
	switch c.RateLimit {
	case "", RateLimitAuto, RateLimitOn, RateLimitOff:
	default:
		return fmt.Errorf("unknown RATE_LIMIT %q", c.RateLimit)
	}
	if c.MailServer != "" && (c.MailPort <= 0 || c.MailPort > 65535) {
		return fmt.Errorf("MAIL_PORT %d is out of range", c.MailPort)
	}

	if c.IsProduction() {
		if c.SecretKey == DefaultSecretKey {
			return errors.New("SECRET_KEY must be changed from the default value in production")
		}
		if len(c.SecretKey) < 32 {
			return errors.New("SECRET_KEY must be at least 32 characters in production")
		}
		if c.MailServer == "" {
			log.Println("WARNING: MAIL_SERVER is empty in production. Password reset mails will only be logged.")
		}
	} else if len(c.SecretKey) < 32 {
		log.Println("WARNING: SECRET_KEY is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
