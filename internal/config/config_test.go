package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		SecretKey:       "secure-secret-at-least-32-chars-long",
		DatabaseURL:     "sqlite://blog.db",
		Port:            "8080",
		Env:             "development",
		PublisherMode:   PublisherEmbedded,
		PublishInterval: time.Minute,
		ResetTokenTTL:   100000 * time.Second,
		MailPort:        587,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid development", func(c *Config) {}, false},
		{"missing secret", func(c *Config) { c.SecretKey = "" }, true},
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, true},
		{"zero interval", func(c *Config) { c.PublishInterval = 0 }, true},
		{"unknown publisher mode", func(c *Config) { c.PublisherMode = "cron" }, true},
		{"asynq without redis", func(c *Config) { c.PublisherMode = PublisherAsynq }, true},
		{"asynq with redis", func(c *Config) {
			c.PublisherMode = PublisherAsynq
			c.RedisURL = "redis://localhost:6379/0"
		}, false},
		{"bad mail port", func(c *Config) { c.MailServer = "smtp.example.com"; c.MailPort = 0 }, true},
		{"production default secret", func(c *Config) {
			c.Env = "production"
			c.SecretKey = DefaultSecretKey
		}, true},
		{"production short secret", func(c *Config) {
			c.Env = "prod"
			c.SecretKey = "short"
		}, true},
		{"production strong secret", func(c *Config) { c.Env = "production" }, false},
		{"unknown rate limit mode", func(c *Config) { c.RateLimit = "sometimes" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FromJSONFile(t *testing.T) {
	defer viper.Reset()

	path := writeConfigFile(t, `{
		"SECRET_KEY": "a-very-long-secret-key-for-the-blog-app",
		"DATABASE_URL": "sqlite://blog.db",
		"MAIL_SERVER": "smtp.example.com",
		"MAIL_PORT": 465,
		"MAIL_USERNAME": "blog@example.com",
		"MAIL_PASSWORD": "hunter2"
	}`)

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", c.MailServer)
	assert.Equal(t, 465, c.MailPort)
	assert.True(t, c.MailUseTLS)
	assert.Equal(t, 60*time.Second, c.PublishInterval)
	assert.Equal(t, 100000*time.Second, c.ResetTokenTTL)
	assert.Equal(t, PublisherEmbedded, c.PublisherMode)
	assert.Equal(t, RateLimitAuto, c.RateLimit)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	defer viper.Reset()
	t.Setenv("PUBLISH_INTERVAL", "5s")
	t.Setenv("BASE_URL", "https://blog.example.com/")

	path := writeConfigFile(t, `{"SECRET_KEY": "k", "DATABASE_URL": "sqlite://blog.db"}`)

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.PublishInterval)
	assert.Equal(t, "https://blog.example.com", c.BaseURL)
}

func TestLoadConfig_MissingFileFails(t *testing.T) {
	defer viper.Reset()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadConfig_MalformedFileFails(t *testing.T) {
	defer viper.Reset()

	_, err := LoadConfig(writeConfigFile(t, `{"SECRET_KEY": `))
	assert.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("QUILLPOST_CONFIG", "/etc/quillpost.json")
	assert.Equal(t, "/tmp/x.json", ConfigPath("/tmp/x.json"))
	assert.Equal(t, "/etc/quillpost.json", ConfigPath(""))
}

func TestConfig_RateLimited(t *testing.T) {
	tests := []struct {
		env, mode string
		want      bool
	}{
		{"development", "", false},
		{"test", RateLimitAuto, false},
		{"production", RateLimitAuto, true},
		{"staging", "", true},
		{"test", RateLimitOn, true},
		{"production", RateLimitOff, false},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.mode, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.RateLimit = tt.mode
			assert.Equal(t, tt.want, c.RateLimited())
		})
	}
}

func TestConfig_RateLimitedIgnoresProcessEnv(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	c := validConfig()
	c.Env = "production"
	assert.True(t, c.RateLimited())
}
