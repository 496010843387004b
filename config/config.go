// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/promptgate/domain/tier"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig        `yaml:"server"`
	Upstream UpstreamConfig      `yaml:"upstream"`
	Auth     AuthConfig          `yaml:"auth"`
	Webhook  WebhookConfig       `yaml:"webhook"`
	Store    StoreConfig         `yaml:"store"`
	Tiers    []TierConfig        `yaml:"tiers"`
	Pools    map[string][]string `yaml:"pools"` // tier ID -> unissued keys
	Keys     map[string]string   `yaml:"keys"`  // pre-seeded key -> tier ID
	Email    EmailConfig         `yaml:"email"`
	Schedule ScheduleConfig      `yaml:"schedule"`
	Logging  LoggingConfig       `yaml:"logging"`
	Metrics  MetricsConfig       `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig configures the text-generation upstream.
type UpstreamConfig struct {
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	Header     string `yaml:"header"`      // header carrying the API key (default: X-API-Key)
	AdminToken string `yaml:"admin_token"` // bearer token for /reset; empty disables the endpoint
}

// WebhookConfig configures payment webhook verification.
type WebhookConfig struct {
	Secret    string        `yaml:"secret"`    // shared HMAC secret, never embedded in code
	Header    string        `yaml:"header"`    // signature header (default: X-Webhook-Signature)
	Retention time.Duration `yaml:"retention"` // processed-event idempotency window
}

// StoreConfig selects the state backing.
type StoreConfig struct {
	Mode     string `yaml:"mode"` // "memory" or "redis"
	RedisURL string `yaml:"redis_url,omitempty"`
}

// TierConfig configures a service tier.
type TierConfig struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	RequestsPerMonth int64  `yaml:"requests_per_month"` // -1 = unlimited
	PriceID          string `yaml:"price_id"`
}

// EmailConfig configures key delivery email.
// Use "none" to disable or "smtp" for a real mail server.
type EmailConfig struct {
	Mode     string `yaml:"mode"` // "none" or "smtp"
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	From     string `yaml:"from,omitempty"`
	FromName string `yaml:"from_name,omitempty"`
	UseTLS   bool   `yaml:"use_tls,omitempty"`
	Implicit bool   `yaml:"implicit_tls,omitempty"`
}

// ScheduleConfig configures the external reset timer.
type ScheduleConfig struct {
	// ResetCron is a cron spec (e.g. "0 0 1 * *" for midnight on the
	// 1st) that triggers a full counter reset. Empty disables scheduled
	// resets; POST /reset remains available.
	ResetCron string `yaml:"reset_cron"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: /metrics
}

// Tiers returns the configured tiers as domain values.
func (c *Config) TierList() []tier.Tier {
	tiers := make([]tier.Tier, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		tiers = append(tiers, tier.Tier{
			ID:               t.ID,
			Name:             t.Name,
			RequestsPerMonth: t.RequestsPerMonth,
			PriceID:          t.PriceID,
		})
	}
	return tiers
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies PROMPTGATE_* environment variables.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROMPTGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PROMPTGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PROMPTGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("PROMPTGATE_UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("PROMPTGATE_AUTH_HEADER"); v != "" {
		cfg.Auth.Header = v
	}
	if v := os.Getenv("PROMPTGATE_ADMIN_TOKEN"); v != "" {
		cfg.Auth.AdminToken = v
	}
	if v := os.Getenv("PROMPTGATE_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("PROMPTGATE_STORE_MODE"); v != "" {
		cfg.Store.Mode = v
	}
	if v := os.Getenv("PROMPTGATE_REDIS_URL"); v != "" {
		cfg.Store.RedisURL = v
	}
	if v := os.Getenv("PROMPTGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PROMPTGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PROMPTGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 90 * time.Second
	}

	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}
	if cfg.Webhook.Header == "" {
		cfg.Webhook.Header = "X-Webhook-Signature"
	}
	if cfg.Webhook.Retention == 0 {
		cfg.Webhook.Retention = 90 * 24 * time.Hour
	}

	if cfg.Store.Mode == "" {
		cfg.Store.Mode = "memory"
	}
	if cfg.Email.Mode == "" {
		cfg.Email.Mode = "none"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Default starter tier if none configured
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = []TierConfig{
			{
				ID:               "starter",
				Name:             "Starter",
				RequestsPerMonth: 10000,
			},
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	if cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required")
	}

	validStoreModes := map[string]bool{"memory": true, "redis": true}
	if !validStoreModes[cfg.Store.Mode] {
		return fmt.Errorf("store.mode must be 'memory' or 'redis', got %q", cfg.Store.Mode)
	}
	if cfg.Store.Mode == "redis" && cfg.Store.RedisURL == "" {
		return fmt.Errorf("store.redis_url is required when store.mode is 'redis'")
	}

	validEmailModes := map[string]bool{"none": true, "smtp": true}
	if !validEmailModes[cfg.Email.Mode] {
		return fmt.Errorf("email.mode must be 'none' or 'smtp', got %q", cfg.Email.Mode)
	}
	if cfg.Email.Mode == "smtp" && cfg.Email.Host == "" {
		return fmt.Errorf("email.host is required when email.mode is 'smtp'")
	}

	tierIDs := make(map[string]bool, len(cfg.Tiers))
	priceIDs := make(map[string]bool)
	for i, t := range cfg.Tiers {
		if t.ID == "" {
			return fmt.Errorf("tiers[%d].id is required", i)
		}
		if tierIDs[t.ID] {
			return fmt.Errorf("tiers[%d]: duplicate tier id %q", i, t.ID)
		}
		tierIDs[t.ID] = true
		if t.PriceID != "" {
			if priceIDs[t.PriceID] {
				return fmt.Errorf("tiers[%d]: price id %q mapped to more than one tier", i, t.PriceID)
			}
			priceIDs[t.PriceID] = true
		}
	}

	for tierID := range cfg.Pools {
		if !tierIDs[tierID] {
			return fmt.Errorf("pools: unknown tier id %q", tierID)
		}
	}
	for key, tierID := range cfg.Keys {
		if !tierIDs[tierID] {
			return fmt.Errorf("keys: key %q mapped to unknown tier %q", key, tierID)
		}
	}

	return nil
}
