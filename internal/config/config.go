// Package config loads and validates resolver configuration via Viper and
// owns the hot-reloadable runtime settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Admission   AdmissionConfig   `mapstructure:"admission"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Scrape      ScrapeConfig      `mapstructure:"scrape"`
	DB          DBConfig          `mapstructure:"db"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	Tasks       TasksConfig       `mapstructure:"tasks"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Platforms   PlatformsConfig   `mapstructure:"platforms"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ResolveTimeoutS int `mapstructure:"resolve_timeout_seconds"`
}

// AuthConfig defines the admin API key. Caller keys live in the key store.
type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

// AdmissionConfig governs anonymous rate limiting and input screening.
type AdmissionConfig struct {
	RateLimit       int      `mapstructure:"rate_limit"`
	RateWindowSec   int      `mapstructure:"rate_window_seconds"`
	ExtraBlocklist  []string `mapstructure:"extra_blocklist"`
	MaintenanceMode bool     `mapstructure:"maintenance_mode"`
}

// CacheConfig selects and tunes the result cache backend.
type CacheConfig struct {
	Backend          string `mapstructure:"backend"`
	Table            string `mapstructure:"table"`
	TTLHours         int    `mapstructure:"ttl_hours"`
	EphemeralTTLMins int    `mapstructure:"ephemeral_ttl_minutes"`
}

// CredentialsConfig tunes the credential pool.
type CredentialsConfig struct {
	Backend          string   `mapstructure:"backend"`
	Table            string   `mapstructure:"table"`
	CooldownSeconds  int      `mapstructure:"cooldown_seconds"`
	ExtraAuthPhrases []string `mapstructure:"extra_auth_phrases"`
	ExtraRatePhrases []string `mapstructure:"extra_rate_phrases"`
}

// ScrapeConfig tunes the default scraper.
type ScrapeConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	QPS            float64 `mapstructure:"qps"`
	// AuthRequired lists platforms whose public surface is always gated.
	AuthRequired []string `mapstructure:"auth_required"`
	// Credentialed lists platforms where a credentialed retry is useful.
	Credentialed []string `mapstructure:"credentialed"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds metadata for resolution event publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// CaptureConfig sets the failure-capture archive destination.
type CaptureConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// TasksConfig bounds the background task runner.
type TasksConfig struct {
	MaxInFlight    int `mapstructure:"max_in_flight"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PlatformsConfig lists platforms disabled at startup.
type PlatformsConfig struct {
	Disabled []string `mapstructure:"disabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.resolve_timeout_seconds", 45)
	v.SetDefault("admission.rate_limit", 60)
	v.SetDefault("admission.rate_window_seconds", 60)
	v.SetDefault("admission.maintenance_mode", false)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.table", "media_cache")
	v.SetDefault("cache.ttl_hours", 72)
	v.SetDefault("cache.ephemeral_ttl_minutes", 30)
	v.SetDefault("credentials.backend", "memory")
	v.SetDefault("credentials.table", "credentials")
	v.SetDefault("credentials.cooldown_seconds", 30)
	v.SetDefault("scrape.user_agent", "mediaresolver/1.0")
	v.SetDefault("scrape.timeout_seconds", 20)
	v.SetDefault("scrape.qps", 2.0)
	v.SetDefault("scrape.auth_required", []string{"instagram"})
	v.SetDefault("scrape.credentialed", []string{"instagram", "tiktok", "facebook"})
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic_name", "media-resolutions")
	v.SetDefault("capture.backend", "memory")
	v.SetDefault("capture.prefix", "failures")
	v.SetDefault("tasks.max_in_flight", 64)
	v.SetDefault("tasks.timeout_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.ResolveTimeoutS <= 0 {
		return fmt.Errorf("server.resolve_timeout_seconds must be > 0")
	}
	if c.Admission.RateWindowSec <= 0 {
		return fmt.Errorf("admission.rate_window_seconds must be > 0")
	}
	switch c.Cache.Backend {
	case "memory", "postgres", "none":
	default:
		return fmt.Errorf("cache.backend must be memory, postgres or none")
	}
	if c.Cache.Backend == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when cache.backend is postgres")
	}
	switch c.Credentials.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("credentials.backend must be memory or postgres")
	}
	if c.Credentials.Backend == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when credentials.backend is postgres")
	}
	if c.Capture.Backend == "gcs" && c.Capture.GCSBucket == "" {
		return fmt.Errorf("capture.gcs_bucket must be set when capture.backend is gcs")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	return nil
}

// ResolveTimeout is the end-to-end budget for one resolve request.
func (c Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Server.ResolveTimeoutS) * time.Second
}

// Cooldown is the rate-limit backoff applied to credentials.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Credentials.CooldownSeconds) * time.Second
}
