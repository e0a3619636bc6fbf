package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaresolver/internal/resolver"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  resolve_timeout_seconds: 30
auth:
  admin_key: secret
admission:
  rate_limit: 10
  rate_window_seconds: 30
cache:
  backend: postgres
  ttl_hours: 24
  ephemeral_ttl_minutes: 15
credentials:
  backend: postgres
  cooldown_seconds: 45
scrape:
  user_agent: resolver-agent
  qps: 1.5
db:
  dsn: postgres://resolver@localhost/resolver
platforms:
  disabled: ["pinterest"]
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Auth.AdminKey != "secret" {
		t.Fatalf("expected admin key to load")
	}
	if cfg.Admission.RateLimit != 10 || cfg.Admission.RateWindowSec != 30 {
		t.Fatalf("expected admission overrides to apply: %+v", cfg.Admission)
	}
	if cfg.Cache.Backend != "postgres" || cfg.Cache.TTLHours != 24 {
		t.Fatalf("expected cache overrides to apply: %+v", cfg.Cache)
	}
	if cfg.Scrape.UserAgent != "resolver-agent" || cfg.Scrape.QPS != 1.5 {
		t.Fatalf("expected scrape overrides to apply: %+v", cfg.Scrape)
	}
	if got := cfg.ResolveTimeout(); got != 30*time.Second {
		t.Fatalf("expected resolve timeout 30s, got %v", got)
	}
	if got := cfg.Cooldown(); got != 45*time.Second {
		t.Fatalf("expected cooldown 45s, got %v", got)
	}
	// Defaults fill the rest.
	if cfg.Cache.Table != "media_cache" {
		t.Fatalf("expected default cache table, got %q", cfg.Cache.Table)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:      ServerConfig{Port: 8080, ResolveTimeoutS: 45},
		Admission:   AdmissionConfig{RateLimit: 60, RateWindowSec: 60},
		Cache:       CacheConfig{Backend: "memory"},
		Credentials: CredentialsConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid resolve timeout",
			cfg: func() Config {
				c := base
				c.Server.ResolveTimeoutS = 0
				return c
			}(),
			want: "server.resolve_timeout_seconds",
		},
		{
			name: "invalid rate window",
			cfg: func() Config {
				c := base
				c.Admission.RateWindowSec = 0
				return c
			}(),
			want: "admission.rate_window_seconds",
		},
		{
			name: "unknown cache backend",
			cfg: func() Config {
				c := base
				c.Cache.Backend = "redis"
				return c
			}(),
			want: "cache.backend",
		},
		{
			name: "postgres cache without dsn",
			cfg: func() Config {
				c := base
				c.Cache.Backend = "postgres"
				return c
			}(),
			want: "db.dsn",
		},
		{
			name: "gcs capture without bucket",
			cfg: func() Config {
				c := base
				c.Capture.Backend = "gcs"
				return c
			}(),
			want: "capture.gcs_bucket",
		},
		{
			name: "pubsub without project",
			cfg: func() Config {
				c := base
				c.PubSub.Enabled = true
				return c
			}(),
			want: "pubsub.project_id",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRuntimeSettings(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Admission: AdmissionConfig{RateLimit: 5, RateWindowSec: 60},
		Cache:     CacheConfig{TTLHours: 72, EphemeralTTLMins: 30},
		Platforms: PlatformsConfig{Disabled: []string{"pinterest"}},
	}
	rt := NewRuntime(cfg)

	if rt.PlatformEnabled(resolver.PlatformPinterest) {
		t.Fatal("expected pinterest disabled at startup")
	}
	if !rt.PlatformEnabled(resolver.PlatformTikTok) {
		t.Fatal("expected tiktok enabled")
	}
	rt.SetPlatformEnabled(resolver.PlatformPinterest, true)
	if !rt.PlatformEnabled(resolver.PlatformPinterest) {
		t.Fatal("expected pinterest re-enabled")
	}

	if got := rt.CacheTTL(resolver.PlatformYouTube); got != 72*time.Hour {
		t.Fatalf("expected default TTL 72h, got %v", got)
	}
	if got := rt.CacheTTL(resolver.PlatformInstagram); got != 30*time.Minute {
		t.Fatalf("expected instagram TTL 30m, got %v", got)
	}
	rt.SetCacheTTL(resolver.PlatformYouTube, time.Hour)
	if got := rt.CacheTTL(resolver.PlatformYouTube); got != time.Hour {
		t.Fatalf("expected overridden TTL 1h, got %v", got)
	}

	limit, window := rt.GlobalRateLimit()
	if limit != 5 || window != 60*time.Second {
		t.Fatalf("unexpected rate limit %d/%v", limit, window)
	}

	if rt.MaintenanceMode() {
		t.Fatal("expected maintenance off")
	}
	rt.SetMaintenanceMode(true)
	if !rt.MaintenanceMode() {
		t.Fatal("expected maintenance on")
	}
}
