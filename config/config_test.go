package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
upstream:
  url: http://localhost:9000/v1/chat/completions
webhook:
  secret: whsec_test
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMinimalWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("server = %s:%d, want 0.0.0.0:8080", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Auth.Header != "X-API-Key" {
		t.Errorf("auth.header = %q, want X-API-Key", cfg.Auth.Header)
	}
	if cfg.Webhook.Header != "X-Webhook-Signature" {
		t.Errorf("webhook.header = %q, want X-Webhook-Signature", cfg.Webhook.Header)
	}
	if cfg.Webhook.Retention != 90*24*time.Hour {
		t.Errorf("webhook.retention = %v, want 90d", cfg.Webhook.Retention)
	}
	if cfg.Store.Mode != "memory" {
		t.Errorf("store.mode = %q, want memory", cfg.Store.Mode)
	}
	if cfg.Email.Mode != "none" {
		t.Errorf("email.mode = %q, want none", cfg.Email.Mode)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}

	// A default tier is provided when none are configured.
	if len(cfg.Tiers) != 1 || cfg.Tiers[0].ID != "starter" {
		t.Errorf("tiers = %+v, want one starter tier", cfg.Tiers)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
upstream:
  url: http://llm:9000/v1/chat/completions
  model: mistral-7b
webhook:
  secret: whsec_live
  retention: 720h
store:
  mode: memory
tiers:
  - id: basic
    name: Basic
    requests_per_month: 1000
    price_id: price_basic
  - id: enterprise
    name: Enterprise
    requests_per_month: -1
    price_id: price_ent
pools:
  basic: [key-b1, key-b2]
keys:
  key-preexisting: basic
schedule:
  reset_cron: "0 0 1 * *"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Webhook.Retention != 720*time.Hour {
		t.Errorf("retention = %v, want 720h", cfg.Webhook.Retention)
	}
	if len(cfg.Pools["basic"]) != 2 {
		t.Errorf("pools[basic] = %v, want 2 keys", cfg.Pools["basic"])
	}
	if cfg.Schedule.ResetCron != "0 0 1 * *" {
		t.Errorf("reset_cron = %q", cfg.Schedule.ResetCron)
	}

	tiers := cfg.TierList()
	if len(tiers) != 2 {
		t.Fatalf("TierList() = %d tiers, want 2", len(tiers))
	}
	if tiers[1].RequestsPerMonth != -1 {
		t.Errorf("enterprise limit = %d, want -1", tiers[1].RequestsPerMonth)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_SECRET", "whsec_from_env")

	cfg, err := Load(writeConfig(t, `
upstream:
  url: http://localhost:9000
webhook:
  secret: ${TEST_WEBHOOK_SECRET}
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Webhook.Secret != "whsec_from_env" {
		t.Errorf("webhook.secret = %q, want whsec_from_env", cfg.Webhook.Secret)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	t.Setenv("PROMPTGATE_SERVER_PORT", "7070")
	t.Setenv("PROMPTGATE_STORE_MODE", "memory")
	t.Setenv("PROMPTGATE_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, `
server:
  port: 8080
upstream:
  url: http://localhost:9000
webhook:
  secret: whsec_test
logging:
  level: warn
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070 (env override)", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug (env override)", cfg.Logging.Level)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing upstream url",
			yaml:    "webhook:\n  secret: whsec_test\n",
			wantErr: "upstream.url is required",
		},
		{
			name:    "missing webhook secret",
			yaml:    "upstream:\n  url: http://localhost:9000\n",
			wantErr: "webhook.secret is required",
		},
		{
			name:    "bad store mode",
			yaml:    minimalYAML + "store:\n  mode: postgres\n",
			wantErr: "store.mode",
		},
		{
			name:    "redis without url",
			yaml:    minimalYAML + "store:\n  mode: redis\n",
			wantErr: "store.redis_url is required",
		},
		{
			name:    "smtp without host",
			yaml:    minimalYAML + "email:\n  mode: smtp\n",
			wantErr: "email.host is required",
		},
		{
			name: "duplicate tier id",
			yaml: minimalYAML + `
tiers:
  - id: basic
    requests_per_month: 10
  - id: basic
    requests_per_month: 20
`,
			wantErr: "duplicate tier id",
		},
		{
			name: "price id mapped twice",
			yaml: minimalYAML + `
tiers:
  - id: basic
    requests_per_month: 10
    price_id: price_x
  - id: pro
    requests_per_month: 20
    price_id: price_x
`,
			wantErr: "mapped to more than one tier",
		},
		{
			name: "pool references unknown tier",
			yaml: minimalYAML + `
tiers:
  - id: basic
    requests_per_month: 10
pools:
  gold: [k1]
`,
			wantErr: "pools: unknown tier",
		},
		{
			name: "key references unknown tier",
			yaml: minimalYAML + `
tiers:
  - id: basic
    requests_per_month: 10
keys:
  key-x: gold
`,
			wantErr: "unknown tier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatalf("Load() error = nil, want containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() error = nil for missing file")
	}
}
