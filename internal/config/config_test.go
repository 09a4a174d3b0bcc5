package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Rules.VelocityMaxTransactions != 3 || cfg.Rules.HighAmountThreshold != 1000 {
		t.Errorf("expected default rule settings, got %+v", cfg.Rules)
	}
	if cfg.State.Backend != "memory" || cfg.EventBus.Type != "channel" {
		t.Errorf("unexpected backends: %s/%s", cfg.State.Backend, cfg.EventBus.Type)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creditguard.toml")
	content := `
[server]
port = 9100
allowed_origins = ["https://dashboard.example.com"]

[rules]
velocity_max_transactions = 5
high_amount_threshold = 2500.0

[[rules.custom]]
name = "Gift Card Rule"
expression = 'merchant == "Gift Cards" && amount >= 200.0'
reason = "Large gift card purchase"
weight = 20

[state]
idle_ttl = "2h"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://dashboard.example.com" {
		t.Errorf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Rules.VelocityMaxTransactions != 5 || cfg.Rules.HighAmountThreshold != 2500 {
		t.Errorf("rule overrides not applied: %+v", cfg.Rules)
	}
	// Untouched keys keep their defaults.
	if cfg.Rules.VelocityWeight != 50 {
		t.Errorf("expected default velocity weight, got %d", cfg.Rules.VelocityWeight)
	}
	if len(cfg.Rules.Custom) != 1 || cfg.Rules.Custom[0].Weight != 20 {
		t.Errorf("custom rule not loaded: %+v", cfg.Rules.Custom)
	}
	if cfg.State.IdleTTL != 2*time.Hour {
		t.Errorf("expected idle ttl 2h, got %s", cfg.State.IdleTTL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CREDITGUARD_PORT", "9200")
	t.Setenv("CREDITGUARD_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("CREDITGUARD_STATE_BACKEND", "redis")
	t.Setenv("CREDITGUARD_REDIS_ADDR", "redis:6379")
	t.Setenv("CREDITGUARD_VELOCITY_WINDOW_MINUTES", "15")
	t.Setenv("CREDITGUARD_HISTORY_ENABLED", "false")
	t.Setenv("CREDITGUARD_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("expected port 9200, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.State.Backend != "redis" || cfg.State.RedisAddr != "redis:6379" {
		t.Errorf("unexpected state config: %+v", cfg.State)
	}
	if cfg.Rules.VelocityWindow() != 15*time.Minute {
		t.Errorf("expected 15m window, got %s", cfg.Rules.VelocityWindow())
	}
	if cfg.History.Enabled {
		t.Error("expected history disabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadEnvParseError(t *testing.T) {
	t.Setenv("CREDITGUARD_PORT", "eighty")

	_, err := Load("")
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "CREDITGUARD_PORT") {
		t.Errorf("expected error to name the variable, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *domain.Config)
	}{
		{"bad port", func(c *domain.Config) { c.Server.Port = 0 }},
		{"negative weight", func(c *domain.Config) { c.Rules.VelocityWeight = -1 }},
		{"zero speed", func(c *domain.Config) { c.Rules.MaxTravelSpeedMph = 0 }},
		{"inverted hours", func(c *domain.Config) { c.Rules.UnusualTimeStartHour = 5; c.Rules.UnusualTimeEndHour = 1 }},
		{"unknown backend", func(c *domain.Config) { c.State.Backend = "etcd" }},
		{"fewer users than shards", func(c *domain.Config) { c.State.Shards = 64; c.State.MaxUsers = 10 }},
		{"ttl below window", func(c *domain.Config) { c.State.IdleTTL = time.Minute }},
		{"unknown bus", func(c *domain.Config) { c.EventBus.Type = "kafka" }},
		{"bad log level", func(c *domain.Config) { c.Logging.Level = "verbose" }},
		{"custom without expression", func(c *domain.Config) {
			c.Rules.Custom = []domain.CustomRuleConfig{{Name: "x", Weight: 1}}
		}},
	}

	if err := Validate(domain.DefaultConfig()); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "user_id", "user-001")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, `"user_id":"user-001"`) {
		t.Errorf("expected JSON output, got %s", out)
	}
}
