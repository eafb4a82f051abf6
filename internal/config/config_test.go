package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults should load without a config file: %v", err)
	}

	if cfg.Scheduler.Interval != 30*time.Minute {
		t.Fatalf("expected 30m interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Watchlist.BenchmarkSymbol != "QQQ" {
		t.Fatalf("expected QQQ benchmark, got %s", cfg.Watchlist.BenchmarkSymbol)
	}
	if len(cfg.Watchlist.Symbols) == 0 {
		t.Fatal("default watchlist must not be empty")
	}
	if cfg.Alerting.Enabled {
		t.Fatal("alerting should be off by default")
	}
	if cfg.Alerting.Cooldown != 60*time.Minute {
		t.Fatalf("expected 60m cooldown, got %s", cfg.Alerting.Cooldown)
	}
	if cfg.Alerting.MinPriceForAlert != 5.0 || cfg.Alerting.MinAbsoluteMove != 0.50 {
		t.Fatalf("unexpected alert floors: %+v", cfg.Alerting)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
scheduler:
  interval: 5m
watchlist:
  symbols: ["AAPL", "QQQ"]
  benchmark_symbol: QQQ
alerting:
  enabled: true
  cooldown: 15m
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config file: %v", err)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("expected 5m interval, got %s", cfg.Scheduler.Interval)
	}
	if len(cfg.Watchlist.Symbols) != 2 {
		t.Fatalf("expected two symbols, got %v", cfg.Watchlist.Symbols)
	}
	if !cfg.Alerting.Enabled || cfg.Alerting.Cooldown != 15*time.Minute {
		t.Fatalf("alerting overrides not applied: %+v", cfg.Alerting)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("NASDAQWATCHER_WATCHLIST_BENCHMARK_SYMBOL", "NDX")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load with env override: %v", err)
	}
	if cfg.Watchlist.BenchmarkSymbol != "NDX" {
		t.Fatalf("env override not applied, got %s", cfg.Watchlist.BenchmarkSymbol)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("load defaults: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"empty watchlist", func(c *Config) { c.Watchlist.Symbols = nil }},
		{"missing benchmark", func(c *Config) { c.Watchlist.BenchmarkSymbol = "" }},
		{"negative threshold", func(c *Config) { c.Alerting.DropThresholdPct = -1 }},
		{"negative cooldown", func(c *Config) { c.Alerting.Cooldown = -time.Minute }},
		{"telegram without token", func(c *Config) { c.Alerting.Telegram.Enabled = true }},
		{"email without host", func(c *Config) { c.Alerting.Email.Enabled = true }},
		{"zero export cap", func(c *Config) { c.Export.MaxDataPoints = 0 }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation failure", tc.name)
		}
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 1000}}
	if got := cfg.ResolveMaxPoints(0); got != 1000 {
		t.Fatalf("expected config default, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(50); got != 50 {
		t.Fatalf("expected override, got %d", got)
	}
}
