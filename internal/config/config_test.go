package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
opencti:
  url: http://opencti:8080
  token: test-token
connector:
  id: 6b2a67e8-1f0f-4f0a-9b0f-000000000001
alienvault:
  api_key: otx-key
`

func TestLoadMissingExplicitFileFallsBackToEnv(t *testing.T) {
	t.Setenv("OPENCTI_URL", "http://opencti:8080")
	t.Setenv("OPENCTI_TOKEN", "env-token")
	t.Setenv("CONNECTOR_ID", "6b2a67e8-1f0f-4f0a-9b0f-000000000002")
	t.Setenv("ALIENVAULT_API_KEY", "env-key")

	// The container sets CONFIG_PATH before any config file exists; the
	// environment alone has to be enough.
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.OpenCTI.Token != "env-token" {
		t.Errorf("unexpected token: %q", cfg.OpenCTI.Token)
	}
	if cfg.AlienVault.APIKey != "env-key" {
		t.Errorf("unexpected api key: %q", cfg.AlienVault.APIKey)
	}
	if cfg.AlienVault.BaseURL != defaultBaseURL {
		t.Errorf("expected default base url %q, got %q", defaultBaseURL, cfg.AlienVault.BaseURL)
	}
}

func TestLoadMinimalWithDefaults(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.OpenCTI.URL != "http://opencti:8080" {
		t.Errorf("unexpected opencti url: %q", cfg.OpenCTI.URL)
	}
	if cfg.Connector.Type != defaultConnectorType {
		t.Errorf("expected default connector type %q, got %q", defaultConnectorType, cfg.Connector.Type)
	}
	if cfg.Connector.Scope != defaultScope {
		t.Errorf("expected default scope %q, got %q", defaultScope, cfg.Connector.Scope)
	}
	if cfg.AlienVault.BaseURL != defaultBaseURL {
		t.Errorf("expected default base url %q, got %q", defaultBaseURL, cfg.AlienVault.BaseURL)
	}
	if cfg.AlienVault.TLP != defaultTLP {
		t.Errorf("expected default tlp %q, got %q", defaultTLP, cfg.AlienVault.TLP)
	}
	if cfg.AlienVault.IntervalSec != defaultIntervalSec {
		t.Errorf("expected default interval %d, got %d", defaultIntervalSec, cfg.AlienVault.IntervalSec)
	}
	if cfg.AlienVault.Interval() != time.Duration(defaultIntervalSec)*time.Second {
		t.Errorf("unexpected interval duration: %v", cfg.AlienVault.Interval())
	}
	if cfg.Metrics.Port != defaultMetricsPort {
		t.Errorf("expected default metrics port %q, got %q", defaultMetricsPort, cfg.Metrics.Port)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	t.Setenv("OPENCTI_URL", "http://override:8080")
	t.Setenv("CONNECTOR_CONFIDENCE_LEVEL", "80")
	t.Setenv("ALIENVAULT_GUESS_MALWARE", "true")
	t.Setenv("ALIENVAULT_INTERVAL_SEC", "600")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.OpenCTI.URL != "http://override:8080" {
		t.Errorf("expected env override for opencti url, got %q", cfg.OpenCTI.URL)
	}
	if cfg.Connector.ConfidenceLevel != 80 {
		t.Errorf("expected confidence 80, got %d", cfg.Connector.ConfidenceLevel)
	}
	if !cfg.AlienVault.GuessMalware {
		t.Error("expected guess_malware to be enabled via env")
	}
	if cfg.AlienVault.IntervalSec != 600 {
		t.Errorf("expected interval 600, got %d", cfg.AlienVault.IntervalSec)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		return Config{
			OpenCTI:   OpenCTIConfig{URL: "http://opencti:8080", Token: "tok"},
			Connector: ConnectorConfig{ID: "id", ConfidenceLevel: 50, LogLevel: "info"},
			AlienVault: AlienVaultConfig{
				APIKey:       "key",
				TLP:          "White",
				ReportStatus: "New",
				IntervalSec:  1800,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.OpenCTI.URL = "" }},
		{"missing token", func(c *Config) { c.OpenCTI.Token = "" }},
		{"missing connector id", func(c *Config) { c.Connector.ID = "" }},
		{"missing api key", func(c *Config) { c.AlienVault.APIKey = "" }},
		{"confidence out of range", func(c *Config) { c.Connector.ConfidenceLevel = 150 }},
		{"bad log level", func(c *Config) { c.Connector.LogLevel = "verbose" }},
		{"bad tlp", func(c *Config) { c.AlienVault.TLP = "Purple" }},
		{"bad report status", func(c *Config) { c.AlienVault.ReportStatus = "Done" }},
		{"zero interval", func(c *Config) { c.AlienVault.IntervalSec = 0 }},
		{"bad timestamp", func(c *Config) { c.AlienVault.PulseStartTimestamp = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("base config should validate, got: %v", err)
	}
}

func TestPulseStart(t *testing.T) {
	cfg := AlienVaultConfig{PulseStartTimestamp: "2020-01-01T00:00:00Z"}
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := cfg.PulseStart(); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	zoneless := AlienVaultConfig{PulseStartTimestamp: "2020-01-01T00:00:00"}
	if got := zoneless.PulseStart(); !got.Equal(want) {
		t.Errorf("expected %v for zoneless timestamp, got %v", want, got)
	}

	empty := AlienVaultConfig{}
	if !empty.PulseStart().IsZero() {
		t.Error("expected zero time for empty pulse_start_timestamp")
	}
}

func TestReportStatusCode(t *testing.T) {
	tests := []struct {
		status string
		want   int
	}{
		{"New", 0},
		{"In progress", 1},
		{"Analyzed", 2},
		{"Closed", 3},
	}

	for _, tt := range tests {
		cfg := AlienVaultConfig{ReportStatus: tt.status}
		if got := cfg.ReportStatusCode(); got != tt.want {
			t.Errorf("ReportStatusCode(%q) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := ConnectorConfig{LogLevel: tt.raw}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
