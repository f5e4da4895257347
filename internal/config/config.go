package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the immutable process-wide configuration, read once at startup
// from config.yml and environment variables. Environment variables take
// precedence over file values (OPENCTI_URL overrides opencti.url, and so on).
type Config struct {
	OpenCTI    OpenCTIConfig    `mapstructure:"opencti"`
	Connector  ConnectorConfig  `mapstructure:"connector"`
	AlienVault AlienVaultConfig `mapstructure:"alienvault"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// OpenCTIConfig holds the platform API endpoint and credentials.
type OpenCTIConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// ConnectorConfig identifies this connector instance to the platform.
type ConnectorConfig struct {
	ID                 string `mapstructure:"id"`
	Type               string `mapstructure:"type"`
	Name               string `mapstructure:"name"`
	Scope              string `mapstructure:"scope"`
	ConfidenceLevel    int    `mapstructure:"confidence_level"`
	UpdateExistingData bool   `mapstructure:"update_existing_data"`
	LogLevel           string `mapstructure:"log_level"`
}

// AlienVaultConfig holds the external feed endpoint, credentials and import
// policy (marking, report classification, polling period).
type AlienVaultConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	APIKey              string `mapstructure:"api_key"`
	TLP                 string `mapstructure:"tlp"`
	PulseStartTimestamp string `mapstructure:"pulse_start_timestamp"`
	ReportType          string `mapstructure:"report_type"`
	ReportStatus        string `mapstructure:"report_status"`
	GuessMalware        bool   `mapstructure:"guess_malware"`
	IntervalSec         int    `mapstructure:"interval_sec"`
}

// JournalConfig enables the optional PostgreSQL run journal when a database
// URL is provided.
type JournalConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// MetricsConfig holds the health/metrics HTTP listener settings.
type MetricsConfig struct {
	Port            string `mapstructure:"port"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout_seconds"`
}

const (
	defaultConnectorType = "EXTERNAL_IMPORT"
	defaultConnectorName = "AlienVault"
	defaultScope         = "alienvault"
	defaultLogLevel      = "info"
	defaultBaseURL       = "https://otx.alienvault.com"
	defaultTLP           = "White"
	defaultReportType    = "threat-report"
	defaultReportStatus  = "New"
	defaultIntervalSec   = 1800
	defaultMetricsPort   = "9095"
)

var validTLPs = map[string]bool{
	"white": true,
	"clear": true,
	"green": true,
	"amber": true,
	"red":   true,
}

// reportStatusCodes maps the platform's report workflow names to the numeric
// codes expected in x_opencti_report_status.
var reportStatusCodes = map[string]int{
	"new":         0,
	"in progress": 1,
	"analyzed":    2,
	"closed":      3,
}

// Load reads configuration from the given YAML file (or the default search
// paths when path is empty) and the environment, applies defaults, and
// validates the result.
func Load(path string) (Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/opt/connector")
	}

	setDefaults(v)

	// Dots map to underscores so opencti.url binds to OPENCTI_URL, matching
	// the key scheme the platform documents for its connectors.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		// No file is fine: everything can come from the environment.
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
	// Required keys default to empty strings so viper knows about them and
	// can bind their environment variables.
	v.SetDefault("opencti.url", "")
	v.SetDefault("opencti.token", "")
	v.SetDefault("connector.id", "")
	v.SetDefault("connector.type", defaultConnectorType)
	v.SetDefault("connector.name", defaultConnectorName)
	v.SetDefault("connector.scope", defaultScope)
	v.SetDefault("connector.confidence_level", 50)
	v.SetDefault("connector.update_existing_data", false)
	v.SetDefault("connector.log_level", defaultLogLevel)
	v.SetDefault("alienvault.base_url", defaultBaseURL)
	v.SetDefault("alienvault.api_key", "")
	v.SetDefault("alienvault.tlp", defaultTLP)
	v.SetDefault("alienvault.pulse_start_timestamp", "")
	v.SetDefault("alienvault.report_type", defaultReportType)
	v.SetDefault("alienvault.report_status", defaultReportStatus)
	v.SetDefault("alienvault.guess_malware", false)
	v.SetDefault("alienvault.interval_sec", defaultIntervalSec)
	v.SetDefault("journal.database_url", "")
	v.SetDefault("metrics.port", defaultMetricsPort)
	v.SetDefault("metrics.shutdown_timeout_seconds", 5)
}

// Validate checks required fields and value domains. A configuration that
// fails validation must not be used.
func (c Config) Validate() error {
	if c.OpenCTI.URL == "" {
		return fmt.Errorf("opencti.url is required")
	}
	if c.OpenCTI.Token == "" {
		return fmt.Errorf("opencti.token is required")
	}
	if c.Connector.ID == "" {
		return fmt.Errorf("connector.id is required")
	}
	if c.AlienVault.APIKey == "" {
		return fmt.Errorf("alienvault.api_key is required")
	}
	if c.Connector.ConfidenceLevel < 0 || c.Connector.ConfidenceLevel > 100 {
		return fmt.Errorf("connector.confidence_level must be between 0 and 100, got %d", c.Connector.ConfidenceLevel)
	}
	if _, err := parseLogLevel(c.Connector.LogLevel); err != nil {
		return fmt.Errorf("invalid connector.log_level: %w", err)
	}
	if !validTLPs[strings.ToLower(c.AlienVault.TLP)] {
		return fmt.Errorf("invalid alienvault.tlp %q: must be one of White, Clear, Green, Amber, Red", c.AlienVault.TLP)
	}
	if _, ok := reportStatusCodes[strings.ToLower(c.AlienVault.ReportStatus)]; !ok {
		return fmt.Errorf("invalid alienvault.report_status %q: must be one of New, In progress, Analyzed, Closed", c.AlienVault.ReportStatus)
	}
	if c.AlienVault.IntervalSec <= 0 {
		return fmt.Errorf("alienvault.interval_sec must be positive, got %d", c.AlienVault.IntervalSec)
	}
	if c.AlienVault.PulseStartTimestamp != "" {
		if _, err := parsePulseTimestamp(c.AlienVault.PulseStartTimestamp); err != nil {
			return fmt.Errorf("invalid alienvault.pulse_start_timestamp: %w", err)
		}
	}
	return nil
}

// SlogLevel converts the configured log level to an slog level.
func (c ConnectorConfig) SlogLevel() slog.Level {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// Interval returns the polling period.
func (c AlienVaultConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// PulseStart returns the configured lower bound for imported pulses, or the
// zero time when none is set.
func (c AlienVaultConfig) PulseStart() time.Time {
	if c.PulseStartTimestamp == "" {
		return time.Time{}
	}
	t, err := parsePulseTimestamp(c.PulseStartTimestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parsePulseTimestamp accepts RFC 3339 and the feed's zoneless variant,
// which is read as UTC.
func parsePulseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", raw)
}

// ReportStatusCode returns the numeric workflow code for the configured
// report status.
func (c AlienVaultConfig) ReportStatusCode() int {
	return reportStatusCodes[strings.ToLower(c.ReportStatus)]
}

// ShutdownTimeoutDuration returns the HTTP shutdown grace period.
func (c MetricsConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
