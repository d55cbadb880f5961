// Package config provides configuration for the dashboard from environment
// variables and an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GetEnv returns the value of key from the environment, or defaultValue if unset or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

// GetEnvDuration returns the duration for key, or defaultValue if unset/invalid.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetEnvInt returns the integer for key, or defaultValue if unset/invalid.
func GetEnvInt(key string, defaultValue int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultValue
	}
	return n
}

// DashboardConfig holds all settings for the dashboard process.
type DashboardConfig struct {
	AnalyticsEndpoint string
	AnalyticsTimeout  time.Duration

	HTTPAddr        string
	ShutdownTimeout time.Duration

	SummaryInterval         time.Duration
	HealthInterval          time.Duration
	NosyAdminInterval       time.Duration
	LiveEventsInterval      time.Duration
	ModelMetricsInterval    time.Duration
	ModelROCInterval        time.Duration
	DormantAccountsInterval time.Duration
	APTInterval             time.Duration

	EnrichMaxConcurrent int

	LogLevel   string
	ConfigFile string
}

// DefaultDashboardConfig returns dashboard config from environment with defaults.
func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		AnalyticsEndpoint: GetEnv("ANALYTICS_ENDPOINT", "http://localhost:8000"),
		AnalyticsTimeout:  GetEnvDuration("ANALYTICS_TIMEOUT", 10*time.Second),

		HTTPAddr:        GetEnv("HTTP_ADDR", ":8090"),
		ShutdownTimeout: GetEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		SummaryInterval:         GetEnvDuration("SUMMARY_INTERVAL", 10*time.Second),
		HealthInterval:          GetEnvDuration("HEALTH_INTERVAL", 10*time.Second),
		NosyAdminInterval:       GetEnvDuration("NOSY_ADMIN_INTERVAL", 10*time.Second),
		LiveEventsInterval:      GetEnvDuration("LIVE_EVENTS_INTERVAL", 5*time.Second),
		ModelMetricsInterval:    GetEnvDuration("MODEL_METRICS_INTERVAL", 30*time.Second),
		ModelROCInterval:        GetEnvDuration("MODEL_ROC_INTERVAL", 30*time.Second),
		DormantAccountsInterval: GetEnvDuration("DORMANT_ACCOUNTS_INTERVAL", 30*time.Second),
		APTInterval:             GetEnvDuration("APT_INTERVAL", 30*time.Second),

		EnrichMaxConcurrent: GetEnvInt("ENRICH_MAX_CONCURRENT", 8),

		LogLevel:   GetEnv("LOG_LEVEL", "info"),
		ConfigFile: GetEnv("DASHBOARD_CONFIG_FILE", ""),
	}
}

// FileConfig is the optional YAML overlay. Intervals are in seconds; zero
// values leave the environment-derived setting untouched.
type FileConfig struct {
	Analytics struct {
		Endpoint       string `yaml:"endpoint"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"analytics"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Polling struct {
		SummarySeconds         int `yaml:"summary_seconds"`
		HealthSeconds          int `yaml:"health_seconds"`
		NosyAdminSeconds       int `yaml:"nosy_admin_seconds"`
		LiveEventsSeconds      int `yaml:"live_events_seconds"`
		ModelMetricsSeconds    int `yaml:"model_metrics_seconds"`
		ModelROCSeconds        int `yaml:"model_roc_seconds"`
		DormantAccountsSeconds int `yaml:"dormant_accounts_seconds"`
		APTSeconds             int `yaml:"apt_seconds"`
	} `yaml:"polling"`
	Enrichment struct {
		MaxConcurrent int `yaml:"max_concurrent"`
	} `yaml:"enrichment"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadFile reads the YAML overlay from path.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// Apply merges the non-zero overlay values into cfg.
func (fc *FileConfig) Apply(cfg *DashboardConfig) {
	if fc.Analytics.Endpoint != "" {
		cfg.AnalyticsEndpoint = fc.Analytics.Endpoint
	}
	if fc.Analytics.TimeoutSeconds > 0 {
		cfg.AnalyticsTimeout = time.Duration(fc.Analytics.TimeoutSeconds) * time.Second
	}
	if fc.Server.Addr != "" {
		cfg.HTTPAddr = fc.Server.Addr
	}
	applySeconds := func(dst *time.Duration, seconds int) {
		if seconds > 0 {
			*dst = time.Duration(seconds) * time.Second
		}
	}
	applySeconds(&cfg.SummaryInterval, fc.Polling.SummarySeconds)
	applySeconds(&cfg.HealthInterval, fc.Polling.HealthSeconds)
	applySeconds(&cfg.NosyAdminInterval, fc.Polling.NosyAdminSeconds)
	applySeconds(&cfg.LiveEventsInterval, fc.Polling.LiveEventsSeconds)
	applySeconds(&cfg.ModelMetricsInterval, fc.Polling.ModelMetricsSeconds)
	applySeconds(&cfg.ModelROCInterval, fc.Polling.ModelROCSeconds)
	applySeconds(&cfg.DormantAccountsInterval, fc.Polling.DormantAccountsSeconds)
	applySeconds(&cfg.APTInterval, fc.Polling.APTSeconds)
	if fc.Enrichment.MaxConcurrent > 0 {
		cfg.EnrichMaxConcurrent = fc.Enrichment.MaxConcurrent
	}
	if fc.Logging.Level != "" {
		cfg.LogLevel = fc.Logging.Level
	}
}

// Load builds the dashboard config from environment, applying the YAML
// overlay when DASHBOARD_CONFIG_FILE points at one.
func Load() (DashboardConfig, error) {
	cfg := DefaultDashboardConfig()
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	fc, err := LoadFile(cfg.ConfigFile)
	if err != nil {
		return cfg, err
	}
	fc.Apply(&cfg)
	return cfg, nil
}
