// Package config loads and validates pagewatch runtime settings via Viper.
// Settings tune transports, storage, notifications and metrics; the watch
// rules themselves live in the JSON file handled by package rules.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. PAGEWATCH_HTTP_TIMEOUT_SECONDS.
const EnvPrefix = "PAGEWATCH"

// Config captures all runtime knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the colly transport.
type HTTPConfig struct {
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	UserAgent      string            `mapstructure:"user_agent"`
	RespectRobots  bool              `mapstructure:"respect_robots"`
	Headers        map[string]string `mapstructure:"headers"`
	// PerHostRPS paces requests to each host; zero disables pacing.
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
}

// HeadlessConfig configures the chromedp transport. With AutoPromote only
// pages that look script-rendered are refetched headlessly.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	AutoPromote   bool `mapstructure:"auto_promote"`
	MinBodyBytes  int  `mapstructure:"min_body_bytes"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	// WaitSelector must be ready before the rendered DOM is captured.
	WaitSelector string `mapstructure:"wait_selector"`
	SettleMillis int    `mapstructure:"settle_ms"`
}

// StorageConfig tunes the table-backed snapshot backends.
type StorageConfig struct {
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig enables the publish action.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig selects where run metrics are exported.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
	PushGateway  string `mapstructure:"push_gateway"`
	JobName      string `mapstructure:"job_name"`
}

// Load builds a Config from an optional settings file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are plain scalars, so decoding cannot fail.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "pagewatch/1.0")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.per_host_rps", 0)
	v.SetDefault("http.per_host_burst", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.auto_promote", false)
	v.SetDefault("headless.min_body_bytes", 2048)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.wait_selector", "body")
	v.SetDefault("headless.settle_ms", 500)
	v.SetDefault("storage.table", "pagewatch_snapshots")
	v.SetDefault("metrics.job_name", "pagewatch")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.PerHostRPS < 0 {
		return fmt.Errorf("http.per_host_rps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	if c.Headless.SettleMillis < 0 {
		return fmt.Errorf("headless.settle_ms must be >= 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// Timeout is the per-request HTTP timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Header converts the configured extra headers.
func (c HTTPConfig) Header() http.Header {
	if len(c.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	return h
}

// NavTimeout is the headless navigation timeout.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// Settle is the pause between the wait selector being ready and DOM capture.
func (c HeadlessConfig) Settle() time.Duration {
	return time.Duration(c.SettleMillis) * time.Millisecond
}
