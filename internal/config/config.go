// Package config loads and validates pagewatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pagewatch/internal/detector"
	"github.com/JakeFAU/pagewatch/internal/logging"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/scheduler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	Logging   logging.Config  `mapstructure:"logging"`

	// Warnings lists values that were corrected during loading.
	Warnings []string `mapstructure:"-"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSecs   int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SchedulerConfig controls when checks are enqueued.
type SchedulerConfig struct {
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	Cron            string `mapstructure:"cron"`
	RunOnStart      bool   `mapstructure:"run_on_start"`
}

// WorkerConfig sizes the worker pool and queue.
type WorkerConfig struct {
	Concurrency         int  `mapstructure:"concurrency"`
	QueueDepth          int  `mapstructure:"queue_depth"`
	FetchTimeoutSeconds int  `mapstructure:"fetch_timeout_seconds"`
	Screenshots         bool `mapstructure:"screenshots"`
}

// RetryConfig configures exponential backoff between attempts.
type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	BaseDelayMs int     `mapstructure:"base_delay_ms"`
	Multiplier  float64 `mapstructure:"multiplier"`
	MaxDelayMs  int     `mapstructure:"max_delay_ms"`
}

// RateLimitConfig configures the dispatch limiter.
type RateLimitConfig struct {
	GlobalRPS    float64 `mapstructure:"global_rps"`
	GlobalBurst  int     `mapstructure:"global_burst"`
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
}

// FetcherConfig configures the static fetcher.
type FetcherConfig struct {
	UserAgent     string `mapstructure:"user_agent"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// DetectorConfig tunes classification.
type DetectorConfig struct {
	Threshold       float64             `mapstructure:"threshold"`
	MaxCompareRunes int                 `mapstructure:"max_compare_runes"`
	NewSignalsOnly  bool                `mapstructure:"new_signals_only"`
	Keywords        detector.KeywordSet `mapstructure:"keywords"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	Migrate                bool   `mapstructure:"migrate"`
}

// BlobConfig selects where screenshots are written.
type BlobConfig struct {
	Driver    string `mapstructure:"driver"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig configures the alert channels.
type NotifyConfig struct {
	Channels           []string `mapstructure:"channels"`
	MinPriority        string   `mapstructure:"min_priority"`
	RateLimit          int      `mapstructure:"rate_limit"`
	RateWindowSeconds  int      `mapstructure:"rate_window_seconds"`
	DedupWindowSeconds int      `mapstructure:"dedup_window_seconds"`
	BufferSize         int      `mapstructure:"buffer_size"`
	SendTimeoutSeconds int      `mapstructure:"send_timeout_seconds"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SettingsConfig configures the runtime settings cache.
type SettingsConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEWATCH")
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

	cfg.correct()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("scheduler.interval_minutes", scheduler.DefaultIntervalMinutes)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.fetch_timeout_seconds", 30)
	v.SetDefault("worker.screenshots", false)
	v.SetDefault("retry.max_attempts", monitor.DefaultMaxAttempts)
	v.SetDefault("retry.base_delay_ms", int(monitor.DefaultBaseDelay/time.Millisecond))
	v.SetDefault("retry.multiplier", monitor.DefaultMultiplier)
	v.SetDefault("rate_limit.global_rps", 1.0)
	v.SetDefault("rate_limit.global_burst", 1)
	v.SetDefault("fetcher.user_agent", "pagewatch/0.1")
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("blob.driver", "memory")
	v.SetDefault("blob.local_dir", "data")
	v.SetDefault("blob.prefix", "pagewatch")
	v.SetDefault("notify.channels", []string{"log"})
	v.SetDefault("notify.min_priority", string(monitor.PriorityInfo))
	v.SetDefault("notify.dedup_window_seconds", 300)
	v.SetDefault("notify.rate_window_seconds", 3600)
	v.SetDefault("notify.buffer_size", 256)
	v.SetDefault("notify.send_timeout_seconds", 30)
	v.SetDefault("settings.ttl_seconds", 60)
	v.SetDefault("logging.development", true)
}

// correct replaces out-of-range soft settings with defaults and records a
// warning for each.
func (c *Config) correct() {
	if minutes, ok := scheduler.ValidateInterval(c.Scheduler.IntervalMinutes); !ok {
		c.warnf("scheduler.interval_minutes %d outside %d..%d, using %d",
			c.Scheduler.IntervalMinutes, scheduler.MinIntervalMinutes, scheduler.MaxIntervalMinutes, minutes)
		c.Scheduler.IntervalMinutes = minutes
	}
	if c.RateLimit.GlobalRPS <= 0 {
		c.warnf("rate_limit.global_rps %v must be > 0, using 1", c.RateLimit.GlobalRPS)
		c.RateLimit.GlobalRPS = 1
	}
	if _, ok := monitor.ParsePriority(c.Notify.MinPriority); !ok {
		c.warnf("notify.min_priority %q unknown, using %s", c.Notify.MinPriority, monitor.PriorityInfo)
		c.Notify.MinPriority = string(monitor.PriorityInfo)
	}
	if c.Detector.Threshold < 0 || c.Detector.Threshold > 1 {
		c.warnf("detector.threshold %v outside 0..1, using default", c.Detector.Threshold)
		c.Detector.Threshold = 0
	}
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("worker.fetch_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q not supported", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "memory", "local":
	case "gcs":
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket must be set for the gcs driver")
		}
	default:
		return fmt.Errorf("blob.driver %q not supported", c.Blob.Driver)
	}
	for _, ch := range c.Notify.Channels {
		switch ch {
		case "log", "memory":
		case "pubsub":
			if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
				return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the pubsub channel")
			}
		default:
			return fmt.Errorf("notify channel %q not supported", ch)
		}
	}
	return nil
}

// FetchTimeout returns the per-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Worker.FetchTimeoutSeconds) * time.Second
}

// RetryPolicy converts the retry section into a monitor.RetryPolicy.
func (c Config) RetryPolicy() monitor.RetryPolicy {
	return monitor.NewRetryPolicy(
		c.Retry.MaxAttempts,
		time.Duration(c.Retry.BaseDelayMs)*time.Millisecond,
		c.Retry.Multiplier,
		time.Duration(c.Retry.MaxDelayMs)*time.Millisecond,
	)
}

// Seconds converts a seconds knob into a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
