// Package config loads and validates analyzer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Render    RenderConfig    `mapstructure:"render"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	DB        DBConfig        `mapstructure:"db"`
	Email     EmailConfig     `mapstructure:"email"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                 int `mapstructure:"port"`
	RequestTimeoutSec    int `mapstructure:"request_timeout_seconds"`
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
}

// AuthConfig gates the administrative endpoints.
type AuthConfig struct {
	AdminToken string `mapstructure:"admin_token"`
}

// QueueConfig governs admission and retry behavior.
type QueueConfig struct {
	MaxRetries         int `mapstructure:"max_retries"`
	RetryBackoffSec    int `mapstructure:"retry_backoff_seconds"`
	StatusCacheSize    int `mapstructure:"status_cache_size"`
	ReconcileMaxAgeHrs int `mapstructure:"reconcile_max_age_hours"`
	PersistTimeoutSec  int `mapstructure:"persist_timeout_seconds"`
}

// PipelineConfig controls report output placement.
type PipelineConfig struct {
	OutputRoot string `mapstructure:"output_root"`
}

// CrawlConfig governs the site-audit crawl.
type CrawlConfig struct {
	UserAgent       string `mapstructure:"user_agent"`
	MaxPages        int    `mapstructure:"max_pages"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	RenderThreshold int    `mapstructure:"render_threshold"`
}

// RenderConfig configures the headless rendering fallback.
type RenderConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	DomainQPS      float64 `mapstructure:"domain_qps"`
}

// OpenAIConfig selects the scoring model.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// DBConfig controls the durable mirror. Driver is "memory" or "postgres".
type DBConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	ScratchTable    string `mapstructure:"scratch_table"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// EmailConfig controls completion notifications via SES.
type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	FromAddress string `mapstructure:"from_address"`
	ReplyTo     string `mapstructure:"reply_to"`
	Region      string `mapstructure:"region"`
}

// PubSubConfig holds metadata for terminal-event publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ArchiveConfig controls report archival to GCS.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ReconcileConfig bounds the durable-store scan.
type ReconcileConfig struct {
	LookbackHours int `mapstructure:"lookback_hours"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYZER")
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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_grace_seconds", 120)
	v.SetDefault("queue.max_retries", 2)
	v.SetDefault("queue.retry_backoff_seconds", 5)
	v.SetDefault("queue.status_cache_size", 4096)
	v.SetDefault("queue.reconcile_max_age_hours", 24)
	v.SetDefault("queue.persist_timeout_seconds", 10)
	v.SetDefault("pipeline.output_root", "reports")
	v.SetDefault("crawl.user_agent", "searchpulse-auditor/1.0")
	v.SetDefault("crawl.max_pages", 25)
	v.SetDefault("crawl.timeout_seconds", 30)
	v.SetDefault("crawl.render_threshold", 2048)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_concurrency", 1)
	v.SetDefault("render.timeout_seconds", 45)
	v.SetDefault("render.domain_qps", 1.0)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 2048)
	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.table", "analyses")
	v.SetDefault("db.scratch_table", "scratch_pages")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("archive.prefix", "reports")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("reconcile.lookback_hours", 24)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must be >= 0")
	}
	if c.Pipeline.OutputRoot == "" {
		return fmt.Errorf("pipeline.output_root is required")
	}
	switch c.DB.Driver {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is postgres")
		}
	default:
		return fmt.Errorf("db.driver must be memory or postgres")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.Email.Enabled && c.Email.FromAddress == "" {
		return fmt.Errorf("email.from_address is required when email is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicID == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_id are required when pubsub is enabled")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive is enabled")
	}
	if c.Render.Enabled && c.Render.MaxConcurrency <= 0 {
		return fmt.Errorf("render.max_concurrency must be > 0 when render is enabled")
	}
	return nil
}

// RequestTimeout converts the configured request budget to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// ShutdownGrace converts the configured drain budget to a duration.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Server.ShutdownGraceSeconds) * time.Second
}
