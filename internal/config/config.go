// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Browser BrowserConfig `mapstructure:"browser"`
	Tiers   TiersConfig   `mapstructure:"tiers"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	PreviewTimeoutSeconds int `mapstructure:"preview_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs job admission and dispatch.
type CrawlerConfig struct {
	// Concurrency is the number of jobs crawled in parallel.
	Concurrency int `mapstructure:"concurrency"`
	// MaxPagesDefault applies when a request carries no page budget.
	MaxPagesDefault int `mapstructure:"max_pages_default"`
	// PreviewLimit is the fixed budget for preview crawls.
	PreviewLimit int `mapstructure:"preview_limit"`
	// QueueDepth bounds the pending-job queue.
	QueueDepth int `mapstructure:"queue_depth"`
}

// BrowserConfig configures the per-job headless session pool.
type BrowserConfig struct {
	PoolSize               int     `mapstructure:"pool_size"`
	UserAgent              string  `mapstructure:"user_agent"`
	ViewportWidth          int     `mapstructure:"viewport_width"`
	ViewportHeight         int     `mapstructure:"viewport_height"`
	NavTimeoutSeconds      int     `mapstructure:"nav_timeout_seconds"`
	DiscoverTimeoutSeconds int     `mapstructure:"discover_timeout_seconds"`
	SettleDelayMs          int     `mapstructure:"settle_delay_ms"`
	NavPerSecond           float64 `mapstructure:"nav_per_second"`
	// ProbeThreshold is the body size under which high script density
	// promotes a probed page to a rendering session.
	ProbeThreshold int `mapstructure:"probe_threshold"`
}

// TiersConfig maps plan tiers to their page ceilings.
type TiersConfig struct {
	Free       int `mapstructure:"free"`
	Pro        int `mapstructure:"pro"`
	Enterprise int `mapstructure:"enterprise"`
}

// StorageConfig selects and parameterizes the artifact store.
type StorageConfig struct {
	// Backend is one of "memory", "local", or "gcs".
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory job store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEMAPPER")
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
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.preview_timeout_seconds", 120)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.max_pages_default", 10)
	v.SetDefault("crawler.preview_limit", 5)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("browser.pool_size", 5)
	v.SetDefault("browser.user_agent", "sitemapper-bot/0.1")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.discover_timeout_seconds", 20)
	v.SetDefault("browser.settle_delay_ms", 1000)
	v.SetDefault("browser.nav_per_second", 4.0)
	v.SetDefault("browser.probe_threshold", 2048)
	v.SetDefault("tiers.free", 5)
	v.SetDefault("tiers.pro", 25)
	v.SetDefault("tiers.enterprise", 150)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.PreviewLimit <= 0 {
		return fmt.Errorf("crawler.preview_limit must be > 0")
	}
	if c.Browser.PoolSize <= 0 {
		return fmt.Errorf("browser.pool_size must be > 0")
	}
	if c.Tiers.Free <= 0 || c.Tiers.Pro <= 0 || c.Tiers.Enterprise <= 0 {
		return fmt.Errorf("tiers must all be > 0")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// RequestTimeout returns the ordinary request deadline as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// PreviewTimeout returns the synchronous preview deadline as a duration.
func (c Config) PreviewTimeout() time.Duration {
	return time.Duration(c.Server.PreviewTimeoutSeconds) * time.Second
}
