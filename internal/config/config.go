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
	Server    ServerConfig    `mapstructure:"server"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the query API HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetcherConfig governs HTTP fetch retry and pacing behavior.
type FetcherConfig struct {
	MaxAttempts    int    `mapstructure:"max_attempts"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	DelaySeconds   int    `mapstructure:"delay_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// Source identifies one seed page to crawl. Index sources are crawled one
// hop through their relevant links; document sources are extracted directly.
type Source struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
	Type string `mapstructure:"type"`
}

// CrawlerConfig lists seed sources and bounds link fan-out.
type CrawlerConfig struct {
	Sources           []Source `mapstructure:"sources"`
	MaxLinksPerSource int      `mapstructure:"max_links_per_source"`
	FetchConcurrency  int      `mapstructure:"fetch_concurrency"`
}

// PipelineConfig tunes the dedup/upsert decision engine.
type PipelineConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MinContentLength    int     `mapstructure:"min_content_length"`
}

// SummaryConfig configures the external summarization service.
type SummaryConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects the raw-HTML archive provider.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // "gcs", "fs" or "noop"
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PublisherConfig selects the session-event publisher provider.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"` // "pubsub" or "memory"
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// SchedulerConfig sets the daily crawl trigger.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Hour    int  `mapstructure:"hour"`
	Minute  int  `mapstructure:"minute"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEXHARVEST")
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
	v.SetDefault("fetcher.max_attempts", 3)
	v.SetDefault("fetcher.timeout_seconds", 30)
	v.SetDefault("fetcher.delay_seconds", 2)
	v.SetDefault("fetcher.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("crawler.max_links_per_source", 20)
	v.SetDefault("crawler.fetch_concurrency", 1)
	v.SetDefault("crawler.sources", defaultSources())
	v.SetDefault("pipeline.similarity_threshold", 0.85)
	v.SetDefault("pipeline.min_content_length", 100)
	v.SetDefault("summary.model", "llama-3.1-8b-instant")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("publisher.provider", "memory")
	v.SetDefault("publisher.topic", "crawl-sessions")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.hour", 2)
	v.SetDefault("scheduler.minute", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

func defaultSources() []map[string]string {
	return []map[string]string{
		{"name": "Ministry of Labour - Acts", "url": "https://labour.gov.in/acts", "type": "index"},
		{"name": "Ministry of Labour - Rules", "url": "https://labour.gov.in/rules", "type": "index"},
		{"name": "Ministry of Labour - Whats New", "url": "https://labour.gov.in/whatsnew", "type": "index"},
		{"name": "Labour Codes", "url": "https://labour.gov.in/labour-codes", "type": "index"},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetcher.MaxAttempts <= 0 {
		return fmt.Errorf("fetcher.max_attempts must be > 0")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Crawler.FetchConcurrency <= 0 {
		return fmt.Errorf("crawler.fetch_concurrency must be > 0")
	}
	if c.Pipeline.SimilarityThreshold <= 0 || c.Pipeline.SimilarityThreshold > 1 {
		return fmt.Errorf("pipeline.similarity_threshold must be in (0, 1]")
	}
	if c.Pipeline.MinContentLength <= 0 {
		return fmt.Errorf("pipeline.min_content_length must be > 0")
	}
	for _, s := range c.Crawler.Sources {
		if s.Type != "index" && s.Type != "document" {
			return fmt.Errorf("source %q has invalid type %q", s.Name, s.Type)
		}
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if c.Archive.Provider == "fs" && c.Archive.LocalDir == "" {
		return fmt.Errorf("archive.local_dir must be set when archive.provider is fs")
	}
	if c.Publisher.Provider == "pubsub" && c.Publisher.ProjectID == "" {
		return fmt.Errorf("publisher.project_id must be set when publisher.provider is pubsub")
	}
	if c.Scheduler.Hour < 0 || c.Scheduler.Hour > 23 {
		return fmt.Errorf("scheduler.hour must be in [0, 23]")
	}
	if c.Scheduler.Minute < 0 || c.Scheduler.Minute > 59 {
		return fmt.Errorf("scheduler.minute must be in [0, 59]")
	}
	return nil
}

// FetchTimeout returns the per-request timeout as a duration.
func (f FetcherConfig) FetchTimeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// FetchDelay returns the per-host rate limit delay as a duration.
func (f FetcherConfig) FetchDelay() time.Duration {
	return time.Duration(f.DelaySeconds) * time.Second
}
