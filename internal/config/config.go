// Package config loads and validates cookie crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by crawler.backend.
const (
	BackendChromedp = "chromedp"
	BackendRod      = "rod"
	BackendHTTP     = "http"
)

// Reference source kinds.
const (
	ReferenceCSV      = "csv"
	ReferencePostgres = "postgres"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Output    OutputConfig    `mapstructure:"output"`
	DB        DBConfig        `mapstructure:"db"`
	History   HistoryConfig   `mapstructure:"history"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs how a site is visited.
type CrawlerConfig struct {
	UserAgent            string  `mapstructure:"user_agent"`
	MaxPages             int     `mapstructure:"max_pages"`
	RespectRobots        bool    `mapstructure:"respect_robots"`
	UseConcurrency       bool    `mapstructure:"use_concurrency"`
	Concurrency          int     `mapstructure:"concurrency"`
	ConsentInteraction   bool    `mapstructure:"consent_interaction"`
	DetectFingerprinting bool    `mapstructure:"detect_fingerprinting"`
	Backend              string  `mapstructure:"backend"`
	Headless             bool    `mapstructure:"headless"`
	NavTimeoutSeconds    int     `mapstructure:"nav_timeout_seconds"`
	MaxAttempts          int     `mapstructure:"max_attempts"`
	RateLimitRPS         float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int     `mapstructure:"rate_limit_burst"`
}

// ReferenceConfig locates the known-cookie database.
type ReferenceConfig struct {
	Source    string `mapstructure:"source"`
	Path      string `mapstructure:"path"`
	UpdateURL string `mapstructure:"update_url"`
	Table     string `mapstructure:"table"`
}

// RulesConfig points at an optional heuristic rule file.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig controls where reports are written.
type OutputConfig struct {
	Format    string `mapstructure:"format"`
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	ReportsTable string `mapstructure:"reports_table"`
}

// HistoryConfig controls the local SQLite run history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// JobsConfig sizes the async analysis pool.
type JobsConfig struct {
	Workers        int `mapstructure:"workers"`
	QueueDepth     int `mapstructure:"queue_depth"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment. An empty path uses
// defaults and COOKIECRAWLER_* variables only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COOKIECRAWLER")
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
	v.SetDefault("crawler.user_agent", "cookie-crawler/0.1")
	v.SetDefault("crawler.max_pages", 5)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.use_concurrency", false)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.consent_interaction", true)
	v.SetDefault("crawler.detect_fingerprinting", true)
	v.SetDefault("crawler.backend", BackendChromedp)
	v.SetDefault("crawler.headless", true)
	v.SetDefault("crawler.nav_timeout_seconds", 30)
	v.SetDefault("crawler.max_attempts", 2)
	v.SetDefault("crawler.rate_limit_rps", 0)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("reference.source", ReferenceCSV)
	v.SetDefault("reference.path", "open-cookie-database.csv")
	v.SetDefault("reference.update_url", "https://raw.githubusercontent.com/jkwakman/Open-Cookie-Database/master/open-cookie-database.csv")
	v.SetDefault("reference.table", "cookie_reference")
	v.SetDefault("output.format", "text")
	v.SetDefault("output.prefix", "reports")
	v.SetDefault("db.reports_table", "cookie_reports")
	v.SetDefault("history.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_depth", 64)
	v.SetDefault("jobs.timeout_seconds", 600)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be > 0")
	}
	if c.Crawler.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.nav_timeout_seconds must be > 0")
	}
	if c.Crawler.RateLimitRPS < 0 {
		return fmt.Errorf("crawler.rate_limit_rps must be >= 0")
	}
	switch c.Crawler.Backend {
	case BackendChromedp, BackendRod, BackendHTTP:
	default:
		return fmt.Errorf("crawler.backend must be one of chromedp, rod, http")
	}
	switch c.Reference.Source {
	case ReferenceCSV:
	case ReferencePostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when reference.source is postgres")
		}
	default:
		return fmt.Errorf("reference.source must be one of csv, postgres")
	}
	switch c.Output.Format {
	case "text", "json", "markdown", "md":
	default:
		return fmt.Errorf("output.format must be one of text, json, markdown")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0")
	}
	if c.Jobs.QueueDepth <= 0 {
		return fmt.Errorf("jobs.queue_depth must be > 0")
	}
	return nil
}

// NavTimeout converts crawler.nav_timeout_seconds into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Crawler.NavTimeoutSeconds) * time.Second
}

// JobTimeout converts jobs.timeout_seconds into a duration; zero means unbounded.
func (c Config) JobTimeout() time.Duration {
	if c.Jobs.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Jobs.TimeoutSeconds) * time.Second
}
