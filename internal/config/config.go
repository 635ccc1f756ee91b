// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store providers.
const (
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	DB       DBConfig       `mapstructure:"db"`
	Keywords KeywordsConfig `mapstructure:"keywords"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CrawlerConfig governs fetching, politeness and the crawl state machine.
type CrawlerConfig struct {
	UserAgent           string  `mapstructure:"user_agent"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
	RateLimitMinSeconds float64 `mapstructure:"rate_limit_min_seconds"`
	RateLimitMaxSeconds float64 `mapstructure:"rate_limit_max_seconds"`
	MaxRetries          int     `mapstructure:"max_retries"`
	RespectRobots       bool    `mapstructure:"respect_robots"`
	MaxServicePages     int     `mapstructure:"max_service_pages"`
	StaleAfterMinutes   int     `mapstructure:"stale_after_minutes"`
	RecrawlIntervalDays int     `mapstructure:"recrawl_interval_days"`
	StatsEvery          int     `mapstructure:"stats_every"`
	MaxBodyBytes        int     `mapstructure:"max_body_bytes"`
}

// DBConfig selects and tunes the persistence backend.
type DBConfig struct {
	Provider               string `mapstructure:"provider"`
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	ApplySchema            bool   `mapstructure:"apply_schema"`
}

// KeywordsConfig controls the keyword rule tables.
type KeywordsConfig struct {
	FilterEnabled bool   `mapstructure:"filter_enabled"`
	RulesFile     string `mapstructure:"rules_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KEYWORDS")
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
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; KeywordDiscoveryBot/1.0)")
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.rate_limit_min_seconds", 1.0)
	v.SetDefault("crawler.rate_limit_max_seconds", 2.0)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.max_service_pages", 20)
	v.SetDefault("crawler.stale_after_minutes", 60)
	v.SetDefault("crawler.recrawl_interval_days", 30)
	v.SetDefault("crawler.stats_every", 10)
	v.SetDefault("crawler.max_body_bytes", 10*1024*1024)
	v.SetDefault("db.provider", ProviderPostgres)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.apply_schema", false)
	v.SetDefault("keywords.filter_enabled", true)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return errors.New("server.port must be > 0 when the server is enabled")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return errors.New("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.RateLimitMinSeconds < 0 {
		return errors.New("crawler.rate_limit_min_seconds must be >= 0")
	}
	if c.Crawler.RateLimitMaxSeconds < c.Crawler.RateLimitMinSeconds {
		return errors.New("crawler.rate_limit_max_seconds must be >= rate_limit_min_seconds")
	}
	if c.Crawler.MaxRetries < 0 {
		return errors.New("crawler.max_retries must be >= 0")
	}
	if c.Crawler.MaxServicePages <= 0 {
		return errors.New("crawler.max_service_pages must be > 0")
	}
	if c.Crawler.StaleAfterMinutes <= 0 {
		return errors.New("crawler.stale_after_minutes must be > 0")
	}
	if c.Crawler.RecrawlIntervalDays <= 0 {
		return errors.New("crawler.recrawl_interval_days must be > 0")
	}
	switch c.DB.Provider {
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return errors.New("db.dsn must be set when db.provider is postgres")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("db.provider must be %q or %q, got %q", ProviderPostgres, ProviderMemory, c.DB.Provider)
	}
	return nil
}

// FetchTimeout is the per-request fetch bound.
func (c CrawlerConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitBounds returns the politeness delay bounds.
func (c CrawlerConfig) RateLimitBounds() (time.Duration, time.Duration) {
	return seconds(c.RateLimitMinSeconds), seconds(c.RateLimitMaxSeconds)
}

// StaleAfter is the in_progress age after which a domain is recovered.
func (c CrawlerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// RecrawlInterval is the delay before a completed domain is due again.
func (c CrawlerConfig) RecrawlInterval() time.Duration {
	return time.Duration(c.RecrawlIntervalDays) * 24 * time.Hour
}

// MaxConnLifetime converts the configured lifetime to a duration.
func (c DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
