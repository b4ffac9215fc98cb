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
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	AI       AIConfig       `mapstructure:"ai"`
	DB       DBConfig       `mapstructure:"db"`
	Export   ExportConfig   `mapstructure:"export"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourcesConfig locates the scrape target registry artifact.
type SourcesConfig struct {
	Path string `mapstructure:"path"`
}

// RendererConfig configures the headless rendering session.
type RendererConfig struct {
	UserAgent     string `mapstructure:"user_agent"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	SettleMs      int    `mapstructure:"settle_ms"`
}

// ScraperConfig governs run behavior across sources.
type ScraperConfig struct {
	PolitenessRPS float64 `mapstructure:"politeness_rps"`
}

// AIConfig selects and configures the AI-assisted extraction strategy.
type AIConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	MaxPages int    `mapstructure:"max_pages"`
}

// DBConfig controls access to the batch store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ExportConfig sets the destination for committed batch JSON exports.
type ExportConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for batch completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHSCRAPER")
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
	v.SetDefault("server.port", 8000)
	v.SetDefault("logging.development", true)
	v.SetDefault("sources.path", "sources.json")
	v.SetDefault("renderer.user_agent", "arch-scraper/0.1")
	v.SetDefault("renderer.nav_timeout_seconds", 45)
	v.SetDefault("renderer.settle_ms", 5000)
	v.SetDefault("scraper.politeness_rps", 0.5)
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_pages", 10)
	v.SetDefault("db.table", "batches")
	v.SetDefault("export.provider", "none")
	v.SetDefault("export.prefix", "exports")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Sources.Path == "" {
		return fmt.Errorf("sources.path is required")
	}
	if c.Renderer.NavTimeoutSec <= 0 {
		return fmt.Errorf("renderer.nav_timeout_seconds must be > 0")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key must be set when ai is enabled")
	}
	switch c.Export.Provider {
	case "", "none", "local", "gcs":
	default:
		return fmt.Errorf("unknown export provider: %s", c.Export.Provider)
	}
	if c.Export.Provider == "local" && c.Export.LocalDir == "" {
		return fmt.Errorf("export.local_dir must be set when export provider is 'local'")
	}
	if c.Export.Provider == "gcs" && c.Export.GCSBucket == "" {
		return fmt.Errorf("export.gcs_bucket must be set when export provider is 'gcs'")
	}
	return nil
}

// NavTimeout converts the renderer navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Renderer.NavTimeoutSec) * time.Second
}

// SettleWait converts the renderer settle delay into a duration.
func (c Config) SettleWait() time.Duration {
	return time.Duration(c.Renderer.SettleMs) * time.Millisecond
}
