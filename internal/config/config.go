// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs for the crawler and ingestor binaries.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Landing  LandingConfig  `mapstructure:"landing"`
	DB       DBConfig       `mapstructure:"db"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP trigger/read API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// UpstreamConfig governs the vendor API client.
type UpstreamConfig struct {
	LocationsURL     string        `mapstructure:"locations_url"`
	BrowsingIDsURL   string        `mapstructure:"browsing_ids_url"`
	BrowsingInfosURL string        `mapstructure:"browsing_infos_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MinDelay         time.Duration `mapstructure:"min_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	MaxRetries       int           `mapstructure:"max_retries"`
}

// CrawlConfig bounds orchestrator fan-out.
type CrawlConfig struct {
	MaxDeliveryIDsPerCity int `mapstructure:"max_delivery_ids_per_city"`
}

// LandingConfig locates the landing zone shared by crawler and ingestor.
type LandingConfig struct {
	Dir         string        `mapstructure:"dir"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectBackoff  time.Duration `mapstructure:"connect_backoff"`
}

// ScheduleConfig sets the daily full-crawl trigger.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Spec    string `mapstructure:"spec"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FOODY")
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
	v.SetDefault("upstream.locations_url", "https://www.foody.vn/__get/Common/GetPopupLocation")
	v.SetDefault("upstream.browsing_ids_url", "https://gappapi.deliverynow.vn/api/delivery/get_browsing_ids")
	v.SetDefault("upstream.browsing_infos_url", "https://gappapi.deliverynow.vn/api/delivery/get_browsing_infos")
	v.SetDefault("upstream.timeout", "15s")
	v.SetDefault("upstream.min_delay", "500ms")
	v.SetDefault("upstream.max_delay", "1s")
	v.SetDefault("upstream.max_retries", 2)
	v.SetDefault("crawl.max_delivery_ids_per_city", 50)
	v.SetDefault("landing.dir", "landing_zone")
	v.SetDefault("landing.settle_delay", "500ms")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.connect_attempts", 5)
	v.SetDefault("db.connect_backoff", "5s")
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.spec", "0 1 * * *")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be > 0")
	}
	if c.Upstream.MinDelay < 0 || c.Upstream.MaxDelay < c.Upstream.MinDelay {
		return fmt.Errorf("upstream delay range is invalid: min %v max %v", c.Upstream.MinDelay, c.Upstream.MaxDelay)
	}
	if c.Crawl.MaxDeliveryIDsPerCity <= 0 {
		return fmt.Errorf("crawl.max_delivery_ids_per_city must be > 0")
	}
	if c.Landing.Dir == "" {
		return fmt.Errorf("landing.dir is required")
	}
	if c.DB.ConnectAttempts <= 0 {
		return fmt.Errorf("db.connect_attempts must be > 0")
	}
	return nil
}
