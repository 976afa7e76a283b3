package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig  `yaml:"store" mapstructure:"store"`
	OSM      SourceConfig `yaml:"osm" mapstructure:"osm"`
	Wikidata SourceConfig `yaml:"wikidata" mapstructure:"wikidata"`
	Cache    CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Boot     BootConfig   `yaml:"boot" mapstructure:"boot"`
	Server   ServerConfig `yaml:"server" mapstructure:"server"`
	Log      LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the snapshot database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// SourceConfig configures one upstream adapter.
type SourceConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// Timeout returns the request timeout as a duration.
func (c SourceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CacheConfig configures the tile cache TTLs and janitor.
type CacheConfig struct {
	FullTTLSecs      int `yaml:"full_ttl_secs" mapstructure:"full_ttl_secs"`
	EssentialTTLSecs int `yaml:"essential_ttl_secs" mapstructure:"essential_ttl_secs"`
	ErrorsTTLSecs    int `yaml:"errors_ttl_secs" mapstructure:"errors_ttl_secs"`
	SweepSecs        int `yaml:"sweep_secs" mapstructure:"sweep_secs"`
}

// BootConfig configures the optional region prepopulation at startup.
type BootConfig struct {
	Prepopulate      bool   `yaml:"prepopulate" mapstructure:"prepopulate"`
	RegionsPath      string `yaml:"regions_path" mapstructure:"regions_path"`
	RegionDelaySecs  int    `yaml:"region_delay_secs" mapstructure:"region_delay_secs"`
	RestoreSnapshots bool   `yaml:"restore_snapshots" mapstructure:"restore_snapshots"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FOUNTAINS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "fountains.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("osm.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("osm.timeout_secs", 30)
	v.SetDefault("osm.rate_per_sec", 1)
	v.SetDefault("osm.burst", 2)
	v.SetDefault("osm.max_retries", 3)
	v.SetDefault("wikidata.url", "https://query.wikidata.org/sparql")
	v.SetDefault("wikidata.timeout_secs", 45)
	v.SetDefault("wikidata.rate_per_sec", 0.5)
	v.SetDefault("wikidata.burst", 1)
	v.SetDefault("wikidata.max_retries", 3)
	v.SetDefault("cache.full_ttl_secs", 7200)
	v.SetDefault("cache.essential_ttl_secs", 14400)
	v.SetDefault("cache.errors_ttl_secs", 14400)
	v.SetDefault("cache.sweep_secs", 60)
	v.SetDefault("boot.prepopulate", false)
	v.SetDefault("boot.regions_path", "regions.yaml")
	v.SetDefault("boot.region_delay_secs", 30)
	v.SetDefault("boot.restore_snapshots", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
