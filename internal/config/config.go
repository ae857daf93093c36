// Package config loads engine configuration from config.yaml and the
// environment (DSS_ prefix), with defaults suitable for a local SQLite
// workflow.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/g5/dss-engine/internal/model"
	"github.com/g5/dss-engine/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Jobs   JobsConfig   `yaml:"jobs" mapstructure:"jobs"`
	Basket BasketConfig `yaml:"basket" mapstructure:"basket"`
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// WorkerConfig sizes one job domain's pool.
type WorkerConfig struct {
	Workers    int `yaml:"workers" mapstructure:"workers"`
	QueueDepth int `yaml:"queue_depth" mapstructure:"queue_depth"`
}

// JobsConfig sizes the per-domain worker pools.
type JobsConfig struct {
	Segmentation WorkerConfig `yaml:"segmentation" mapstructure:"segmentation"`
	Rules        WorkerConfig `yaml:"rules" mapstructure:"rules"`
	Policy       WorkerConfig `yaml:"policy" mapstructure:"policy"`
}

// BasketConfig holds default mining thresholds.
type BasketConfig struct {
	MinSupport    float64 `yaml:"min_support" mapstructure:"min_support"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	MaxRules      int     `yaml:"max_rules" mapstructure:"max_rules"`
}

// PolicyConfig holds the default gatekeeping cost model.
type PolicyConfig struct {
	ReturnProcessingCost float64 `yaml:"return_processing_cost" mapstructure:"return_processing_cost"`
	ShippingCost         float64 `yaml:"shipping_cost" mapstructure:"shipping_cost"`
	CogsRatio            float64 `yaml:"cogs_ratio" mapstructure:"cogs_ratio"`
	ConversionRateImpact float64 `yaml:"conversion_rate_impact" mapstructure:"conversion_rate_impact"`
	PrepayBoundary       float64 `yaml:"prepay_boundary" mapstructure:"prepay_boundary"`
}

// IngestConfig configures the ETL loader.
type IngestConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
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
	v.SetEnvPrefix("DSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dss.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("jobs.segmentation.workers", 2)
	v.SetDefault("jobs.segmentation.queue_depth", 8)
	v.SetDefault("jobs.rules.workers", 2)
	v.SetDefault("jobs.rules.queue_depth", 8)
	v.SetDefault("jobs.policy.workers", 2)
	v.SetDefault("jobs.policy.queue_depth", 8)
	v.SetDefault("basket.min_support", 0.01)
	v.SetDefault("basket.min_confidence", 30.0)
	v.SetDefault("basket.max_rules", 100)
	v.SetDefault("policy.return_processing_cost", 15.0)
	v.SetDefault("policy.shipping_cost", 5.0)
	v.SetDefault("policy.cogs_ratio", 0.6)
	v.SetDefault("policy.conversion_rate_impact", 0.2)
	v.SetDefault("policy.prepay_boundary", 50.0)
	v.SetDefault("ingest.batch_size", 1000)

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

// CostParams converts the policy section into the optimizer's cost model.
func (c PolicyConfig) CostParams() model.CostParams {
	return model.CostParams{
		ReturnProcessingCost: c.ReturnProcessingCost,
		ShippingCost:         c.ShippingCost,
		CogsRatio:            c.CogsRatio,
		ConversionRateImpact: c.ConversionRateImpact,
		PrepayBoundary:       c.PrepayBoundary,
	}
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
