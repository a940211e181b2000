// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Detect    DetectConfig    `yaml:"detect" mapstructure:"detect"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Reprocess ReprocessConfig `yaml:"reprocess" mapstructure:"reprocess"`
	Extractor ExtractorConfig `yaml:"extractor" mapstructure:"extractor"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`             // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"` // pg DSN or sqlite path
}

// FetchConfig configures the HTTP fetcher used to probe and stream remote resources.
type FetchConfig struct {
	UserAgent               string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs             int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries              int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec              float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// DetectConfig configures change detection behavior.
type DetectConfig struct {
	// VerifyFingerprint forces a full content fingerprint even when the
	// cheap metadata probe reports no change. Used for sources whose
	// size/last-modified headers are unreliable.
	VerifyFingerprint bool `yaml:"verify_fingerprint" mapstructure:"verify_fingerprint"`

	// StartYear bounds partition enumeration for year-partitioned sources.
	StartYear int `yaml:"start_year" mapstructure:"start_year"`
}

// QualityConfig holds comparison policy thresholds. These are policy, not
// invariants: different deployments tune them.
type QualityConfig struct {
	RegressionThreshold  float64 `yaml:"regression_threshold" mapstructure:"regression_threshold"`
	ImprovementThreshold float64 `yaml:"improvement_threshold" mapstructure:"improvement_threshold"`
}

// ReprocessConfig configures reprocessing runs.
type ReprocessConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
}

// ExtractorConfig points at the external extraction service.
type ExtractorConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
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
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fetch.user_agent", "Sells Advisors blake@sellsadvisors.com")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("fetch.circuit_failure_threshold", 5)
	v.SetDefault("fetch.circuit_reset_secs", 60)
	v.SetDefault("detect.verify_fingerprint", false)
	v.SetDefault("detect.start_year", 2020)
	v.SetDefault("quality.regression_threshold", 0.01)
	v.SetDefault("quality.improvement_threshold", 0.02)
	v.SetDefault("reprocess.concurrency", 8)
	v.SetDefault("reprocess.batch_size", 500)
	v.SetDefault("extractor.timeout_secs", 300)

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
