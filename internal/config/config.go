package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. Every knob has an
// explicit default below; there are no hidden fallbacks.
type Config struct {
	Tolerance ToleranceConfig `yaml:"tolerance" mapstructure:"tolerance"`
	Backtest  BacktestConfig  `yaml:"backtest" mapstructure:"backtest"`
	Stability StabilityConfig `yaml:"stability" mapstructure:"stability"`
	Forecast  ForecastConfig  `yaml:"forecast" mapstructure:"forecast"`
	Contract  ContractConfig  `yaml:"contract" mapstructure:"contract"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ToleranceConfig configures vintage comparison and the provisional gate.
type ToleranceConfig struct {
	BandPct         float64 `yaml:"band_pct" mapstructure:"band_pct"`
	TTLBusinessDays int     `yaml:"cache_ttl_business_days" mapstructure:"cache_ttl_business_days"`
}

// BacktestConfig configures the rolling-origin backtest and model selection.
type BacktestConfig struct {
	LookbackMonths         int     `yaml:"lookback_months" mapstructure:"lookback_months"`
	HorizonMonths          int     `yaml:"horizon_months" mapstructure:"horizon_months"`
	Workers                int     `yaml:"workers" mapstructure:"workers"`
	SelectionMetric        string  `yaml:"selection_metric" mapstructure:"selection_metric"`
	BaselineImprovementPct float64 `yaml:"baseline_improvement_threshold_pct" mapstructure:"baseline_improvement_threshold_pct"`
}

// StabilityConfig configures winner flip tracking.
type StabilityConfig struct {
	Window        int `yaml:"window" mapstructure:"window"`
	FlipThreshold int `yaml:"flip_threshold" mapstructure:"flip_threshold"`
}

// ForecastConfig configures prediction interval generation.
type ForecastConfig struct {
	PIZScore float64 `yaml:"pi_z_score" mapstructure:"pi_z_score"`
}

// ContractConfig configures raw record validation.
type ContractConfig struct {
	StrictMode    bool    `yaml:"strict_mode" mapstructure:"strict_mode"`
	MaxRejectRate float64 `yaml:"max_reject_rate" mapstructure:"max_reject_rate"`
}

// StoreConfig configures the ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
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
	v.SetEnvPrefix("FUELTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("tolerance.band_pct", 2.0)
	v.SetDefault("tolerance.cache_ttl_business_days", 3)
	v.SetDefault("backtest.lookback_months", 60)
	v.SetDefault("backtest.horizon_months", 12)
	v.SetDefault("backtest.workers", 4)
	v.SetDefault("backtest.selection_metric", "mae")
	v.SetDefault("backtest.baseline_improvement_threshold_pct", 10.0)
	v.SetDefault("stability.window", 5)
	v.SetDefault("stability.flip_threshold", 3)
	v.SetDefault("forecast.pi_z_score", 1.96)
	v.SetDefault("contract.strict_mode", false)
	v.SetDefault("contract.max_reject_rate", 0.2)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "fueltracker.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
