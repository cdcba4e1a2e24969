// Package config loads the engine's top-level configuration via viper,
// with one Default() at the top level providing production-safe
// fallbacks and every key overridable by environment variable via
// viper.AutomaticEnv.
package config

import (
	"fmt"
	"reflect"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the engine's full configuration surface, per the
// configuration surface this service exposes to operators.
type Config struct {
	TradingEnabled bool `mapstructure:"trading_enabled"`
	Testnet        bool `mapstructure:"testnet"`

	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`

	MaxPositionSize    decimal.Decimal `mapstructure:"max_position_size"`
	MaxConcurrentPairs int             `mapstructure:"max_concurrent_pairs"`
	DailyLossLimit     decimal.Decimal `mapstructure:"daily_loss_limit"`
	RiskPerTrade       decimal.Decimal `mapstructure:"risk_per_trade"`

	ZScoreEntryThreshold    decimal.Decimal `mapstructure:"zscore_entry_threshold"`
	ZScoreExitThreshold     decimal.Decimal `mapstructure:"zscore_exit_threshold"`
	ZScoreStoplossThreshold decimal.Decimal `mapstructure:"zscore_stoploss_threshold"`

	CointegrationWindow          int             `mapstructure:"cointegration_window"`
	CointegrationPValueThreshold decimal.Decimal `mapstructure:"cointegration_pvalue_threshold"`

	AggregationMode string `mapstructure:"aggregation_mode"` // "consensus" or "or"

	SnapshotPath string `mapstructure:"snapshot_path"`
	MetricsHost  string `mapstructure:"metrics_host"`
	MetricsPort  int    `mapstructure:"metrics_port"`

	Pairs []types.PairConfig `mapstructure:"pairs"`
}

// Default returns production-safe defaults: trading disabled (paper
// fills only) until an operator explicitly opts in, testnet broker,
// and the engine's standard zscore/sizing defaults.
func Default() Config {
	return Config{
		TradingEnabled: false,
		Testnet:        true,

		MaxPositionSize:    decimal.NewFromInt(1000),
		MaxConcurrentPairs: 5,
		DailyLossLimit:     decimal.NewFromInt(500),
		RiskPerTrade:       decimal.NewFromFloat(0.02),

		ZScoreEntryThreshold:    decimal.NewFromFloat(2.0),
		ZScoreExitThreshold:     decimal.NewFromFloat(0.3),
		ZScoreStoplossThreshold: decimal.NewFromFloat(3.5),

		CointegrationWindow:          60,
		CointegrationPValueThreshold: decimal.NewFromFloat(0.20),

		AggregationMode: "consensus",

		SnapshotPath: "./data/snapshot.json",
		MetricsHost:  "0.0.0.0",
		MetricsPort:  9090,

		Pairs: []types.PairConfig{
			{SymbolA: "BTCUSDT", SymbolB: "ETHUSDT", Enabled: true},
			{SymbolA: "SOLUSDT", SymbolB: "AVAXUSDT", Enabled: true},
		},
	}
}

// Load reads configuration from a YAML file named configName under
// configPath, falling back to Default()'s values for anything unset and
// allowing every key to be overridden by an environment variable of the
// same name (upper-cased, per viper.AutomaticEnv's convention).
func Load(configName, configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: read %s/%s.yaml: %w", configPath, configName, err)
		}
	}

	// Decimal fields arrive as strings (defaults, env) or YAML numbers.
	decimalType := reflect.TypeOf(decimal.Decimal{})
	decimalHook := viper.DecodeHook(func(from, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch x := data.(type) {
		case string:
			return decimal.NewFromString(x)
		case float64:
			return decimal.NewFromFloat(x), nil
		case int:
			return decimal.NewFromInt(int64(x)), nil
		}
		return data, nil
	})

	var cfg Config
	if err := v.Unmarshal(&cfg, decimalHook); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("trading_enabled", d.TradingEnabled)
	v.SetDefault("testnet", d.Testnet)
	v.SetDefault("max_position_size", d.MaxPositionSize.String())
	v.SetDefault("max_concurrent_pairs", d.MaxConcurrentPairs)
	v.SetDefault("daily_loss_limit", d.DailyLossLimit.String())
	v.SetDefault("risk_per_trade", d.RiskPerTrade.String())
	v.SetDefault("zscore_entry_threshold", d.ZScoreEntryThreshold.String())
	v.SetDefault("zscore_exit_threshold", d.ZScoreExitThreshold.String())
	v.SetDefault("zscore_stoploss_threshold", d.ZScoreStoplossThreshold.String())
	v.SetDefault("cointegration_window", d.CointegrationWindow)
	v.SetDefault("cointegration_pvalue_threshold", d.CointegrationPValueThreshold.String())
	v.SetDefault("aggregation_mode", d.AggregationMode)
	v.SetDefault("snapshot_path", d.SnapshotPath)
	v.SetDefault("metrics_host", d.MetricsHost)
	v.SetDefault("metrics_port", d.MetricsPort)
	v.SetDefault("pairs", d.Pairs)
}
