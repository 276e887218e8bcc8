// Package config loads server configuration from flags, environment
// variables, and an optional config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"fundex/internal/engine"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen        string
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool

	// API keys mapped to capabilities. Empty disables the capability.
	AdminKey  string
	LedgerKey string

	AssetA            string
	AssetB            string
	MinimumFloor      int64
	RatioToleranceBps int64
	MaxSlippageBps    int64
	MaxFarmPools      int

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
// Environment variables use the FUNDEX_ prefix with dashes mapped to
// underscores (FUNDEX_POSTGRES_DSN for --postgres-dsn).
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("use-memory", false)
	v.SetDefault("asset-a", string(engine.DefaultAssetA))
	v.SetDefault("asset-b", string(engine.DefaultAssetB))
	v.SetDefault("minimum-floor", int64(engine.DefaultMinimumFloor))
	v.SetDefault("ratio-tolerance-bps", int64(engine.DefaultRatioToleranceBps))
	v.SetDefault("max-slippage-bps", int64(engine.DefaultMaxSlippageBps))
	v.SetDefault("max-farm-pools", engine.DefaultMaxFarmPools)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Listen:            v.GetString("listen"),
		PostgresDSN:       v.GetString("postgres-dsn"),
		ClickhouseDSN:     v.GetString("clickhouse-dsn"),
		UseMemory:         v.GetBool("use-memory"),
		AdminKey:          v.GetString("admin-key"),
		LedgerKey:         v.GetString("ledger-key"),
		AssetA:            v.GetString("asset-a"),
		AssetB:            v.GetString("asset-b"),
		MinimumFloor:      v.GetInt64("minimum-floor"),
		RatioToleranceBps: v.GetInt64("ratio-tolerance-bps"),
		MaxSlippageBps:    v.GetInt64("max-slippage-bps"),
		MaxFarmPools:      v.GetInt("max-farm-pools"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.AssetA == "" || c.AssetB == "" {
		return fmt.Errorf("asset symbols must not be empty")
	}
	if c.AssetA == c.AssetB {
		return fmt.Errorf("asset symbols must differ")
	}
	if c.MinimumFloor < 0 {
		return fmt.Errorf("minimum-floor must not be negative")
	}
	if c.MaxSlippageBps < 0 || c.MaxSlippageBps > 10_000 {
		return fmt.Errorf("max-slippage-bps must be within [0, 10000]")
	}
	if c.MaxFarmPools < 1 {
		return fmt.Errorf("max-farm-pools must be positive")
	}
	return nil
}
