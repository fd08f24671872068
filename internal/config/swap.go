package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SwapConfig holds configuration for one swap execution.
type SwapConfig struct {
	Chain       string
	Venue       string
	Base        string
	Quote       string
	Amount      decimal.Decimal
	SlippageBps int64
	DryRun      bool
	LogLevel    string
}

// LoadSwap merges config file, environment variables, and flags into
// SwapConfig.
func LoadSwap(cfgFile string, flags *pflag.FlagSet) (SwapConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("SWAPSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain", "ethereum")
	v.SetDefault("venue", "uniswap_v3")
	v.SetDefault("slippage-bps", int64(100))
	v.SetDefault("dry-run", false)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return SwapConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return SwapConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return SwapConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	amount, err := parseAmount(v.GetString("amount"))
	if err != nil {
		return SwapConfig{}, err
	}

	cfg := SwapConfig{
		Chain:       v.GetString("chain"),
		Venue:       v.GetString("venue"),
		Base:        v.GetString("base"),
		Quote:       v.GetString("quote"),
		Amount:      amount,
		SlippageBps: v.GetInt64("slippage-bps"),
		DryRun:      v.GetBool("dry-run"),
		LogLevel:    v.GetString("log-level"),
	}

	if cfg.Base == "" || cfg.Quote == "" {
		return SwapConfig{}, fmt.Errorf("base and quote token symbols are required")
	}
	if cfg.SlippageBps < 0 || cfg.SlippageBps >= 10000 {
		return SwapConfig{}, fmt.Errorf("slippage-bps must be in [0, 10000), got %d", cfg.SlippageBps)
	}

	return cfg, nil
}

func parseAmount(input string) (decimal.Decimal, error) {
	if strings.TrimSpace(input) == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount %q: %w", input, err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return amount, nil
}
