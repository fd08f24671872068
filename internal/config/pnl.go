package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"swapscope/internal/portfolio"
)

// PnlConfig holds configuration for a PnL computation.
type PnlConfig struct {
	Chain    string
	Wallet   string
	Base     string
	Venue    string
	Mode     portfolio.PnlMode
	LogLevel string
}

// LoadPnl merges config file, environment variables, and flags into
// PnlConfig.
func LoadPnl(cfgFile string, flags *pflag.FlagSet) (PnlConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("SWAPSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain", "ethereum")
	v.SetDefault("venue", "uniswap_v3")
	v.SetDefault("base", "USDC")
	v.SetDefault("mode", "total")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return PnlConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return PnlConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return PnlConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	mode, err := ParsePnlMode(v.GetString("mode"))
	if err != nil {
		return PnlConfig{}, err
	}

	cfg := PnlConfig{
		Chain:    v.GetString("chain"),
		Wallet:   v.GetString("wallet"),
		Base:     v.GetString("base"),
		Venue:    v.GetString("venue"),
		Mode:     mode,
		LogLevel: v.GetString("log-level"),
	}

	if cfg.Wallet == "" {
		return PnlConfig{}, fmt.Errorf("wallet address is required")
	}

	return cfg, nil
}

// ParsePnlMode parses a scope name (total, realized, unrealized).
func ParsePnlMode(input string) (portfolio.PnlMode, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "total":
		return portfolio.PnlModeTotal, nil
	case "realized":
		return portfolio.PnlModeRealized, nil
	case "unrealized":
		return portfolio.PnlModeUnrealized, nil
	default:
		return 0, fmt.Errorf("unknown pnl mode %q (want total, realized or unrealized)", input)
	}
}
