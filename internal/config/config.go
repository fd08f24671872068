package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"swapscope/internal/token"
	"swapscope/internal/venue"
)

// ChainConfig holds per-chain connection and execution settings.
type ChainConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	Wallet        string `mapstructure:"wallet"`
	PrivateKeyEnv string `mapstructure:"private_key_env"`
	GasLimit      uint64 `mapstructure:"gas_limit"`
}

// PrivateKey reads the wallet key from the configured environment variable.
// Keys never live in the config file itself.
func (c ChainConfig) PrivateKey() (string, error) {
	if c.PrivateKeyEnv == "" {
		return "", fmt.Errorf("no private_key_env configured")
	}
	key := os.Getenv(c.PrivateKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is empty", c.PrivateKeyEnv)
	}
	return strings.TrimPrefix(key, "0x"), nil
}

// TokenConfig is one registry entry mapping a symbol to its on-chain
// metadata.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
}

// VenueDeployment holds an EVM venue's contract addresses on one chain.
type VenueDeployment struct {
	Factory string `mapstructure:"factory"`
	Router  string `mapstructure:"router"`
}

// VenuesConfig holds the deployments and tunables of every supported venue.
type VenuesConfig struct {
	UniswapV2       map[string]VenueDeployment `mapstructure:"uniswap_v2"`
	UniswapV3       map[string]VenueDeployment `mapstructure:"uniswap_v3"`
	V3FeeTiers      []int64                    `mapstructure:"v3_fee_tiers"`
	JupiterQuoteURL string                     `mapstructure:"jupiter_quote_url"`
}

// HistoryConfig holds indexing-service credentials for portfolio
// reconstruction.
type HistoryConfig struct {
	AlchemyAPIKey string `mapstructure:"alchemy_api_key"`
	HeliusAPIKey  string `mapstructure:"helius_api_key"`
}

// StorageConfig selects where swap results and PnL reports are persisted.
type StorageConfig struct {
	Out   string `mapstructure:"out"`
	PGDSN string `mapstructure:"pg_dsn"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Chains      map[string]ChainConfig   `mapstructure:"chains"`
	Tokens      map[string][]TokenConfig `mapstructure:"tokens"`
	Venues      VenuesConfig             `mapstructure:"venues"`
	History     HistoryConfig            `mapstructure:"history"`
	Storage     StorageConfig            `mapstructure:"storage"`
	SlippageBps int64                    `mapstructure:"slippage_bps"`
	LogLevel    string                   `mapstructure:"log_level"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWAPSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("slippage_bps", int64(100))
	v.SetDefault("log_level", "info")
	v.SetDefault("storage.out", "./data/swaps.jsonl")

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

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// Flat keys win over nested file values when set explicitly.
	cfg.SlippageBps = v.GetInt64("slippage_bps")
	cfg.LogLevel = v.GetString("log_level")

	return cfg, nil
}

// Chain returns the settings for a chain, failing on unknown names.
func (c Config) Chain(name string) (ChainConfig, error) {
	chain, ok := c.Chains[name]
	if !ok {
		return ChainConfig{}, fmt.Errorf("chain %s not configured", name)
	}
	return chain, nil
}

// RPCURLs maps every configured chain to its RPC endpoint.
func (c Config) RPCURLs() map[string]string {
	out := make(map[string]string, len(c.Chains))
	for name, chain := range c.Chains {
		out[name] = chain.RPCURL
	}
	return out
}

// Token resolves a symbol to its registry entry on a chain. Native asset
// symbols resolve without a registry entry.
func (c Config) Token(chain, symbol string) (token.Info, error) {
	if native := token.Native(chain); strings.EqualFold(native.Symbol, symbol) {
		return native, nil
	}
	for _, entry := range c.Tokens[chain] {
		if strings.EqualFold(entry.Symbol, symbol) {
			return token.NewInfo(entry.Symbol, entry.Address, entry.Decimals, chain), nil
		}
	}
	return token.Info{}, fmt.Errorf("token %s not configured on chain %s", symbol, chain)
}

// VenueSettings converts the raw config into venue construction settings.
func (c Config) VenueSettings() venue.Settings {
	settings := venue.Settings{
		UniswapV2:       make(map[string]venue.EVMDeployment, len(c.Venues.UniswapV2)),
		UniswapV3:       make(map[string]venue.EVMDeployment, len(c.Venues.UniswapV3)),
		V3FeeTiers:      c.Venues.V3FeeTiers,
		JupiterQuoteURL: c.Venues.JupiterQuoteURL,
	}
	for chain, d := range c.Venues.UniswapV2 {
		settings.UniswapV2[chain] = venue.EVMDeployment{
			Factory: common.HexToAddress(d.Factory),
			Router:  common.HexToAddress(d.Router),
		}
	}
	for chain, d := range c.Venues.UniswapV3 {
		settings.UniswapV3[chain] = venue.EVMDeployment{
			Factory: common.HexToAddress(d.Factory),
			Router:  common.HexToAddress(d.Router),
		}
	}
	return settings
}
