package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swapscope/internal/chain"
	"swapscope/internal/config"
	"swapscope/internal/token"
	"swapscope/internal/trade"
	"swapscope/internal/venue"
)

func main() {
	root := &cobra.Command{
		Use:          "swapscope",
		Short:        "DEX swap execution and FIFO PnL accounting",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Quote the current price of a token pair on a venue",
		RunE:  runPrice,
	}
	priceCmd.Flags().String("chain", "ethereum", "chain name")
	priceCmd.Flags().String("venue", "uniswap_v3", "venue name")
	priceCmd.Flags().String("base", "", "base token symbol (token being priced)")
	priceCmd.Flags().String("quote", "", "quote token symbol (denominator)")
	priceCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(priceCmd)

	marketsCmd := &cobra.Command{
		Use:   "markets",
		Short: "List pairs with liquidity among the configured tokens",
		RunE:  runMarkets,
	}
	marketsCmd.Flags().String("chain", "ethereum", "chain name")
	marketsCmd.Flags().String("venue", "uniswap_v3", "venue name")
	marketsCmd.Flags().StringSlice("tokens", nil, "token symbols (comma-separated, default: all configured)")
	marketsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(marketsCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute a token swap",
		RunE:  runSwap,
	}
	swapCmd.Flags().String("chain", "ethereum", "chain name")
	swapCmd.Flags().String("venue", "uniswap_v3", "venue name")
	swapCmd.Flags().String("base", "", "token to buy")
	swapCmd.Flags().String("quote", "", "token to spend")
	swapCmd.Flags().String("amount", "", "amount of quote token to spend")
	swapCmd.Flags().Int64("slippage-bps", 100, "slippage tolerance in basis points")
	swapCmd.Flags().Bool("dry-run", false, "quote and compute bounds without submitting")
	swapCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(swapCmd)

	portfolioCmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Reconstruct a wallet's swap history",
		RunE:  runPortfolio,
	}
	portfolioCmd.Flags().String("chain", "ethereum", "chain name")
	portfolioCmd.Flags().String("wallet", "", "wallet address")
	portfolioCmd.Flags().Bool("balances", false, "also list current token balances")
	portfolioCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(portfolioCmd)

	pnlCmd := &cobra.Command{
		Use:   "pnl",
		Short: "Compute FIFO PnL for a wallet",
		RunE:  runPnl,
	}
	pnlCmd.Flags().String("chain", "ethereum", "chain name")
	pnlCmd.Flags().String("wallet", "", "wallet address")
	pnlCmd.Flags().String("base", "USDC", "base currency symbol")
	pnlCmd.Flags().String("venue", "uniswap_v3", "venue used to price unconsumed lots")
	pnlCmd.Flags().String("mode", "total", "pnl scope (total, realized, unrealized)")
	pnlCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(pnlCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPrice(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(flagString(cmd, "log-level"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainName := flagString(cmd, "chain")
	base, quote, err := resolvePair(cfg, chainName, flagString(cmd, "base"), flagString(cmd, "quote"))
	if err != nil {
		return err
	}

	chains := chain.NewFactoryFromRPC(cfg.RPCURLs(), logger)
	defer chains.Close()

	client, err := venue.New(flagString(cmd, "venue"), chainName, venue.Deps{
		Chains:   chains,
		Settings: cfg.VenueSettings(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	price, err := client.GetTokenPrice(ctx, base, quote)
	if err != nil {
		return err
	}

	fmt.Printf("%s/%s on %s (%s): %s\n", base.Symbol, quote.Symbol, chainName, client.Name(), price)
	return nil
}

func runMarkets(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(flagString(cmd, "log-level"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainName := flagString(cmd, "chain")
	symbols, _ := cmd.Flags().GetStringSlice("tokens")

	var tokens []token.Info
	if len(symbols) == 0 {
		for _, entry := range cfg.Tokens[chainName] {
			tokens = append(tokens, token.NewInfo(entry.Symbol, entry.Address, entry.Decimals, chainName))
		}
	} else {
		for _, symbol := range symbols {
			info, err := cfg.Token(chainName, symbol)
			if err != nil {
				return err
			}
			tokens = append(tokens, info)
		}
	}
	if len(tokens) < 2 {
		return fmt.Errorf("need at least two tokens to find markets, got %d", len(tokens))
	}

	chains := chain.NewFactoryFromRPC(cfg.RPCURLs(), logger)
	defer chains.Close()

	client, err := venue.New(flagString(cmd, "venue"), chainName, venue.Deps{
		Chains:   chains,
		Settings: cfg.VenueSettings(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	markets, err := client.GetMarketsForTokens(ctx, tokens)
	if err != nil {
		return err
	}
	for _, market := range markets {
		fmt.Println(market)
	}
	logger.Info("markets found", zap.Int("count", len(markets)))
	return nil
}

func runSwap(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	appCfg, err := config.Load(cfgFile, nil)
	if err != nil {
		return err
	}
	cfg, err := config.LoadSwap(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseToken, quoteToken, err := resolvePair(appCfg, cfg.Chain, cfg.Base, cfg.Quote)
	if err != nil {
		return err
	}

	chains := chain.NewFactoryFromRPC(appCfg.RPCURLs(), logger)
	defer chains.Close()

	deps := venue.Deps{
		Chains:   chains,
		Settings: appCfg.VenueSettings(),
		Logger:   logger,
	}

	if cfg.DryRun {
		client, err := venue.New(cfg.Venue, cfg.Chain, deps)
		if err != nil {
			return err
		}
		price, err := client.GetTokenPrice(ctx, baseToken, quoteToken)
		if err != nil {
			return err
		}
		expected := cfg.Amount.Div(price)
		minOut := trade.MinOutput(expected, cfg.SlippageBps)
		fmt.Printf("dry run: %s %s -> expected %s %s, minimum %s %s at %d bps\n",
			cfg.Amount, quoteToken.Symbol, expected, baseToken.Symbol, minOut, baseToken.Symbol, cfg.SlippageBps)
		return nil
	}

	executor, err := buildExecutor(ctx, appCfg, cfg.Chain, chains, logger)
	if err != nil {
		return err
	}
	deps.Executor = executor

	client, err := venue.New(cfg.Venue, cfg.Chain, deps)
	if err != nil {
		return err
	}

	result, err := client.Swap(ctx, baseToken, quoteToken, cfg.Amount, cfg.SlippageBps)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))

	if !result.Success {
		return fmt.Errorf("swap failed: %s", result.Error)
	}
	return nil
}

// buildExecutor wires a signing executor for one EVM chain.
func buildExecutor(ctx context.Context, cfg config.Config, chainName string, chains *chain.Factory, logger *zap.Logger) (*trade.Executor, error) {
	chainCfg, err := cfg.Chain(chainName)
	if err != nil {
		return nil, err
	}
	key, err := chainCfg.PrivateKey()
	if err != nil {
		return nil, err
	}

	client, err := chains.Get(ctx, chainName)
	if err != nil {
		return nil, err
	}
	evm, ok := client.(*chain.EVMClient)
	if !ok {
		return nil, fmt.Errorf("chain %s does not support swap execution", chainName)
	}

	chainID, err := evm.Backend().ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	return trade.NewExecutor(evm.Backend(), key, chainID, trade.Config{GasLimit: chainCfg.GasLimit}, logger)
}

func resolvePair(cfg config.Config, chainName, baseSymbol, quoteSymbol string) (token.Info, token.Info, error) {
	if baseSymbol == "" || quoteSymbol == "" {
		return token.Info{}, token.Info{}, fmt.Errorf("base and quote token symbols are required")
	}
	base, err := cfg.Token(chainName, baseSymbol)
	if err != nil {
		return token.Info{}, token.Info{}, err
	}
	quote, err := cfg.Token(chainName, quoteSymbol)
	if err != nil {
		return token.Info{}, token.Info{}, err
	}
	return base, quote, nil
}

func flagString(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return value
}

func isSolana(chainName string) bool {
	return strings.HasPrefix(chainName, "solana")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
