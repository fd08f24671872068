package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapscope/internal/chain"
	"swapscope/internal/config"
	"swapscope/internal/portfolio"
	"swapscope/internal/token"
	"swapscope/internal/venue"
)

func runPnl(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	appCfg, err := config.Load(cfgFile, nil)
	if err != nil {
		return err
	}
	cfg, err := config.LoadPnl(cfgFile, cmd.Flags())
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

	base, err := appCfg.Token(cfg.Chain, cfg.Base)
	if err != nil {
		return err
	}

	chains := chain.NewFactoryFromRPC(appCfg.RPCURLs(), logger)
	defer chains.Close()

	view, err := buildWalletPortfolio(ctx, appCfg, cfg.Chain, cfg.Wallet, chains, logger)
	if err != nil {
		return err
	}

	swaps, err := view.GetSwaps(ctx)
	if err != nil {
		return fmt.Errorf("reconstruct swaps: %w", err)
	}

	pricing, err := buildPricing(appCfg, cfg.Venue, cfg.Chain, chains, logger)
	if err != nil {
		return err
	}

	pnl, err := portfolio.ComputePNL(ctx, swaps, base, pricing)
	if err != nil {
		return fmt.Errorf("compute pnl: %w", err)
	}

	details := pnl.Details(cfg.Mode)
	for _, detail := range details {
		fmt.Println(detail)
	}
	for asset, total := range pnl.PnlPerAsset(cfg.Mode) {
		fmt.Printf("%s: %s %s\n", asset, total, base.Symbol)
	}
	fmt.Printf("total: %s %s\n", pnl.Pnl(cfg.Mode), base.Symbol)

	logger.Info("pnl computed",
		zap.String("chain", cfg.Chain),
		zap.String("wallet", cfg.Wallet),
		zap.Int("details", len(details)))

	if err := persistPnl(ctx, appCfg, cfg.Chain, cfg.Wallet, details, logger); err != nil {
		return err
	}
	return nil
}

// buildPricing prices unconsumed lots off the live venue. Lots in assets the
// venue has no market for fail the computation rather than default to zero.
func buildPricing(cfg config.Config, venueName, chainName string, chains *chain.Factory, logger *zap.Logger) (portfolio.PricingFunc, error) {
	client, err := venue.New(venueName, chainName, venue.Deps{
		Chains:   chains,
		Settings: cfg.VenueSettings(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, asset, base token.Info) (decimal.Decimal, error) {
		price, err := client.GetTokenPrice(ctx, asset, base)
		if err != nil {
			return decimal.Zero, fmt.Errorf("price %s in %s: %w", asset.Symbol, base.Symbol, err)
		}
		return price, nil
	}, nil
}

func persistPnl(ctx context.Context, cfg config.Config, chainName, wallet string, details []portfolio.Detail, logger *zap.Logger) error {
	sinks, _, closeSinks, err := buildStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	for _, sink := range sinks {
		if err := sink.PutPnlDetails(ctx, chainName, wallet, details); err != nil {
			return fmt.Errorf("persist pnl details: %w", err)
		}
	}
	logger.Debug("pnl details persisted", zap.Int("sinks", len(sinks)))
	return nil
}
