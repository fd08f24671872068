package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapscope/internal/chain"
	"swapscope/internal/config"
	"swapscope/internal/history"
	"swapscope/internal/portfolio"
	"swapscope/internal/storage"
	"swapscope/internal/storage/postgres"
	"swapscope/internal/token"
)

func runPortfolio(cmd *cobra.Command, _ []string) error {
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
	wallet := flagString(cmd, "wallet")
	if wallet == "" {
		return fmt.Errorf("wallet address is required")
	}

	chains := chain.NewFactoryFromRPC(cfg.RPCURLs(), logger)
	defer chains.Close()

	view, err := buildWalletPortfolio(ctx, cfg, chainName, wallet, chains, logger)
	if err != nil {
		return err
	}

	swaps, err := view.GetSwaps(ctx)
	if err != nil {
		return fmt.Errorf("reconstruct swaps: %w", err)
	}
	portfolio.SortByBlock(swaps)

	for _, swap := range swaps {
		fmt.Println(swap)
	}
	logger.Info("swaps reconstructed",
		zap.String("chain", chainName),
		zap.String("wallet", wallet),
		zap.Int("count", len(swaps)))

	if err := persistSwaps(ctx, cfg, chainName, wallet, swaps, logger); err != nil {
		return err
	}

	if withBalances, _ := cmd.Flags().GetBool("balances"); withBalances {
		balances, err := view.GetTokenBalances(ctx)
		if err != nil {
			return fmt.Errorf("fetch balances: %w", err)
		}
		for _, balance := range balances {
			fmt.Printf("%s: %s\n", balance.TokenInfo.Symbol, balance.Value)
		}
	}
	return nil
}

// walletView adapts the chain-specific portfolio to the CLI. Exactly one
// field is set.
type walletView struct {
	evm    *portfolio.EVMPortfolio
	solana *portfolio.SolanaPortfolio
}

func (w *walletView) GetSwaps(ctx context.Context) ([]portfolio.Swap, error) {
	if w.solana != nil {
		return w.solana.GetSwaps(ctx)
	}
	return w.evm.GetSwaps(ctx)
}

func (w *walletView) GetTokenBalances(ctx context.Context) ([]token.Amount, error) {
	if w.evm == nil {
		return nil, fmt.Errorf("balance listing is not supported on solana chains")
	}
	return w.evm.GetTokenBalances(ctx)
}

// buildWalletPortfolio picks the reconstruction path for the chain family:
// Alchemy transfer history for EVM chains, Helius parsed transactions for
// Solana.
func buildWalletPortfolio(ctx context.Context, cfg config.Config, chainName, wallet string, chains *chain.Factory, logger *zap.Logger) (*walletView, error) {
	client, err := chains.Get(ctx, chainName)
	if err != nil {
		return nil, err
	}

	if isSolana(chainName) {
		sol, ok := client.(*chain.SolanaClient)
		if !ok {
			return nil, fmt.Errorf("chain %s is not a solana client", chainName)
		}
		helius := history.NewHeliusClient(cfg.History.HeliusAPIKey, history.DefaultHeliusTransactionURL, logger)
		p := portfolio.NewSolanaPortfolio(wallet, sol, helius, sol, logger)
		return &walletView{solana: p}, nil
	}

	alchemy, err := history.NewAlchemyClient(chainName, cfg.History.AlchemyAPIKey, "", logger)
	if err != nil {
		return nil, err
	}
	p := portfolio.NewEVMPortfolio(wallet, client, alchemy, logger)
	return &walletView{evm: p}, nil
}

// persistSwaps writes reconstructed swaps to every sink. With Postgres
// configured the wallet cursor makes the write incremental: only swaps past
// the last processed block are persisted, and the cursor advances to the
// newest block written. Expects swaps sorted by block.
func persistSwaps(ctx context.Context, cfg config.Config, chainName, wallet string, swaps []portfolio.Swap, logger *zap.Logger) error {
	sinks, store, closeSinks, err := buildStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	fresh := swaps
	if store != nil {
		cursor, ok, err := store.LoadWalletCursor(ctx, chainName, wallet)
		if err != nil {
			return fmt.Errorf("load wallet cursor: %w", err)
		}
		if ok {
			fresh = portfolio.SwapsAfterBlock(swaps, cursor)
			logger.Debug("resuming from cursor",
				zap.Uint64("cursor", cursor),
				zap.Int("fresh", len(fresh)))
		}
	}

	for _, sink := range sinks {
		if err := sink.PutSwaps(ctx, chainName, wallet, fresh); err != nil {
			return fmt.Errorf("persist swaps: %w", err)
		}
	}
	if store != nil && len(fresh) > 0 {
		last := fresh[len(fresh)-1].BlockNumber
		if err := store.SaveWalletCursor(ctx, chainName, wallet, last); err != nil {
			return fmt.Errorf("save wallet cursor: %w", err)
		}
	}
	logger.Debug("swaps persisted", zap.Int("sinks", len(sinks)), zap.Int("count", len(fresh)))
	return nil
}

// buildStorage always includes the JSONL sink and adds Postgres when a DSN
// is configured. The store is returned separately for cursor access.
func buildStorage(ctx context.Context, cfg config.Config) ([]storage.Storage, *postgres.Store, func(), error) {
	sinks := []storage.Storage{storage.NewJsonlStorage(cfg.Storage.Out)}
	closeSinks := func() {}

	var store *postgres.Store
	if cfg.Storage.PGDSN != "" {
		var err error
		store, err = postgres.NewStore(ctx, cfg.Storage.PGDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		sinks = append(sinks, store)
		closeSinks = store.Close
	}
	return sinks, store, closeSinks, nil
}
