package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapscope/internal/portfolio"
)

// Store provides Postgres persistence for swaps and PnL details.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutSwaps inserts or updates reconstructed swaps. A swap is keyed by its
// transaction hash within a chain, so re-running reconstruction is
// idempotent.
func (s *Store) PutSwaps(ctx context.Context, chain, wallet string, swaps []portfolio.Swap) error {
	if len(swaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, swap := range swaps {
		batch.Queue(`
			INSERT INTO swaps (
				chain, wallet, tx_hash, block_number,
				sold_symbol, sold_address, sold_amount,
				bought_symbol, bought_address, bought_amount,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
			ON CONFLICT (chain, tx_hash)
			DO UPDATE SET
				wallet = EXCLUDED.wallet,
				block_number = EXCLUDED.block_number,
				sold_symbol = EXCLUDED.sold_symbol,
				sold_address = EXCLUDED.sold_address,
				sold_amount = EXCLUDED.sold_amount,
				bought_symbol = EXCLUDED.bought_symbol,
				bought_address = EXCLUDED.bought_address,
				bought_amount = EXCLUDED.bought_amount,
				updated_at = now()
		`,
			chain,
			wallet,
			swap.Hash,
			int64(swap.BlockNumber),
			swap.Sold.TokenInfo.Symbol,
			swap.Sold.TokenInfo.Address,
			swap.Sold.Value,
			swap.Bought.TokenInfo.Symbol,
			swap.Bought.TokenInfo.Address,
			swap.Bought.Value,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range swaps {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutPnlDetails replaces the stored PnL details for a wallet. Details have
// no natural key, so the previous computation is deleted first.
func (s *Store) PutPnlDetails(ctx context.Context, chain, wallet string, details []portfolio.Detail) error {
	if len(details) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM pnl_details WHERE chain=$1 AND wallet=$2`, chain, wallet)
	for _, d := range details {
		batch.Queue(`
			INSERT INTO pnl_details (
				chain, wallet, asset_symbol, asset_address, amount,
				buying_price, selling_price, pnl, realized,
				bought_block, bought_hash, sold_block, sold_hash, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
		`,
			chain,
			wallet,
			d.Asset.Symbol,
			d.Asset.Address,
			d.Amount,
			d.BuyingPrice,
			d.SellingPrice,
			d.Pnl,
			d.Realized,
			int64(d.BoughtBlock),
			d.BoughtHash,
			int64(d.SoldBlock),
			d.SoldHash,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(details)+1; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadWalletCursor returns the last processed block for a wallet.
func (s *Store) LoadWalletCursor(ctx context.Context, chain, wallet string) (uint64, bool, error) {
	if wallet == "" {
		return 0, false, fmt.Errorf("wallet required")
	}
	var block uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM wallet_cursors WHERE chain=$1 AND wallet=$2`, chain, wallet)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return block, true, nil
}

// SaveWalletCursor upserts the last processed block for a wallet.
func (s *Store) SaveWalletCursor(ctx context.Context, chain, wallet string, block uint64) error {
	if wallet == "" {
		return fmt.Errorf("wallet required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_cursors (chain, wallet, last_processed_block, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain, wallet) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, chain, wallet, block)
	return err
}
