package portfolio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/chain"
	"swapscope/internal/token"
)

// Transfer is one token movement touching the wallet, as reported by an
// indexing service.
type Transfer struct {
	Token       token.Info
	Value       decimal.Decimal
	TxHash      string
	BlockNumber uint64
}

// TransferSource lists a wallet's historical transfers in one direction.
// Implemented by the Alchemy history client.
type TransferSource interface {
	GetTransfers(ctx context.Context, wallet string, incoming bool) ([]Transfer, error)
}

// EVMPortfolio reconstructs swaps and balances for one EVM wallet.
type EVMPortfolio struct {
	wallet    string
	client    chain.Client
	transfers TransferSource
	logger    *zap.Logger
}

// NewEVMPortfolio builds a portfolio view over an EVM wallet.
func NewEVMPortfolio(wallet string, client chain.Client, transfers TransferSource, logger *zap.Logger) *EVMPortfolio {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EVMPortfolio{
		wallet:    wallet,
		client:    client,
		transfers: transfers,
		logger:    logger.With(zap.String("chain", client.Chain()), zap.String("wallet", wallet)),
	}
}

// GetSwaps joins the wallet's incoming and outgoing transfer sets by
// transaction hash. An incoming transfer with no outgoing leg in the same
// transaction is a plain receipt, not a swap, and is dropped. Output order
// follows the incoming transfer stream; sort by block number before PnL
// processing.
func (p *EVMPortfolio) GetSwaps(ctx context.Context) ([]Swap, error) {
	incoming, err := p.transfers.GetTransfers(ctx, p.wallet, true)
	if err != nil {
		return nil, fmt.Errorf("fetch incoming transfers: %w", err)
	}
	outgoing, err := p.transfers.GetTransfers(ctx, p.wallet, false)
	if err != nil {
		return nil, fmt.Errorf("fetch outgoing transfers: %w", err)
	}

	outByHash := make(map[string]Transfer, len(outgoing))
	for _, t := range outgoing {
		outByHash[t.TxHash] = t
	}

	swaps := make([]Swap, 0, len(incoming))
	for _, in := range incoming {
		out, ok := outByHash[in.TxHash]
		if !ok {
			continue
		}
		swaps = append(swaps, Swap{
			Bought:      in.Token.Amount(in.Value),
			Sold:        out.Token.Amount(out.Value),
			Hash:        in.TxHash,
			BlockNumber: in.BlockNumber,
		})
	}

	p.logger.Debug("reconstructed swaps",
		zap.Int("incoming", len(incoming)),
		zap.Int("outgoing", len(outgoing)),
		zap.Int("swaps", len(swaps)))
	return swaps, nil
}

// GetTokenBalances returns the wallet's native balance followed by the
// balance of every token it ever received.
func (p *EVMPortfolio) GetTokenBalances(ctx context.Context) ([]token.Amount, error) {
	native, err := p.client.GetNativeBalance(ctx, p.wallet)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	result := []token.Amount{native}

	incoming, err := p.transfers.GetTransfers(ctx, p.wallet, true)
	if err != nil {
		return nil, fmt.Errorf("fetch incoming transfers: %w", err)
	}

	seen := map[string]bool{}
	for _, t := range incoming {
		key := t.Token.Address
		if seen[key] || t.Token.IsNative {
			continue
		}
		seen[key] = true

		balance, err := p.client.GetTokenBalance(ctx, t.Token, p.wallet)
		if err != nil {
			p.logger.Warn("token balance lookup failed",
				zap.String("token", t.Token.Symbol),
				zap.Error(err))
			continue
		}
		result = append(result, balance)
	}
	return result, nil
}
