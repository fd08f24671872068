package portfolio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/chain"
	"swapscope/internal/token"
)

const (
	// signaturePageSize is the reverse-chronological page size for signature
	// enumeration.
	signaturePageSize = 100
	// transactionChunkSize bounds one transaction detail batch.
	transactionChunkSize = 100
)

// TokenTransfer is one SPL token movement inside a transaction.
type TokenTransfer struct {
	Mint            string
	Amount          decimal.Decimal
	FromUserAccount string
	ToUserAccount   string
}

// EnhancedTransaction is one parsed transaction with its token transfers.
type EnhancedTransaction struct {
	Signature      string
	Slot           uint64
	TokenTransfers []TokenTransfer
}

// SignatureSource enumerates a wallet's transaction signatures. Implemented
// by the Solana chain client.
type SignatureSource interface {
	GetSignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]chain.SignatureInfo, error)
}

// TransactionSource resolves signatures to parsed transactions. Implemented
// by the Helius history client.
type TransactionSource interface {
	GetTransactions(ctx context.Context, signatures []string) ([]EnhancedTransaction, error)
}

// tokenInfoSource resolves mint metadata; satisfied by chain.Client.
type tokenInfoSource interface {
	GetTokenInfo(ctx context.Context, address string) (token.Info, error)
}

// SolanaPortfolio reconstructs swaps for one Solana wallet.
type SolanaPortfolio struct {
	wallet       string
	signatures   SignatureSource
	transactions TransactionSource
	tokens       tokenInfoSource
	logger       *zap.Logger
}

// NewSolanaPortfolio builds a portfolio view over a Solana wallet.
func NewSolanaPortfolio(wallet string, signatures SignatureSource, transactions TransactionSource, tokens tokenInfoSource, logger *zap.Logger) *SolanaPortfolio {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolanaPortfolio{
		wallet:       wallet,
		signatures:   signatures,
		transactions: transactions,
		tokens:       tokens,
		logger:       logger.With(zap.String("chain", "solana"), zap.String("wallet", wallet)),
	}
}

// GetSwaps pages through the wallet's signatures newest-first until a short
// page, resolves each page to parsed transactions, and keeps the
// transactions with exactly one outbound and one inbound transfer touching
// the wallet. Output is in encounter order (reverse chronological); sort by
// block number before PnL processing.
func (p *SolanaPortfolio) GetSwaps(ctx context.Context) ([]Swap, error) {
	var (
		result   []Swap
		before   string
		lastPage = signaturePageSize
	)

	for lastPage >= signaturePageSize {
		page, err := p.signatures.GetSignaturesForAddress(ctx, p.wallet, signaturePageSize, before)
		if err != nil {
			return nil, fmt.Errorf("fetch signatures: %w", err)
		}
		if len(page) == 0 {
			break
		}
		lastPage = len(page)
		before = page[len(page)-1].Signature

		signatures := make([]string, len(page))
		for i, item := range page {
			signatures[i] = item.Signature
		}
		swaps, err := p.signaturesToSwaps(ctx, signatures)
		if err != nil {
			return nil, err
		}
		result = append(result, swaps...)
	}
	return result, nil
}

func (p *SolanaPortfolio) signaturesToSwaps(ctx context.Context, signatures []string) ([]Swap, error) {
	var result []Swap
	for start := 0; start < len(signatures); start += transactionChunkSize {
		end := start + transactionChunkSize
		if end > len(signatures) {
			end = len(signatures)
		}
		transactions, err := p.transactions.GetTransactions(ctx, signatures[start:end])
		if err != nil {
			return nil, fmt.Errorf("fetch transactions: %w", err)
		}
		for _, tx := range transactions {
			swap, ok, err := p.transactionToSwap(ctx, tx)
			if err != nil {
				return nil, err
			}
			if ok {
				result = append(result, swap)
			}
		}
	}
	return result, nil
}

// transactionToSwap selects the transaction's outbound and inbound transfer
// for the wallet. Transactions without both legs are not swaps.
func (p *SolanaPortfolio) transactionToSwap(ctx context.Context, tx EnhancedTransaction) (Swap, bool, error) {
	var out, in *TokenTransfer
	for i := range tx.TokenTransfers {
		t := &tx.TokenTransfers[i]
		if out == nil && t.FromUserAccount == p.wallet {
			out = t
		}
		if in == nil && t.ToUserAccount == p.wallet {
			in = t
		}
	}
	if out == nil || in == nil {
		return Swap{}, false, nil
	}

	soldInfo, err := p.tokens.GetTokenInfo(ctx, out.Mint)
	if err != nil {
		return Swap{}, false, fmt.Errorf("resolve mint %s: %w", out.Mint, err)
	}
	boughtInfo, err := p.tokens.GetTokenInfo(ctx, in.Mint)
	if err != nil {
		return Swap{}, false, fmt.Errorf("resolve mint %s: %w", in.Mint, err)
	}

	return Swap{
		Sold:        soldInfo.Amount(out.Amount),
		Bought:      boughtInfo.Amount(in.Amount),
		Hash:        tx.Signature,
		BlockNumber: tx.Slot,
	}, true, nil
}
