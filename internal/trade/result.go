// Package trade orchestrates approve+swap transaction pairs against a DEX
// router and settles them from on-chain receipts.
package trade

import (
	"errors"

	"github.com/shopspring/decimal"

	"swapscope/internal/token"
)

var (
	// ErrApprovalFailed marks a failed or reverted ERC-20 approval. The swap
	// leg is never attempted after it.
	ErrApprovalFailed = errors.New("trade: approval failed")
	// ErrTransactionReverted marks a swap transaction whose receipt reports
	// failure. The decoded revert reason is attached where available.
	ErrTransactionReverted = errors.New("trade: transaction reverted")
)

// Result is the terminal outcome of one swap execution attempt.
type Result struct {
	// Success reports whether the swap settled and tokens reached the wallet.
	Success bool `json:"success"`
	// BaseAmount is the realized amount received, read from the settlement
	// receipt, not the pre-trade estimate.
	BaseAmount token.Amount `json:"base_amount"`
	// QuoteAmount is the amount spent.
	QuoteAmount token.Amount `json:"quote_amount"`
	// TxHash is the swap transaction hash (not the approval).
	TxHash string `json:"tx_hash,omitempty"`
	// Error is the human-readable failure reason.
	Error string `json:"error,omitempty"`
	// PriceImpactWarning reports that the estimated price impact exceeded
	// two thirds of the slippage budget. Advisory only.
	PriceImpactWarning bool `json:"price_impact_warning,omitempty"`
}

func successResult(base token.Amount, quote token.Amount, txHash string) Result {
	return Result{
		Success:     true,
		BaseAmount:  base,
		QuoteAmount: quote,
		TxHash:      txHash,
	}
}

func failureResult(base token.Info, quote token.Amount, txHash string, err error) Result {
	return Result{
		Success:     false,
		BaseAmount:  base.Amount(decimal.Zero),
		QuoteAmount: quote,
		TxHash:      txHash,
		Error:       err.Error(),
	}
}
