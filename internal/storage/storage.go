package storage

import (
	"context"

	"swapscope/internal/portfolio"
)

// Storage defines a sink for reconstructed swaps and PnL details.
type Storage interface {
	PutSwaps(ctx context.Context, chain, wallet string, swaps []portfolio.Swap) error
	PutPnlDetails(ctx context.Context, chain, wallet string, details []portfolio.Detail) error
}
