// Package portfolio reconstructs a wallet's swap history from transfer data
// and computes realized and unrealized PnL with strict FIFO lot accounting.
package portfolio

import (
	"fmt"
	"sort"

	"swapscope/internal/token"
)

// Swap is one settled exchange of tokens by the wallet: Sold left the wallet
// and Bought arrived, in the same transaction.
type Swap struct {
	Sold        token.Amount `json:"sold"`
	Bought      token.Amount `json:"bought"`
	Hash        string       `json:"hash"`
	BlockNumber uint64       `json:"block_number"`
}

func (s Swap) String() string {
	return fmt.Sprintf("%s -> %s (%s %d %s)",
		s.Sold, s.Bought, s.Sold.TokenInfo.Chain, s.BlockNumber, s.Hash)
}

// SortByBlock orders swaps by non-decreasing block number, the order the
// FIFO engine requires. The sort is stable so same-block swaps keep their
// encounter order.
func SortByBlock(swaps []Swap) {
	sort.SliceStable(swaps, func(i, j int) bool {
		return swaps[i].BlockNumber < swaps[j].BlockNumber
	})
}

// SwapsAfterBlock returns the swaps strictly after the given block, for
// incremental persistence behind a stored cursor.
func SwapsAfterBlock(swaps []Swap, block uint64) []Swap {
	var out []Swap
	for _, swap := range swaps {
		if swap.BlockNumber > block {
			out = append(out, swap)
		}
	}
	return out
}
