package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"swapscope/internal/token"
)

var (
	// ErrInsufficientLots marks a sale with no purchased lot left to consume.
	// It indicates corrupt or incomplete upstream data and is never treated
	// as a short position.
	ErrInsufficientLots = errors.New("portfolio: no purchased lot available for sale")
	// ErrLotChronology marks a purchase consumed by a sale that precedes it.
	// The input sequence was not sorted by block number.
	ErrLotChronology = errors.New("portfolio: purchase block follows sale block")
)

// PnlMode selects which details count toward an aggregate.
type PnlMode int

const (
	PnlModeTotal PnlMode = iota
	PnlModeRealized
	PnlModeUnrealized
)

// PricingFunc returns the current price of an asset denominated in the base
// currency, used only to value unconsumed lots.
type PricingFunc func(ctx context.Context, asset, base token.Info) (decimal.Decimal, error)

// Detail is one PnL line: either a realized FIFO match between a purchase
// and a sale, or the unrealized valuation of a leftover lot.
type Detail struct {
	Asset token.Info `json:"asset"`
	// Amount is the asset quantity disposed (realized) or still held
	// (unrealized).
	Amount decimal.Decimal `json:"amount"`
	// BuyingPrice is base paid per asset for the consumed lot.
	BuyingPrice decimal.Decimal `json:"buying_price"`
	// SellingPrice is base received per asset, or the current price for
	// unrealized details.
	SellingPrice decimal.Decimal `json:"selling_price"`
	Pnl          decimal.Decimal `json:"pnl"`
	Realized     bool            `json:"realized"`
	BoughtBlock  uint64          `json:"bought_block"`
	BoughtHash   string          `json:"bought_hash"`
	// SoldBlock and SoldHash are zero for unrealized details.
	SoldBlock uint64 `json:"sold_block,omitempty"`
	SoldHash  string `json:"sold_hash,omitempty"`
}

func (d Detail) String() string {
	kind := "unrealized"
	if d.Realized {
		kind = "realized"
	}
	return fmt.Sprintf("%s %s %s: bought at %s, sold at %s, pnl %s",
		kind, d.Amount, d.Asset.Symbol, d.BuyingPrice, d.SellingPrice, d.Pnl)
}

func (d Detail) inScope(mode PnlMode) bool {
	switch mode {
	case PnlModeRealized:
		return d.Realized
	case PnlModeUnrealized:
		return !d.Realized
	default:
		return true
	}
}

// PNL holds the per-asset detail sets of one computation. It either covers
// the full input or does not exist; no partial results.
type PNL struct {
	assets  []string
	details map[string][]Detail
}

// Details returns all detail lines in scope, assets in first-encounter order.
func (p *PNL) Details(mode PnlMode) []Detail {
	var out []Detail
	for _, asset := range p.assets {
		out = append(out, lo.Filter(p.details[asset], func(d Detail, _ int) bool {
			return d.inScope(mode)
		})...)
	}
	return out
}

// PnlPerAsset sums in-scope details per asset address.
func (p *PNL) PnlPerAsset(mode PnlMode) map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal, len(p.assets))
	for _, asset := range p.assets {
		result[asset] = lo.Reduce(p.details[asset], func(acc decimal.Decimal, d Detail, _ int) decimal.Decimal {
			if d.inScope(mode) {
				return acc.Add(d.Pnl)
			}
			return acc
		}, decimal.Zero)
	}
	return result
}

// Pnl sums in-scope details across all assets.
func (p *PNL) Pnl(mode PnlMode) decimal.Decimal {
	return lo.Reduce(lo.Values(p.PnlPerAsset(mode)), func(acc, v decimal.Decimal, _ int) decimal.Decimal {
		return acc.Add(v)
	}, decimal.Zero)
}

// ComputePNL runs FIFO lot accounting over a wallet's swaps against one base
// currency. Swaps not touching the base currency are ignored. The pricing
// function is consulted once per asset that ends with unconsumed lots.
func ComputePNL(ctx context.Context, swaps []Swap, base token.Info, pricing PricingFunc) (*PNL, error) {
	ordered := make([]Swap, len(swaps))
	copy(ordered, swaps)
	SortByBlock(ordered)

	perAsset := map[string][]Swap{}
	assetInfo := map[string]token.Info{}
	var assets []string

	record := func(info token.Info, swap Swap) {
		key := info.CanonicalAddress()
		if _, seen := perAsset[key]; !seen {
			assets = append(assets, key)
			assetInfo[key] = info
		}
		perAsset[key] = append(perAsset[key], swap)
	}

	for _, swap := range ordered {
		if swap.Sold.TokenInfo.Equal(base) {
			record(swap.Bought.TokenInfo, swap)
		}
		if swap.Bought.TokenInfo.Equal(base) {
			record(swap.Sold.TokenInfo, swap)
		}
	}

	result := &PNL{assets: assets, details: make(map[string][]Detail, len(assets))}
	for _, key := range assets {
		details, err := computeFIFOForAsset(ctx, perAsset[key], assetInfo[key], base, pricing)
		if err != nil {
			return nil, fmt.Errorf("pnl for asset %s: %w", assetInfo[key].Symbol, err)
		}
		result.details[key] = details
	}
	return result, nil
}

// lot is one purchase with its unconsumed quantity. The remaining quantity
// lives here, never on the swap itself, so a partially consumed front lot
// keeps its original fill ratio for price computation.
type lot struct {
	purchase  Swap
	remaining decimal.Decimal
}

func (l lot) buyingPrice() decimal.Decimal {
	return l.purchase.Sold.Value.Div(l.purchase.Bought.Value)
}

// computeFIFOForAsset walks one asset's swaps in block order, consuming
// purchased lots front-first as sales arrive.
func computeFIFOForAsset(ctx context.Context, swaps []Swap, asset, base token.Info, pricing PricingFunc) ([]Detail, error) {
	var (
		queue   []lot
		details []Detail
	)

	for _, swap := range swaps {
		if swap.Sold.TokenInfo.Equal(base) {
			queue = append(queue, lot{purchase: swap, remaining: swap.Bought.Value})
			continue
		}

		sale := swap
		sellRemaining := sale.Sold.Value
		for sellRemaining.IsPositive() {
			if len(queue) == 0 {
				return nil, fmt.Errorf("%w: selling %s %s at block %d", ErrInsufficientLots,
					sellRemaining, asset.Symbol, sale.BlockNumber)
			}
			front := queue[0]
			if front.purchase.BlockNumber > sale.BlockNumber {
				return nil, fmt.Errorf("%w: purchase at block %d, sale at block %d", ErrLotChronology,
					front.purchase.BlockNumber, sale.BlockNumber)
			}

			disposed := decimal.Min(sellRemaining, front.remaining)
			// Multiply before dividing: the per-match proceeds and cost stay
			// exact whenever the fills are, while the unit prices may round.
			proceeds := sale.Bought.Value.Mul(disposed).Div(sale.Sold.Value)
			cost := front.purchase.Sold.Value.Mul(disposed).Div(front.purchase.Bought.Value)
			details = append(details, Detail{
				Asset:        asset,
				Amount:       disposed,
				BuyingPrice:  front.buyingPrice(),
				SellingPrice: sale.Bought.Value.Div(sale.Sold.Value),
				Pnl:          proceeds.Sub(cost),
				Realized:     true,
				BoughtBlock:  front.purchase.BlockNumber,
				BoughtHash:   front.purchase.Hash,
				SoldBlock:    sale.BlockNumber,
				SoldHash:     sale.Hash,
			})

			sellRemaining = sellRemaining.Sub(disposed)
			front.remaining = front.remaining.Sub(disposed)
			if front.remaining.IsPositive() {
				queue[0] = front
			} else {
				queue = queue[1:]
			}
		}
	}

	if len(queue) == 0 {
		return details, nil
	}

	// Value the unconsumed lots at the current price.
	currentPrice, err := pricing(ctx, asset, base)
	if err != nil {
		return nil, fmt.Errorf("price %s/%s: %w", asset.Symbol, base.Symbol, err)
	}
	for _, item := range queue {
		cost := item.purchase.Sold.Value.Mul(item.remaining).Div(item.purchase.Bought.Value)
		details = append(details, Detail{
			Asset:        asset,
			Amount:       item.remaining,
			BuyingPrice:  item.buyingPrice(),
			SellingPrice: currentPrice,
			Pnl:          item.remaining.Mul(currentPrice).Sub(cost),
			Realized:     false,
			BoughtBlock:  item.purchase.BlockNumber,
			BoughtHash:   item.purchase.Hash,
		})
	}
	return details, nil
}
