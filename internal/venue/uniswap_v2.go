package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/token"
	"swapscope/internal/trade"
)

// UniswapV2 trades against constant-product pools. Prices come from pair
// reserves; each pair has exactly one pool.
type UniswapV2 struct {
	chain      string
	deployment EVMDeployment
	caller     contractCaller
	executor   *trade.Executor
	logger     *zap.Logger
}

// NewUniswapV2 builds a v2-style client for one chain. The executor may be
// nil for price-only usage.
func NewUniswapV2(chain string, deployment EVMDeployment, caller contractCaller, executor *trade.Executor, logger *zap.Logger) *UniswapV2 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UniswapV2{
		chain:      chain,
		deployment: deployment,
		caller:     caller,
		executor:   executor,
		logger:     logger.With(zap.String("venue", NameUniswapV2), zap.String("chain", chain)),
	}
}

func (u *UniswapV2) Name() string  { return NameUniswapV2 }
func (u *UniswapV2) Chain() string { return u.chain }

// pairFor asks the factory for the pair address, zero when none exists.
func (u *UniswapV2) pairFor(ctx context.Context, a, b token.Info) (common.Address, error) {
	parsed, err := venueABI("v2factory")
	if err != nil {
		return common.Address{}, err
	}
	return viewAddress(ctx, u.caller, parsed, u.deployment.Factory, "getPair",
		common.HexToAddress(a.Address), common.HexToAddress(b.Address))
}

// GetTokenPrice returns the pair mid price from the current reserves,
// denominated as quote tokens per base token.
func (u *UniswapV2) GetTokenPrice(ctx context.Context, base, quote token.Info) (decimal.Decimal, error) {
	pair, err := u.pairFor(ctx, base, quote)
	if err != nil {
		return decimal.Zero, err
	}
	if pair == zeroAddress {
		return decimal.Zero, fmt.Errorf("%w: no v2 pair for %s/%s on %s", ErrNoLiquidity, base.Symbol, quote.Symbol, u.chain)
	}

	parsed, err := venueABI("v2pair")
	if err != nil {
		return decimal.Zero, err
	}
	values, err := callView(ctx, u.caller, parsed, pair, "getReserves")
	if err != nil {
		return decimal.Zero, err
	}
	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return decimal.Zero, fmt.Errorf("getReserves: unexpected result types %T, %T", values[0], values[1])
	}
	if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty v2 reserves for %s/%s", ErrNoLiquidity, base.Symbol, quote.Symbol)
	}

	// Pair reserves are ordered by token address: token0 < token1.
	baseReserve, quoteReserve := reserve0, reserve1
	if strings.ToLower(base.Address) > strings.ToLower(quote.Address) {
		baseReserve, quoteReserve = reserve1, reserve0
	}

	baseAmount := decimal.NewFromBigInt(baseReserve, -int32(base.Decimals))
	quoteAmount := decimal.NewFromBigInt(quoteReserve, -int32(quote.Decimals))
	price := quoteAmount.Div(baseAmount)

	u.logger.Debug("v2 mid price",
		zap.String("pair", pair.Hex()),
		zap.String("base", base.Symbol),
		zap.String("quote", quote.Symbol),
		zap.String("price", price.String()))
	return price, nil
}

// GetMarketsForTokens probes the factory for every pair among the tokens.
func (u *UniswapV2) GetMarketsForTokens(ctx context.Context, tokens []token.Info) ([]Market, error) {
	var markets []Market
	seen := map[string]bool{}
	for i, a := range tokens {
		for _, b := range tokens[i+1:] {
			market := NewMarket(a, b)
			if seen[market.key()] {
				continue
			}
			pair, err := u.pairFor(ctx, a, b)
			if err != nil {
				u.logger.Warn("pair lookup failed",
					zap.String("token_a", a.Symbol),
					zap.String("token_b", b.Symbol),
					zap.Error(err))
				continue
			}
			if pair != zeroAddress {
				seen[market.key()] = true
				markets = append(markets, market)
			}
		}
	}
	sortMarkets(markets)
	return markets, nil
}

// Swap spends quoteAmount of quote for base through the router's
// swapExactTokensForTokens entry point.
func (u *UniswapV2) Swap(ctx context.Context, base, quote token.Info, quoteAmount decimal.Decimal, slippageBps int64) (trade.Result, error) {
	if u.executor == nil {
		return trade.Result{}, fmt.Errorf("%w: no executor configured for %s", ErrNotSupported, NameUniswapV2)
	}

	price, err := u.GetTokenPrice(ctx, base, quote)
	if err != nil {
		return trade.Result{}, err
	}

	parsed, err := venueABI("v2router")
	if err != nil {
		return trade.Result{}, err
	}
	path := []common.Address{common.HexToAddress(quote.Address), common.HexToAddress(base.Address)}
	recipient := u.executor.Wallet()

	order := trade.Order{
		Base:        base,
		Quote:       quote,
		QuoteAmount: quoteAmount,
		SlippageBps: slippageBps,
		// Execution wants base-per-quote: how much base one quote buys.
		Price:  decimal.NewFromInt(1).Div(price),
		Router: u.deployment.Router,
		BuildSwapData: func(rawIn, minOutRaw *big.Int, deadline uint64) ([]byte, error) {
			return parsed.Pack("swapExactTokensForTokens",
				rawIn, minOutRaw, path, recipient, new(big.Int).SetUint64(deadline))
		},
	}

	return u.executor.Execute(ctx, order), nil
}
