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

// UniswapV3 trades against concentrated-liquidity pools. A pair can have one
// pool per fee tier; price reads and swaps go through the pool with the
// highest on-chain liquidity.
type UniswapV3 struct {
	chain      string
	deployment EVMDeployment
	feeTiers   []int64
	caller     contractCaller
	executor   *trade.Executor
	logger     *zap.Logger
}

// NewUniswapV3 builds a v3-style client for one chain. The executor may be
// nil for price-only usage.
func NewUniswapV3(chain string, deployment EVMDeployment, feeTiers []int64, caller contractCaller, executor *trade.Executor, logger *zap.Logger) *UniswapV3 {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(feeTiers) == 0 {
		feeTiers = DefaultV3FeeTiers
	}
	return &UniswapV3{
		chain:      chain,
		deployment: deployment,
		feeTiers:   feeTiers,
		caller:     caller,
		executor:   executor,
		logger:     logger.With(zap.String("venue", NameUniswapV3), zap.String("chain", chain)),
	}
}

func (u *UniswapV3) Name() string  { return NameUniswapV3 }
func (u *UniswapV3) Chain() string { return u.chain }

// poolDetails is one fee tier's pool for a pair.
type poolDetails struct {
	address   common.Address
	fee       int64
	liquidity *big.Int
}

// bestPool scans every fee tier and returns the pool with the highest
// liquidity. Ties break toward the lowest fee tier, which the ascending scan
// order gives for free.
func (u *UniswapV3) bestPool(ctx context.Context, base, quote token.Info) (*poolDetails, error) {
	factoryABI, err := venueABI("v3factory")
	if err != nil {
		return nil, err
	}
	poolABI, err := venueABI("v3pool")
	if err != nil {
		return nil, err
	}

	var best *poolDetails
	for _, fee := range u.feeTiers {
		pool, err := viewAddress(ctx, u.caller, factoryABI, u.deployment.Factory, "getPool",
			common.HexToAddress(base.Address), common.HexToAddress(quote.Address), big.NewInt(fee))
		if err != nil {
			u.logger.Debug("pool lookup failed", zap.Int64("fee_tier", fee), zap.Error(err))
			continue
		}
		if pool == zeroAddress {
			continue
		}

		liquidity, err := viewBigInt(ctx, u.caller, poolABI, pool, "liquidity")
		if err != nil {
			u.logger.Debug("liquidity read failed", zap.String("pool", pool.Hex()), zap.Error(err))
			continue
		}
		u.logger.Debug("candidate pool",
			zap.String("pool", pool.Hex()),
			zap.Int64("fee_tier", fee),
			zap.String("liquidity", liquidity.String()))

		if best == nil || liquidity.Cmp(best.liquidity) > 0 {
			best = &poolDetails{address: pool, fee: fee, liquidity: liquidity}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no v3 pool for %s/%s on %s", ErrNoLiquidity, base.Symbol, quote.Symbol, u.chain)
	}
	u.logger.Debug("selected pool",
		zap.String("pool", best.address.Hex()),
		zap.Int64("fee_tier", best.fee),
		zap.String("liquidity", best.liquidity.String()))
	return best, nil
}

// q96 is the fixed-point scale of sqrtPriceX96.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// poolPrice reads slot0 and converts sqrtPriceX96 into a quote-per-base
// price adjusted for token decimals.
func (u *UniswapV3) poolPrice(ctx context.Context, pool common.Address, base, quote token.Info) (decimal.Decimal, error) {
	poolABI, err := venueABI("v3pool")
	if err != nil {
		return decimal.Zero, err
	}
	values, err := callView(ctx, u.caller, poolABI, pool, "slot0")
	if err != nil {
		return decimal.Zero, err
	}
	sqrtPriceX96, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("slot0: unexpected result type %T", values[0])
	}
	if sqrtPriceX96.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: uninitialized v3 pool %s", ErrNoLiquidity, pool.Hex())
	}

	// Raw pool price is token1 per token0 in base units:
	// (sqrtPriceX96 / 2^96)^2.
	sqrt := decimal.NewFromBigInt(sqrtPriceX96, 0).Div(decimal.NewFromBigInt(q96, 0))
	raw := sqrt.Mul(sqrt)

	// Adjust for decimals and orient as quote per base.
	if strings.ToLower(base.Address) < strings.ToLower(quote.Address) {
		// base is token0.
		return raw.Shift(int32(base.Decimals) - int32(quote.Decimals)), nil
	}
	// base is token1: invert.
	return decimal.NewFromInt(1).Div(raw).Shift(int32(base.Decimals) - int32(quote.Decimals)), nil
}

// GetTokenPrice returns the quote-per-base price from the deepest pool.
func (u *UniswapV3) GetTokenPrice(ctx context.Context, base, quote token.Info) (decimal.Decimal, error) {
	pool, err := u.bestPool(ctx, base, quote)
	if err != nil {
		return decimal.Zero, err
	}
	return u.poolPrice(ctx, pool.address, base, quote)
}

// GetMarketsForTokens probes the factory for every pair among the tokens,
// stopping at the first fee tier with a pool for each pair.
func (u *UniswapV3) GetMarketsForTokens(ctx context.Context, tokens []token.Info) ([]Market, error) {
	factoryABI, err := venueABI("v3factory")
	if err != nil {
		return nil, err
	}

	var markets []Market
	seen := map[string]bool{}
	for i, a := range tokens {
		for _, b := range tokens[i+1:] {
			market := NewMarket(a, b)
			if seen[market.key()] {
				continue
			}
			for _, fee := range u.feeTiers {
				pool, err := viewAddress(ctx, u.caller, factoryABI, u.deployment.Factory, "getPool",
					common.HexToAddress(a.Address), common.HexToAddress(b.Address), big.NewInt(fee))
				if err != nil {
					u.logger.Warn("pool lookup failed",
						zap.String("token_a", a.Symbol),
						zap.String("token_b", b.Symbol),
						zap.Int64("fee_tier", fee),
						zap.Error(err))
					continue
				}
				if pool != zeroAddress {
					seen[market.key()] = true
					markets = append(markets, market)
					break
				}
			}
		}
	}
	sortMarkets(markets)
	return markets, nil
}

// Swap spends quoteAmount of quote for base through the router's
// exactInputSingle entry point on the deepest pool.
func (u *UniswapV3) Swap(ctx context.Context, base, quote token.Info, quoteAmount decimal.Decimal, slippageBps int64) (trade.Result, error) {
	if u.executor == nil {
		return trade.Result{}, fmt.Errorf("%w: no executor configured for %s", ErrNotSupported, NameUniswapV3)
	}

	pool, err := u.bestPool(ctx, base, quote)
	if err != nil {
		return trade.Result{}, err
	}
	price, err := u.poolPrice(ctx, pool.address, base, quote)
	if err != nil {
		return trade.Result{}, err
	}

	routerABI, err := venueABI("v3router")
	if err != nil {
		return trade.Result{}, err
	}

	rawIn := quote.ToBaseUnits(quoteAmount)
	impactBps := trade.PriceImpactBps(rawIn, pool.liquidity)
	u.logger.Info("v3 swap quote",
		zap.String("pool", pool.address.Hex()),
		zap.Int64("fee_tier", pool.fee),
		zap.String("price", price.String()),
		zap.String("price_impact_bps", impactBps.StringFixed(2)))

	tokenIn := common.HexToAddress(quote.Address)
	tokenOut := common.HexToAddress(base.Address)
	recipient := u.executor.Wallet()
	fee := big.NewInt(pool.fee)

	order := trade.Order{
		Base:           base,
		Quote:          quote,
		QuoteAmount:    quoteAmount,
		SlippageBps:    slippageBps,
		Price:          decimal.NewFromInt(1).Div(price),
		PriceImpactBps: impactBps,
		Router:         u.deployment.Router,
		BuildSwapData: func(rawIn, minOutRaw *big.Int, deadline uint64) ([]byte, error) {
			params := struct {
				TokenIn           common.Address
				TokenOut          common.Address
				Fee               *big.Int
				Recipient         common.Address
				Deadline          *big.Int
				AmountIn          *big.Int
				AmountOutMinimum  *big.Int
				SqrtPriceLimitX96 *big.Int
			}{
				TokenIn:           tokenIn,
				TokenOut:          tokenOut,
				Fee:               fee,
				Recipient:         recipient,
				Deadline:          new(big.Int).SetUint64(deadline),
				AmountIn:          rawIn,
				AmountOutMinimum:  minOutRaw,
				SqrtPriceLimitX96: new(big.Int),
			}
			return routerABI.Pack("exactInputSingle", params)
		},
	}

	return u.executor.Execute(ctx, order), nil
}
