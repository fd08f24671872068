// Package venue provides clients for on-chain liquidity venues. Each protocol
// variant (constant-product pools, concentrated-liquidity pools, aggregator
// quotes) implements the same Client surface so callers never branch on the
// concrete venue type.
package venue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/chain"
	"swapscope/internal/token"
	"swapscope/internal/trade"
)

var (
	// ErrUnsupportedVenue marks an unknown venue identifier or a venue/chain
	// combination with no deployment. Fatal to the call, never retried.
	ErrUnsupportedVenue = errors.New("venue: unsupported venue")
	// ErrNoLiquidity marks a pair with no pool or market on the venue. The
	// caller may retry against a different venue.
	ErrNoLiquidity = errors.New("venue: no liquidity for pair")
	// ErrNotSupported marks an operation the venue cannot perform.
	ErrNotSupported = errors.New("venue: operation not supported")
)

// Market is a tradeable pair with on-chain liquidity. Base is always the
// token with the lower address so the same market is never reported twice.
type Market struct {
	Base  token.Info `json:"base"`
	Quote token.Info `json:"quote"`
}

func (m Market) String() string {
	return m.Base.Symbol + "/" + m.Quote.Symbol
}

// key identifies the unordered pair; duplicated input tokens must not yield
// the same market twice.
func (m Market) key() string {
	return strings.ToLower(m.Base.Address) + "/" + strings.ToLower(m.Quote.Address)
}

// NewMarket canonicalizes a pair: the token with the lower address becomes
// the base.
func NewMarket(a, b token.Info) Market {
	if strings.ToLower(a.Address) < strings.ToLower(b.Address) {
		return Market{Base: a, Quote: b}
	}
	return Market{Base: b, Quote: a}
}

// sortMarkets orders markets deterministically by base then quote address.
func sortMarkets(markets []Market) {
	sort.Slice(markets, func(i, j int) bool {
		bi, bj := strings.ToLower(markets[i].Base.Address), strings.ToLower(markets[j].Base.Address)
		if bi != bj {
			return bi < bj
		}
		return strings.ToLower(markets[i].Quote.Address) < strings.ToLower(markets[j].Quote.Address)
	})
}

// Client is the capability surface of one venue on one chain.
type Client interface {
	// Name returns the venue identifier, e.g. "uniswap_v3".
	Name() string
	// Chain returns the chain the client serves.
	Chain() string
	// GetTokenPrice returns the current price of base denominated in quote
	// (quote tokens per base token). Returns ErrNoLiquidity when no pool or
	// market exists for the pair.
	GetTokenPrice(ctx context.Context, base, quote token.Info) (decimal.Decimal, error)
	// GetMarketsForTokens returns the canonicalized pairs among the given
	// tokens that have liquidity on the venue.
	GetMarketsForTokens(ctx context.Context, tokens []token.Info) ([]Market, error)
	// Swap spends quoteAmount of quote to buy base, bounded by slippageBps.
	// The returned Result is terminal. Returns ErrNotSupported on quote-only
	// venues.
	Swap(ctx context.Context, base, quote token.Info, quoteAmount decimal.Decimal, slippageBps int64) (trade.Result, error)
}

// Venue identifiers accepted by New.
const (
	NameUniswapV2 = "uniswap_v2"
	NameUniswapV3 = "uniswap_v3"
	NameJupiter   = "jupiter"
)

// EVMDeployment holds the per-chain contract addresses of an EVM venue.
type EVMDeployment struct {
	Factory common.Address
	Router  common.Address
}

// Settings carries the venue deployments and tunables, usually loaded from
// configuration.
type Settings struct {
	// UniswapV2 and UniswapV3 map chain name to deployment addresses.
	UniswapV2 map[string]EVMDeployment
	UniswapV3 map[string]EVMDeployment
	// V3FeeTiers lists the fee tiers scanned for concentrated-liquidity
	// pools, in hundredths of a bip.
	V3FeeTiers []int64
	// JupiterQuoteURL is the aggregator quote endpoint.
	JupiterQuoteURL string
}

// DefaultV3FeeTiers are the canonical concentrated-liquidity fee tiers.
var DefaultV3FeeTiers = []int64{100, 500, 3000, 10000}

// Deps bundles the collaborators a venue client needs. Executor may be nil
// for price-only usage; Swap then fails cleanly.
type Deps struct {
	Chains   *chain.Factory
	Executor *trade.Executor
	Settings Settings
	Logger   *zap.Logger
}

// New builds a client for the named venue on the given chain. Unknown venue
// names and venue/chain combinations with no deployment return
// ErrUnsupportedVenue.
func New(name, chainName string, deps Deps) (Client, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	switch name {
	case NameUniswapV2:
		deployment, ok := deps.Settings.UniswapV2[chainName]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no %s deployment", ErrUnsupportedVenue, name, chainName)
		}
		backend, err := evmBackend(deps.Chains, chainName)
		if err != nil {
			return nil, err
		}
		return NewUniswapV2(chainName, deployment, backend, deps.Executor, deps.Logger), nil

	case NameUniswapV3:
		deployment, ok := deps.Settings.UniswapV3[chainName]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no %s deployment", ErrUnsupportedVenue, name, chainName)
		}
		backend, err := evmBackend(deps.Chains, chainName)
		if err != nil {
			return nil, err
		}
		tiers := deps.Settings.V3FeeTiers
		if len(tiers) == 0 {
			tiers = DefaultV3FeeTiers
		}
		return NewUniswapV3(chainName, deployment, tiers, backend, deps.Executor, deps.Logger), nil

	case NameJupiter:
		if chainName != "solana" {
			return nil, fmt.Errorf("%w: jupiter only supports solana, got %s", ErrUnsupportedVenue, chainName)
		}
		return NewJupiter(deps.Settings.JupiterQuoteURL, nil, deps.Logger), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVenue, name)
	}
}

func evmBackend(chains *chain.Factory, chainName string) (contractCaller, error) {
	if chains == nil {
		return nil, fmt.Errorf("%w: no chain factory configured", ErrUnsupportedVenue)
	}
	client, err := chains.Get(context.Background(), chainName)
	if err != nil {
		return nil, err
	}
	evm, ok := client.(*chain.EVMClient)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an EVM chain", ErrUnsupportedVenue, chainName)
	}
	return evm.Backend(), nil
}
