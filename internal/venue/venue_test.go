package venue

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapscope/internal/token"
)

var (
	wethInfo = token.Info{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, Chain: "ethereum"}
	usdcInfo = token.Info{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Chain: "ethereum"}
	daiInfo  = token.Info{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, Chain: "ethereum"}

	testDeployment = EVMDeployment{
		Factory: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		Router:  common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
	}
)

type scriptedCall struct {
	to   common.Address
	data string
}

// scriptedCaller replays canned ABI responses keyed by exact call data.
type scriptedCaller struct {
	responses map[scriptedCall][]byte
}

func newScriptedCaller() *scriptedCaller {
	return &scriptedCaller{responses: map[scriptedCall][]byte{}}
}

func (s *scriptedCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	key := scriptedCall{to: *msg.To, data: hex.EncodeToString(msg.Data)}
	resp, ok := s.responses[key]
	if !ok {
		return nil, fmt.Errorf("unscripted call to %s with %s", msg.To.Hex(), key.data)
	}
	return resp, nil
}

func (s *scriptedCaller) script(t *testing.T, abiName string, to common.Address, method string, args []any, outs []any) {
	t.Helper()
	parsed := mustVenueABI(t, abiName)
	data, err := parsed.Pack(method, args...)
	require.NoError(t, err)
	encoded, err := parsed.Methods[method].Outputs.Pack(outs...)
	require.NoError(t, err)
	s.responses[scriptedCall{to: to, data: hex.EncodeToString(data)}] = encoded
}

func mustVenueABI(t *testing.T, name string) abi.ABI {
	t.Helper()
	parsed, err := venueABI(name)
	require.NoError(t, err)
	return parsed
}

func TestNewMarketCanonicalOrder(t *testing.T) {
	m := NewMarket(wethInfo, usdcInfo)
	assert.Equal(t, "USDC", m.Base.Symbol, "lower address comes first")
	assert.Equal(t, "WETH", m.Quote.Symbol)

	// Same market regardless of argument order.
	assert.Equal(t, m, NewMarket(usdcInfo, wethInfo))
}

func TestNewUnknownVenue(t *testing.T) {
	_, err := New("sushiswap", "ethereum", Deps{})
	assert.ErrorIs(t, err, ErrUnsupportedVenue)

	_, err = New(NameUniswapV2, "ethereum", Deps{})
	assert.ErrorIs(t, err, ErrUnsupportedVenue, "no deployment configured")

	_, err = New(NameJupiter, "ethereum", Deps{})
	assert.ErrorIs(t, err, ErrUnsupportedVenue, "jupiter is solana only")
}

func TestUniswapV2Price(t *testing.T) {
	caller := newScriptedCaller()
	pair := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")

	weth := common.HexToAddress(wethInfo.Address)
	usdc := common.HexToAddress(usdcInfo.Address)

	caller.script(t, "v2factory", testDeployment.Factory, "getPair",
		[]any{weth, usdc}, []any{pair})

	// USDC is token0 (lower address). 3,000,000 USDC vs 1,000 WETH.
	reserveUSDC, _ := new(big.Int).SetString("3000000000000", 10)
	reserveWETH, _ := new(big.Int).SetString("1000000000000000000000", 10)
	caller.script(t, "v2pair", pair, "getReserves",
		nil, []any{reserveUSDC, reserveWETH, uint32(0)})

	client := NewUniswapV2("ethereum", testDeployment, caller, nil, nil)
	price, err := client.GetTokenPrice(context.Background(), wethInfo, usdcInfo)
	require.NoError(t, err)
	assert.Equal(t, "3000", price.String(), "3000 USDC per WETH")
}

func TestUniswapV2PriceNoPair(t *testing.T) {
	caller := newScriptedCaller()
	caller.script(t, "v2factory", testDeployment.Factory, "getPair",
		[]any{common.HexToAddress(wethInfo.Address), common.HexToAddress(usdcInfo.Address)},
		[]any{common.Address{}})

	client := NewUniswapV2("ethereum", testDeployment, caller, nil, nil)
	_, err := client.GetTokenPrice(context.Background(), wethInfo, usdcInfo)
	assert.ErrorIs(t, err, ErrNoLiquidity)
}

func TestUniswapV2Markets(t *testing.T) {
	caller := newScriptedCaller()
	pair := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")

	weth := common.HexToAddress(wethInfo.Address)
	usdc := common.HexToAddress(usdcInfo.Address)
	dai := common.HexToAddress(daiInfo.Address)

	caller.script(t, "v2factory", testDeployment.Factory, "getPair", []any{weth, usdc}, []any{pair})
	caller.script(t, "v2factory", testDeployment.Factory, "getPair", []any{weth, dai}, []any{common.Address{}})
	caller.script(t, "v2factory", testDeployment.Factory, "getPair", []any{usdc, dai}, []any{common.Address{}})

	client := NewUniswapV2("ethereum", testDeployment, caller, nil, nil)
	markets, err := client.GetMarketsForTokens(context.Background(), []token.Info{wethInfo, usdcInfo, daiInfo})
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "USDC/WETH", markets[0].String())
}

func TestUniswapV2MarketsDedupesRepeatedTokens(t *testing.T) {
	caller := newScriptedCaller()
	pair := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")

	weth := common.HexToAddress(wethInfo.Address)
	usdc := common.HexToAddress(usdcInfo.Address)

	caller.script(t, "v2factory", testDeployment.Factory, "getPair", []any{weth, usdc}, []any{pair})
	caller.script(t, "v2factory", testDeployment.Factory, "getPair", []any{weth, weth}, []any{common.Address{}})

	client := NewUniswapV2("ethereum", testDeployment, caller, nil, nil)
	markets, err := client.GetMarketsForTokens(context.Background(), []token.Info{wethInfo, usdcInfo, wethInfo})
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "USDC/WETH", markets[0].String())
}

func TestUniswapV3BestPoolPicksHighestLiquidity(t *testing.T) {
	caller := newScriptedCaller()
	weth := common.HexToAddress(wethInfo.Address)
	usdc := common.HexToAddress(usdcInfo.Address)

	shallowPool := common.HexToAddress("0x1000000000000000000000000000000000000001")
	deepPool := common.HexToAddress("0x1000000000000000000000000000000000000002")

	caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(100)}, []any{common.Address{}})
	caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(500)}, []any{shallowPool})
	caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(3000)}, []any{deepPool})
	caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(10000)}, []any{common.Address{}})

	caller.script(t, "v3pool", shallowPool, "liquidity", nil, []any{big.NewInt(1_000)})
	caller.script(t, "v3pool", deepPool, "liquidity", nil, []any{big.NewInt(50_000)})

	client := NewUniswapV3("ethereum", testDeployment, nil, caller, nil, nil)
	pool, err := client.bestPool(context.Background(), wethInfo, usdcInfo)
	require.NoError(t, err)
	assert.Equal(t, deepPool, pool.address)
	assert.Equal(t, int64(3000), pool.fee)
}

func TestUniswapV3BestPoolTieBreaksToLowestFee(t *testing.T) {
	caller := newScriptedCaller()
	weth := common.HexToAddress(wethInfo.Address)
	usdc := common.HexToAddress(usdcInfo.Address)

	lowFeePool := common.HexToAddress("0x1000000000000000000000000000000000000001")
	highFeePool := common.HexToAddress("0x1000000000000000000000000000000000000002")

	caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(100)}, []any{common.Address{}})
	caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(500)}, []any{lowFeePool})
	caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(3000)}, []any{highFeePool})
	caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(10000)}, []any{common.Address{}})

	caller.script(t, "v3pool", lowFeePool, "liquidity", nil, []any{big.NewInt(50_000)})
	caller.script(t, "v3pool", highFeePool, "liquidity", nil, []any{big.NewInt(50_000)})

	client := NewUniswapV3("ethereum", testDeployment, nil, caller, nil, nil)
	pool, err := client.bestPool(context.Background(), wethInfo, usdcInfo)
	require.NoError(t, err)
	assert.Equal(t, lowFeePool, pool.address)
	assert.Equal(t, int64(500), pool.fee)
}

func TestUniswapV3PoolPrice(t *testing.T) {
	caller := newScriptedCaller()
	pool := common.HexToAddress("0x1000000000000000000000000000000000000001")

	// sqrtPriceX96 = 2 × 2^96 encodes a raw price of 4 token1 per token0.
	sqrtPrice := new(big.Int).Lsh(big.NewInt(2), 96)
	slot0 := []any{sqrtPrice, big.NewInt(0), uint16(0), uint16(0), uint16(0), uint8(0), false}
	caller.script(t, "v3pool", pool, "slot0", nil, slot0)

	client := NewUniswapV3("ethereum", testDeployment, nil, caller, nil, nil)

	// DAI (token0, 18 decimals) priced in WETH (token1, 18 decimals).
	price, err := client.poolPrice(context.Background(), pool, daiInfo, wethInfo)
	require.NoError(t, err)
	assert.Equal(t, "4", price.String())

	// Reversed orientation inverts the price.
	price, err = client.poolPrice(context.Background(), pool, wethInfo, daiInfo)
	require.NoError(t, err)
	assert.Equal(t, "0.25", price.String())
}

func TestUniswapV3NoPool(t *testing.T) {
	caller := newScriptedCaller()
	weth := common.HexToAddress(wethInfo.Address)
	usdc := common.HexToAddress(usdcInfo.Address)
	for _, fee := range DefaultV3FeeTiers {
		caller.script(t, "v3factory", testDeployment.Factory, "getPool", []any{weth, usdc, big.NewInt(fee)}, []any{common.Address{}})
	}

	client := NewUniswapV3("ethereum", testDeployment, nil, caller, nil, nil)
	_, err := client.GetTokenPrice(context.Background(), wethInfo, usdcInfo)
	assert.ErrorIs(t, err, ErrNoLiquidity)
}
