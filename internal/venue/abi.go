package venue

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const v2FactoryABIJSON = `[
  {"inputs": [{"name": "tokenA", "type": "address"}, {"name": "tokenB", "type": "address"}], "name": "getPair", "outputs": [{"name": "pair", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

const v2PairABIJSON = `[
  {"inputs": [], "name": "getReserves", "outputs": [{"name": "reserve0", "type": "uint112"}, {"name": "reserve1", "type": "uint112"}, {"name": "blockTimestampLast", "type": "uint32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"}
]`

const v2RouterABIJSON = `[
  {"inputs": [
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMin", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactTokensForTokens", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "nonpayable", "type": "function"}
]`

const v3FactoryABIJSON = `[
  {"inputs": [{"name": "tokenA", "type": "address"}, {"name": "tokenB", "type": "address"}, {"name": "fee", "type": "uint24"}], "name": "getPool", "outputs": [{"name": "pool", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

const v3PoolABIJSON = `[
  {"inputs": [], "name": "slot0", "outputs": [
    {"name": "sqrtPriceX96", "type": "uint160"},
    {"name": "tick", "type": "int24"},
    {"name": "observationIndex", "type": "uint16"},
    {"name": "observationCardinality", "type": "uint16"},
    {"name": "observationCardinalityNext", "type": "uint16"},
    {"name": "feeProtocol", "type": "uint8"},
    {"name": "unlocked", "type": "bool"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "liquidity", "outputs": [{"type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"}
]`

const v3RouterABIJSON = `[
  {"inputs": [{"components": [
    {"name": "tokenIn", "type": "address"},
    {"name": "tokenOut", "type": "address"},
    {"name": "fee", "type": "uint24"},
    {"name": "recipient", "type": "address"},
    {"name": "deadline", "type": "uint256"},
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMinimum", "type": "uint256"},
    {"name": "sqrtPriceLimitX96", "type": "uint160"}
  ], "name": "params", "type": "tuple"}], "name": "exactInputSingle", "outputs": [{"name": "amountOut", "type": "uint256"}], "stateMutability": "payable", "type": "function"}
]`

var (
	venueABIs    = map[string]abi.ABI{}
	venueABIOnce sync.Once
	venueABIErr  error
)

func loadVenueABIs() error {
	venueABIOnce.Do(func() {
		for name, raw := range map[string]string{
			"v2factory": v2FactoryABIJSON,
			"v2pair":    v2PairABIJSON,
			"v2router":  v2RouterABIJSON,
			"v3factory": v3FactoryABIJSON,
			"v3pool":    v3PoolABIJSON,
			"v3router":  v3RouterABIJSON,
		} {
			parsed, err := abi.JSON(strings.NewReader(raw))
			if err != nil {
				venueABIErr = err
				return
			}
			venueABIs[name] = parsed
		}
	})
	return venueABIErr
}

func venueABI(name string) (abi.ABI, error) {
	if err := loadVenueABIs(); err != nil {
		return abi.ABI{}, err
	}
	return venueABIs[name], nil
}
