package trade

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10000

// MinOutput applies a slippage tolerance in basis points to an expected
// output: expected × (10000 − slippageBps) / 10000.
func MinOutput(expected decimal.Decimal, slippageBps int64) decimal.Decimal {
	multiplier := decimal.NewFromInt(bpsDenominator - slippageBps).
		Div(decimal.NewFromInt(bpsDenominator))
	return expected.Mul(multiplier)
}

// PriceImpactBps estimates the price impact of a trade in basis points as the
// raw input size relative to the pool liquidity.
func PriceImpactBps(rawInput *big.Int, poolLiquidity *big.Int) decimal.Decimal {
	if poolLiquidity == nil || poolLiquidity.Sign() <= 0 {
		return decimal.Zero
	}
	input := decimal.NewFromBigInt(rawInput, 0)
	liquidity := decimal.NewFromBigInt(poolLiquidity, 0)
	return input.Mul(decimal.NewFromInt(bpsDenominator)).Div(liquidity)
}

// ImpactExceedsBudget reports whether the estimated price impact eats more
// than two thirds of the slippage tolerance, leaving little room for price
// movement before settlement. The caller treats this as a warning, not a
// rejection.
func ImpactExceedsBudget(impactBps decimal.Decimal, slippageBps int64) bool {
	if impactBps.IsZero() {
		return false
	}
	budget := decimal.NewFromInt(slippageBps).
		Mul(decimal.NewFromInt(2)).
		Div(decimal.NewFromInt(3))
	return impactBps.GreaterThan(budget)
}
