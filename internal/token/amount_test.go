package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = NewInfo("WETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18, "ethereum")
	usdc = NewInfo("USDC", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6, "ethereum")
)

func TestBaseUnitsRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "1.5", "0.000001", "123456.789123", "42.000001"}
	for _, s := range cases {
		value := decimal.RequireFromString(s)
		amount := usdc.Amount(value)

		raw := amount.ToBaseUnits()
		back := usdc.FromBaseUnits(raw)

		equal, err := amount.Equal(back)
		require.NoError(t, err)
		assert.True(t, equal, "round trip mismatch for %s: got %s", s, back.Value)
	}
}

func TestToBaseUnitsTruncatesTowardZero(t *testing.T) {
	// 6-decimal token cannot represent the 7th decimal place.
	amount := usdc.Amount(decimal.RequireFromString("1.2345678"))
	raw := amount.ToBaseUnits()
	assert.Equal(t, big.NewInt(1234567), raw)
}

func TestFromBaseUnitsExact(t *testing.T) {
	raw, ok := new(big.Int).SetString("1000000000000000001", 10)
	require.True(t, ok)

	amount := weth.FromBaseUnits(raw)
	assert.Equal(t, "1.000000000000000001", amount.Value.String())
}

func TestArithmeticSameToken(t *testing.T) {
	a := usdc.Amount(decimal.NewFromInt(10))
	b := usdc.Amount(decimal.NewFromInt(4))

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "14", sum.Value.String())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "6", diff.Value.String())

	cmp, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)
}

func TestCrossTokenOperationsFail(t *testing.T) {
	a := usdc.Amount(decimal.NewFromInt(10))
	b := weth.Amount(decimal.NewFromInt(1))

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrIncompatibleToken)

	_, err = a.Sub(b)
	assert.ErrorIs(t, err, ErrIncompatibleToken)

	_, err = a.Cmp(b)
	assert.ErrorIs(t, err, ErrIncompatibleToken)

	_, err = a.Equal(b)
	assert.ErrorIs(t, err, ErrIncompatibleToken)

	_, err = a.LessThan(b)
	assert.ErrorIs(t, err, ErrIncompatibleToken)

	var incompatible *IncompatibleTokenError
	require.True(t, errors.As(err, &incompatible))
	assert.Equal(t, "USDC", incompatible.A.Symbol)
	assert.Equal(t, "WETH", incompatible.B.Symbol)
}

func TestInfoEqualIgnoresAddressCase(t *testing.T) {
	lower := NewInfo("USDC", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 6, "ethereum")
	assert.True(t, usdc.Equal(lower))

	otherChain := NewInfo("USDC", usdc.Address, 6, "base")
	assert.False(t, usdc.Equal(otherChain))
}

func TestInfoEqualSolanaMintsAreCaseSensitive(t *testing.T) {
	mint := NewInfo("USDC", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 6, "solana")
	sameMint := NewInfo("USDC", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 6, "solana")
	assert.True(t, mint.Equal(sameMint))

	// Base58 is case-sensitive: a case change is a different mint.
	caseTwin := NewInfo("USDC", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDT1v", 6, "solana")
	assert.False(t, mint.Equal(caseTwin))
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", mint.CanonicalAddress())
}

func TestChecksumAddress(t *testing.T) {
	lower := NewInfo("USDC", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 6, "ethereum")
	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", lower.ChecksumAddress())

	mint := NewInfo("USDC", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 6, "solana")
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", mint.ChecksumAddress())
}

func TestNative(t *testing.T) {
	eth := Native("ethereum")
	assert.True(t, eth.IsNative)
	assert.Equal(t, "ETH", eth.Symbol)
	assert.Equal(t, uint8(18), eth.Decimals)
	assert.Empty(t, eth.Address)

	sol := Native("solana")
	assert.Equal(t, "SOL", sol.Symbol)
	assert.Equal(t, uint8(9), sol.Decimals)
}
