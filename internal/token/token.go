// Package token provides the token identity and exact-precision amount model.
// All amounts are decimal.Decimal; float64 is never used for money.
package token

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func init() {
	// 18-decimal assets need headroom well beyond the library default of 16.
	if decimal.DivisionPrecision < 38 {
		decimal.DivisionPrecision = 38
	}
}

// Native token symbols per chain.
var nativeSymbols = map[string]string{
	"ethereum":         "ETH",
	"ethereum_sepolia": "ETH",
	"base":             "ETH",
	"solana":           "SOL",
	"solana_devnet":    "SOL",
}

// Info describes a token on a specific chain. Identity is (Address, Chain);
// the symbol is display metadata only. The zero Address marks the native asset.
type Info struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Chain    string `json:"chain"`
	IsNative bool   `json:"is_native"`
}

// NewInfo builds an Info for a contract or mint address.
func NewInfo(symbol, address string, decimals uint8, chain string) Info {
	return Info{
		Symbol:   symbol,
		Address:  address,
		Decimals: decimals,
		Chain:    chain,
	}
}

// Native returns the native asset of the chain (ETH, SOL). The address is
// empty; balance lookups special-case it.
func Native(chain string) Info {
	symbol, ok := nativeSymbols[chain]
	if !ok {
		symbol = "NATIVE"
	}
	decimals := uint8(18)
	if strings.HasPrefix(chain, "solana") {
		decimals = 9
	}
	return Info{
		Symbol:   symbol,
		Decimals: decimals,
		Chain:    chain,
		IsNative: true,
	}
}

// CanonicalAddress returns the comparison form of the address: lowercased
// hex on EVM chains, unchanged on Solana where base58 is case-sensitive.
func (t Info) CanonicalAddress() string {
	if strings.HasPrefix(t.Chain, "solana") {
		return t.Address
	}
	return strings.ToLower(t.Address)
}

// Equal reports whether two Infos refer to the same token. EVM addresses
// compare case-insensitively so checksummed and lowercase forms match;
// Solana mints compare exactly.
func (t Info) Equal(other Info) bool {
	return t.Chain == other.Chain && t.CanonicalAddress() == other.CanonicalAddress()
}

// ChecksumAddress returns the EIP-55 form of the address. Solana addresses
// are case-sensitive base58 and are returned unchanged.
func (t Info) ChecksumAddress() string {
	if strings.HasPrefix(t.Chain, "solana") || t.Address == "" {
		return t.Address
	}
	return common.HexToAddress(t.Address).Hex()
}

// ToBaseUnits converts a decimal value to the token's integer base-unit
// representation, truncating toward zero. This is the only place precision is
// dropped, and only for transmission.
func (t Info) ToBaseUnits(value decimal.Decimal) *big.Int {
	return value.Shift(int32(t.Decimals)).Truncate(0).BigInt()
}

// FromBaseUnits converts an integer base-unit value back to a decimal amount.
// The conversion is exact.
func (t Info) FromBaseUnits(raw *big.Int) Amount {
	if raw == nil {
		raw = new(big.Int)
	}
	value := decimal.NewFromBigInt(raw, -int32(t.Decimals))
	return Amount{TokenInfo: t, Value: value}
}

// Amount pairs an Info with an exact decimal quantity.
func (t Info) Amount(value decimal.Decimal) Amount {
	return Amount{TokenInfo: t, Value: value}
}

func (t Info) String() string {
	if t.IsNative {
		return t.Symbol + " (" + t.Chain + " native)"
	}
	return t.Symbol + " (" + t.Chain + " " + t.Address + ")"
}
