package trade

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// transferTopic is the canonical ERC-20 Transfer(address,address,uint256)
// event signature hash.
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// ReceivedAmount sums the Transfer events in a settlement receipt that move
// the given token to the recipient. Multiple partial fills inside one
// transaction are all counted. The receipt amount is authoritative over any
// pre-trade estimate.
func ReceivedAmount(logs []*types.Log, tokenAddress common.Address, recipient common.Address, decimals uint8) decimal.Decimal {
	total := new(big.Int)
	for _, entry := range logs {
		if entry == nil || entry.Address != tokenAddress {
			continue
		}
		if len(entry.Topics) != 3 || entry.Topics[0] != transferTopic {
			continue
		}
		// Topics 1 and 2 are from/to as 32-byte left-padded addresses.
		to := common.BytesToAddress(entry.Topics[2].Bytes()[12:])
		if to != recipient {
			continue
		}
		amount := new(big.Int).SetBytes(entry.Data)
		total.Add(total, amount)
	}
	return decimal.NewFromBigInt(total, -int32(decimals))
}
