package trade

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20SpendABIJSON = `[
  {"inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}], "name": "approve", "outputs": [{"type": "bool"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}], "name": "allowance", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20Spend     abi.ABI
	erc20SpendOnce sync.Once
	erc20SpendErr  error
)

func erc20SpendABI() (abi.ABI, error) {
	erc20SpendOnce.Do(func() {
		erc20Spend, erc20SpendErr = abi.JSON(strings.NewReader(erc20SpendABIJSON))
	})
	return erc20Spend, erc20SpendErr
}
