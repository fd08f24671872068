package venue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var zeroAddress = common.Address{}

// contractCaller is the read-only chain surface EVM venues use for pool
// lookups and price reads. Satisfied by *ethclient.Client.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// callView packs, calls and unpacks a single view method.
func callView(ctx context.Context, caller contractCaller, parsed abi.ABI, contract common.Address, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func viewAddress(ctx context.Context, caller contractCaller, parsed abi.ABI, contract common.Address, method string, args ...any) (common.Address, error) {
	values, err := callView(ctx, caller, parsed, contract, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected result type %T", method, values[0])
	}
	return addr, nil
}

func viewBigInt(ctx context.Context, caller contractCaller, parsed abi.ABI, contract common.Address, method string, args ...any) (*big.Int, error) {
	values, err := callView(ctx, caller, parsed, contract, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, values[0])
	}
	return n, nil
}
