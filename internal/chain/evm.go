package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"swapscope/internal/token"
)

// EVMClient serves one EVM-compatible chain over JSON-RPC.
type EVMClient struct {
	chain     string
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	logger    *zap.Logger

	mu         sync.RWMutex
	tokenCache map[common.Address]token.Info
}

var _ Client = (*EVMClient)(nil)

// NewEVMClient dials the RPC endpoint and returns a client for the chain.
func NewEVMClient(ctx context.Context, chain, rpcURL string, logger *zap.Logger) (*EVMClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required for chain %s", chain)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chain, err)
	}

	return &EVMClient{
		chain:      chain,
		rpcClient:  rpcClient,
		ethClient:  ethclient.NewClient(rpcClient),
		logger:     logger,
		tokenCache: make(map[common.Address]token.Info),
	}, nil
}

// Chain returns the chain identifier.
func (c *EVMClient) Chain() string {
	return c.chain
}

// Backend exposes the underlying ethclient for transaction-level callers.
func (c *EVMClient) Backend() *ethclient.Client {
	return c.ethClient
}

// Close closes the underlying RPC client.
func (c *EVMClient) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// NormalizeAddress validates a hex address and returns its EIP-55 form.
func (c *EVMClient) NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid EVM address %q", address)
	}
	return common.HexToAddress(address).Hex(), nil
}

// GetNativeBalance returns the native coin balance of an address.
func (c *EVMClient) GetNativeBalance(ctx context.Context, address string) (token.Amount, error) {
	normalized, err := c.NormalizeAddress(address)
	if err != nil {
		return token.Amount{}, err
	}

	balance, err := c.ethClient.BalanceAt(ctx, common.HexToAddress(normalized), nil)
	if err != nil {
		return token.Amount{}, fmt.Errorf("native balance of %s: %w", normalized, err)
	}
	return token.Native(c.chain).FromBaseUnits(balance), nil
}

// GetTokenBalance returns the ERC-20 balance of an address.
func (c *EVMClient) GetTokenBalance(ctx context.Context, t token.Info, address string) (token.Amount, error) {
	if t.IsNative {
		return c.GetNativeBalance(ctx, address)
	}

	normalized, err := c.NormalizeAddress(address)
	if err != nil {
		return token.Amount{}, err
	}

	parsed, err := erc20ABIString()
	if err != nil {
		return token.Amount{}, err
	}

	contract := common.HexToAddress(t.Address)
	values, err := c.callERC20(ctx, contract, parsed, "balanceOf", common.HexToAddress(normalized))
	if err != nil {
		return token.Amount{}, fmt.Errorf("balanceOf %s for %s: %w", t.Symbol, normalized, err)
	}

	raw, err := asBigInt(values[0])
	if err != nil {
		return token.Amount{}, fmt.Errorf("balanceOf %s: %w", t.Symbol, err)
	}
	return t.FromBaseUnits(raw), nil
}

// GetTokenInfo reads symbol and decimals from the token contract. Results are
// cached per address; tokens without readable metadata fail with
// ErrTokenLookup.
func (c *EVMClient) GetTokenInfo(ctx context.Context, address string) (token.Info, error) {
	normalized, err := c.NormalizeAddress(address)
	if err != nil {
		return token.Info{}, fmt.Errorf("%w: %v", ErrTokenLookup, err)
	}
	contract := common.HexToAddress(normalized)

	c.mu.RLock()
	cached, ok := c.tokenCache[contract]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	stringABI, err := erc20ABIString()
	if err != nil {
		return token.Info{}, err
	}
	bytes32ABI, err := erc20ABIBytes32()
	if err != nil {
		return token.Info{}, err
	}

	values, err := c.callERC20(ctx, contract, stringABI, "decimals")
	if err != nil {
		return token.Info{}, fmt.Errorf("%w: decimals of %s: %v", ErrTokenLookup, normalized, err)
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return token.Info{}, fmt.Errorf("%w: decimals of %s: %v", ErrTokenLookup, normalized, err)
	}

	symbol := ""
	if values, err := c.callERC20(ctx, contract, stringABI, "symbol"); err == nil {
		if s, ok := values[0].(string); ok {
			symbol = s
		}
	} else if values, err := c.callERC20(ctx, contract, bytes32ABI, "symbol"); err == nil {
		if s, ok := bytes32ToString(values[0]); ok {
			symbol = s
		}
	} else {
		c.logger.Debug("symbol call failed", zap.String("token", normalized), zap.Error(err))
	}
	if symbol == "" {
		return token.Info{}, fmt.Errorf("%w: no symbol for %s", ErrTokenLookup, normalized)
	}

	info := token.NewInfo(symbol, normalized, decimals, c.chain)
	c.mu.Lock()
	c.tokenCache[contract] = info
	c.mu.Unlock()
	return info, nil
}

func (c *EVMClient) callERC20(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := c.ethClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("call %s: empty result", method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("decimals out of range: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

// isSolanaChain reports whether the chain identifier belongs to the Solana
// family.
func isSolanaChain(chain string) bool {
	return strings.HasPrefix(chain, "solana")
}
