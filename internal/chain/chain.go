// Package chain provides per-chain clients for address handling, balance
// queries and token metadata lookups.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"swapscope/internal/token"
)

var (
	// ErrUnsupportedChain marks a chain identifier with no registered client.
	ErrUnsupportedChain = errors.New("chain: unsupported chain")
	// ErrTokenLookup marks a token contract or mint that could not be read.
	ErrTokenLookup = errors.New("chain: token lookup failed")
)

// Client is the per-chain capability surface. One instance serves one chain.
type Client interface {
	// Chain returns the chain identifier this client serves.
	Chain() string

	// NormalizeAddress converts an address to its canonical form for the
	// chain (EIP-55 checksum on EVM, validated base58 on Solana).
	NormalizeAddress(address string) (string, error)

	// GetNativeBalance returns the native asset balance of an address.
	GetNativeBalance(ctx context.Context, address string) (token.Amount, error)

	// GetTokenBalance returns the balance of a token for an address. A
	// missing Solana token account yields zero, not an error.
	GetTokenBalance(ctx context.Context, t token.Info, address string) (token.Amount, error)

	// GetTokenInfo resolves token metadata from the chain.
	GetTokenInfo(ctx context.Context, address string) (token.Info, error)

	Close()
}

// Constructor builds a Client for a chain.
type Constructor func(ctx context.Context, chain string) (Client, error)

// Factory hands out one cached Client per chain. It is safe for concurrent
// use; the check-then-create path is double-checked so concurrent first use
// of a chain builds a single client.
type Factory struct {
	mu           sync.RWMutex
	clients      map[string]Client
	constructors map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		clients:      make(map[string]Client),
		constructors: make(map[string]Constructor),
	}
}

// Register installs a constructor for a chain identifier.
func (f *Factory) Register(chain string, constructor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[chain] = constructor
}

// Get returns the client for a chain, constructing it on first use.
func (f *Factory) Get(ctx context.Context, chain string) (Client, error) {
	f.mu.RLock()
	client, ok := f.clients[chain]
	f.mu.RUnlock()
	if ok {
		return client, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[chain]; ok {
		return client, nil
	}

	constructor, ok := f.constructors[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}

	client, err := constructor(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("construct client for %s: %w", chain, err)
	}
	f.clients[chain] = client
	return client, nil
}

// NewFactoryFromRPC builds a factory with a constructor per configured chain,
// selecting the chain family from the identifier.
func NewFactoryFromRPC(rpcURLs map[string]string, logger *zap.Logger) *Factory {
	factory := NewFactory()
	for chainName, rpcURL := range rpcURLs {
		chainName, rpcURL := chainName, rpcURL
		if isSolanaChain(chainName) {
			factory.Register(chainName, func(_ context.Context, chain string) (Client, error) {
				return NewSolanaClient(chain, rpcURL, logger)
			})
			continue
		}
		factory.Register(chainName, func(ctx context.Context, chain string) (Client, error) {
			return NewEVMClient(ctx, chain, rpcURL, logger)
		})
	}
	return factory
}

// Close closes all constructed clients.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, client := range f.clients {
		client.Close()
	}
	f.clients = make(map[string]Client)
}
