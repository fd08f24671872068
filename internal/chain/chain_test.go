package chain

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapscope/internal/token"
)

type stubClient struct {
	chain string
}

func (s *stubClient) Chain() string { return s.chain }
func (s *stubClient) NormalizeAddress(address string) (string, error) {
	return address, nil
}
func (s *stubClient) GetNativeBalance(context.Context, string) (token.Amount, error) {
	return token.Amount{}, nil
}
func (s *stubClient) GetTokenBalance(context.Context, token.Info, string) (token.Amount, error) {
	return token.Amount{}, nil
}
func (s *stubClient) GetTokenInfo(context.Context, string) (token.Info, error) {
	return token.Info{}, nil
}
func (s *stubClient) Close() {}

func TestFactoryUnsupportedChain(t *testing.T) {
	factory := NewFactory()
	_, err := factory.Get(context.Background(), "tron")
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestFactoryReturnsCachedClient(t *testing.T) {
	var constructed atomic.Int32
	factory := NewFactory()
	factory.Register("ethereum", func(_ context.Context, chain string) (Client, error) {
		constructed.Add(1)
		return &stubClient{chain: chain}, nil
	})

	first, err := factory.Get(context.Background(), "ethereum")
	require.NoError(t, err)
	second, err := factory.Get(context.Background(), "ethereum")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), constructed.Load())
}

func TestFactoryConcurrentFirstUse(t *testing.T) {
	var constructed atomic.Int32
	factory := NewFactory()
	factory.Register("base", func(_ context.Context, chain string) (Client, error) {
		constructed.Add(1)
		return &stubClient{chain: chain}, nil
	})

	const goroutines = 16
	clients := make([]Client, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := factory.Get(context.Background(), "base")
			if err != nil {
				t.Error(err)
				return
			}
			clients[i] = client
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), constructed.Load(), "only one client constructed under concurrent first use")
	for _, client := range clients {
		assert.Same(t, clients[0], client)
	}
}

func TestNewFactoryFromRPCRegistersFamilies(t *testing.T) {
	factory := NewFactoryFromRPC(map[string]string{
		"ethereum": "http://localhost:8545",
		"solana":   "http://localhost:8899",
	}, nil)

	client, err := factory.Get(context.Background(), "solana")
	require.NoError(t, err)
	_, ok := client.(*SolanaClient)
	assert.True(t, ok)

	_, err = factory.Get(context.Background(), "polygon")
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}
