package portfolio

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapscope/internal/token"
)

type stubTransferSource struct {
	incoming []Transfer
	outgoing []Transfer
}

func (s *stubTransferSource) GetTransfers(_ context.Context, _ string, incoming bool) ([]Transfer, error) {
	if incoming {
		return s.incoming, nil
	}
	return s.outgoing, nil
}

type stubChainClient struct {
	native   token.Amount
	balances map[string]token.Amount
}

func (s *stubChainClient) Chain() string { return "ethereum" }

func (s *stubChainClient) NormalizeAddress(address string) (string, error) { return address, nil }

func (s *stubChainClient) GetNativeBalance(context.Context, string) (token.Amount, error) {
	return s.native, nil
}

func (s *stubChainClient) GetTokenBalance(_ context.Context, t token.Info, _ string) (token.Amount, error) {
	return s.balances[t.Symbol], nil
}

func (s *stubChainClient) GetTokenInfo(context.Context, string) (token.Info, error) {
	return token.Info{}, nil
}

func (s *stubChainClient) Close() {}

func TestEVMGetSwapsJoinsByHash(t *testing.T) {
	source := &stubTransferSource{
		incoming: []Transfer{
			{Token: weth, Value: decimal.RequireFromString("1.5"), TxHash: "0xaaa", BlockNumber: 100},
			// Airdrop with no outgoing leg: not a swap.
			{Token: dai, Value: decimal.RequireFromString("500"), TxHash: "0xbbb", BlockNumber: 105},
			{Token: dai, Value: decimal.RequireFromString("3000"), TxHash: "0xccc", BlockNumber: 110},
		},
		outgoing: []Transfer{
			{Token: usdc, Value: decimal.RequireFromString("4500"), TxHash: "0xaaa", BlockNumber: 100},
			{Token: weth, Value: decimal.RequireFromString("1"), TxHash: "0xccc", BlockNumber: 110},
		},
	}

	p := NewEVMPortfolio("0xwallet", &stubChainClient{}, source, nil)
	swaps, err := p.GetSwaps(context.Background())
	require.NoError(t, err)
	require.Len(t, swaps, 2)

	assert.Equal(t, "0xaaa", swaps[0].Hash)
	assert.Equal(t, "WETH", swaps[0].Bought.TokenInfo.Symbol)
	assert.Equal(t, "USDC", swaps[0].Sold.TokenInfo.Symbol)
	assert.Equal(t, uint64(100), swaps[0].BlockNumber)

	assert.Equal(t, "0xccc", swaps[1].Hash)
	assert.Equal(t, "DAI", swaps[1].Bought.TokenInfo.Symbol)
	assert.Equal(t, "WETH", swaps[1].Sold.TokenInfo.Symbol)
}

func TestEVMGetTokenBalances(t *testing.T) {
	native := token.Native("ethereum")
	client := &stubChainClient{
		native: native.Amount(decimal.RequireFromString("2.5")),
		balances: map[string]token.Amount{
			"WETH": weth.Amount(decimal.RequireFromString("1.5")),
			"DAI":  dai.Amount(decimal.RequireFromString("500")),
		},
	}
	source := &stubTransferSource{
		incoming: []Transfer{
			{Token: weth, Value: decimal.RequireFromString("1.5"), TxHash: "0xaaa", BlockNumber: 100},
			// Second WETH transfer must not duplicate the balance entry.
			{Token: weth, Value: decimal.RequireFromString("0.5"), TxHash: "0xbbb", BlockNumber: 101},
			{Token: dai, Value: decimal.RequireFromString("500"), TxHash: "0xccc", BlockNumber: 102},
		},
	}

	p := NewEVMPortfolio("0xwallet", client, source, nil)
	balances, err := p.GetTokenBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 3)

	assert.True(t, balances[0].TokenInfo.IsNative)
	assert.Equal(t, "WETH", balances[1].TokenInfo.Symbol)
	assert.Equal(t, "DAI", balances[2].TokenInfo.Symbol)
}
