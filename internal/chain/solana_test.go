package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapscope/internal/token"
)

const (
	testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newSolanaTestServer(t *testing.T, handler func(method string, params []interface{}) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64        `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handler(req.Method, req.Params),
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestSolanaNormalizeAddress(t *testing.T) {
	client, err := NewSolanaClient("solana", "http://localhost:8899", nil)
	require.NoError(t, err)

	normalized, err := client.NormalizeAddress(testWallet)
	require.NoError(t, err)
	assert.Equal(t, testWallet, normalized)

	_, err = client.NormalizeAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	assert.Error(t, err)

	_, err = client.NormalizeAddress("abc")
	assert.Error(t, err)
}

func TestSolanaGetNativeBalance(t *testing.T) {
	server := newSolanaTestServer(t, func(method string, _ []interface{}) interface{} {
		require.Equal(t, "getBalance", method)
		return map[string]interface{}{"value": 2500000000}
	})
	defer server.Close()

	client, err := NewSolanaClient("solana", server.URL, nil)
	require.NoError(t, err)

	balance, err := client.GetNativeBalance(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "SOL", balance.TokenInfo.Symbol)
	assert.True(t, balance.Value.Equal(decimal.RequireFromString("2.5")), "got %s", balance.Value)
}

func TestSolanaGetTokenBalanceNoAccount(t *testing.T) {
	server := newSolanaTestServer(t, func(method string, _ []interface{}) interface{} {
		require.Equal(t, "getTokenAccountsByOwner", method)
		return map[string]interface{}{"value": []interface{}{}}
	})
	defer server.Close()

	client, err := NewSolanaClient("solana", server.URL, nil)
	require.NoError(t, err)

	usdc := token.NewInfo("USDC", testMint, 6, "solana")
	balance, err := client.GetTokenBalance(context.Background(), usdc, testWallet)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.Equal(t, "USDC", balance.TokenInfo.Symbol)
}

func TestSolanaGetTokenBalance(t *testing.T) {
	server := newSolanaTestServer(t, func(method string, _ []interface{}) interface{} {
		return map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"account": map[string]interface{}{
						"data": map[string]interface{}{
							"parsed": map[string]interface{}{
								"info": map[string]interface{}{
									"tokenAmount": map[string]interface{}{
										"amount":   "1234567",
										"decimals": 6,
									},
								},
							},
						},
					},
				},
			},
		}
	})
	defer server.Close()

	client, err := NewSolanaClient("solana", server.URL, nil)
	require.NoError(t, err)

	usdc := token.NewInfo("USDC", testMint, 6, "solana")
	balance, err := client.GetTokenBalance(context.Background(), usdc, testWallet)
	require.NoError(t, err)
	assert.True(t, balance.Value.Equal(decimal.RequireFromString("1.234567")), "got %s", balance.Value)
}

func TestSolanaGetTokenInfo(t *testing.T) {
	server := newSolanaTestServer(t, func(method string, _ []interface{}) interface{} {
		require.Equal(t, "getAccountInfo", method)
		return map[string]interface{}{
			"value": map[string]interface{}{
				"data": map[string]interface{}{
					"parsed": map[string]interface{}{
						"info": map[string]interface{}{"decimals": 6},
					},
				},
			},
		}
	})
	defer server.Close()

	client, err := NewSolanaClient("solana", server.URL, nil)
	require.NoError(t, err)

	info, err := client.GetTokenInfo(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), info.Decimals)
	assert.Equal(t, testMint, info.Address)
}

func TestSolanaGetTokenInfoMissingMint(t *testing.T) {
	server := newSolanaTestServer(t, func(string, []interface{}) interface{} {
		return map[string]interface{}{"value": nil}
	})
	defer server.Close()

	client, err := NewSolanaClient("solana", server.URL, nil)
	require.NoError(t, err)

	_, err = client.GetTokenInfo(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrTokenLookup)
}

func TestSolanaGetSignaturesForAddress(t *testing.T) {
	var gotBefore string
	server := newSolanaTestServer(t, func(method string, params []interface{}) interface{} {
		require.Equal(t, "getSignaturesForAddress", method)
		if len(params) > 1 {
			if opts, ok := params[1].(map[string]interface{}); ok {
				if before, ok := opts["before"].(string); ok {
					gotBefore = before
				}
			}
		}
		return []interface{}{
			map[string]interface{}{"signature": "sig1", "slot": 100},
			map[string]interface{}{"signature": "sig2", "slot": 99},
		}
	})
	defer server.Close()

	client, err := NewSolanaClient("solana", server.URL, nil)
	require.NoError(t, err)

	sigs, err := client.GetSignaturesForAddress(context.Background(), testWallet, 100, "cursor")
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "sig1", sigs[0].Signature)
	assert.Equal(t, uint64(100), sigs[0].Slot)
	assert.Equal(t, "cursor", gotBefore)
}

func TestEVMNormalizeAddress(t *testing.T) {
	client := &EVMClient{chain: "ethereum"}

	normalized, err := client.NormalizeAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	require.NoError(t, err)
	assert.Equal(t, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", normalized)

	_, err = client.NormalizeAddress(testWallet)
	assert.Error(t, err)
}
