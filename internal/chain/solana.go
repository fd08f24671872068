package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/token"
)

// Default Solana RPC client settings.
const (
	defaultSolanaTimeout    = 30 * time.Second
	defaultSolanaMaxRetries = 3
	defaultSolanaRetryDelay = 1 * time.Second
	defaultSolanaMaxDelay   = 10 * time.Second
)

// SolanaClient serves one Solana cluster over JSON-RPC 2.0.
type SolanaClient struct {
	chain      string
	endpoint   string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	requestID  atomic.Uint64
	logger     *zap.Logger
}

var _ Client = (*SolanaClient)(nil)

// SolanaOption configures a SolanaClient.
type SolanaOption func(*SolanaClient)

// WithSolanaTimeout sets the HTTP timeout.
func WithSolanaTimeout(d time.Duration) SolanaOption {
	return func(c *SolanaClient) {
		c.httpClient.Timeout = d
	}
}

// WithSolanaMaxRetries sets the maximum retry attempts for transport errors.
func WithSolanaMaxRetries(n int) SolanaOption {
	return func(c *SolanaClient) {
		c.maxRetries = n
	}
}

// NewSolanaClient creates a client for a Solana RPC endpoint.
func NewSolanaClient(chain, endpoint string, logger *zap.Logger, opts ...SolanaOption) (*SolanaClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("rpc url is required for chain %s", chain)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &SolanaClient{
		chain:      chain,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultSolanaTimeout},
		maxRetries: defaultSolanaMaxRetries,
		retryDelay: defaultSolanaRetryDelay,
		maxDelay:   defaultSolanaMaxDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Chain returns the chain identifier.
func (c *SolanaClient) Chain() string {
	return c.chain
}

// Close is a no-op; the client holds no persistent connection.
func (c *SolanaClient) Close() {}

// NormalizeAddress validates a base58 public key. Solana addresses have no
// checksum casing; the validated input is returned unchanged.
func (c *SolanaClient) NormalizeAddress(address string) (string, error) {
	decoded, err := base58.Decode(address)
	if err != nil {
		return "", fmt.Errorf("invalid Solana address %q: %w", address, err)
	}
	if len(decoded) != 32 {
		return "", fmt.Errorf("invalid Solana address %q: %d bytes, want 32", address, len(decoded))
	}
	return address, nil
}

// GetNativeBalance returns the SOL balance of an address.
func (c *SolanaClient) GetNativeBalance(ctx context.Context, address string) (token.Amount, error) {
	normalized, err := c.NormalizeAddress(address)
	if err != nil {
		return token.Amount{}, err
	}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{normalized}, &result); err != nil {
		return token.Amount{}, fmt.Errorf("getBalance %s: %w", normalized, err)
	}

	lamports := decimal.NewFromInt(int64(result.Value))
	native := token.Native(c.chain)
	return native.Amount(lamports.Shift(-int32(native.Decimals))), nil
}

type tokenAccountsResult struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount struct {
							Amount   string `json:"amount"`
							Decimals uint8  `json:"decimals"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// GetTokenBalance returns the SPL token balance of an address. A wallet with
// no associated token account holds zero; that is not an error.
func (c *SolanaClient) GetTokenBalance(ctx context.Context, t token.Info, address string) (token.Amount, error) {
	if t.IsNative {
		return c.GetNativeBalance(ctx, address)
	}

	normalized, err := c.NormalizeAddress(address)
	if err != nil {
		return token.Amount{}, err
	}
	if _, err := c.NormalizeAddress(t.Address); err != nil {
		return token.Amount{}, fmt.Errorf("token mint: %w", err)
	}

	params := []interface{}{
		normalized,
		map[string]string{"mint": t.Address},
		map[string]string{"encoding": "jsonParsed"},
	}

	var result tokenAccountsResult
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return token.Amount{}, fmt.Errorf("getTokenAccountsByOwner %s: %w", normalized, err)
	}

	if len(result.Value) == 0 {
		return t.Amount(decimal.Zero), nil
	}

	total := decimal.Zero
	for _, account := range result.Value {
		tokenAmount := account.Account.Data.Parsed.Info.TokenAmount
		raw, err := decimal.NewFromString(tokenAmount.Amount)
		if err != nil {
			return token.Amount{}, fmt.Errorf("token amount %q: %w", tokenAmount.Amount, err)
		}
		total = total.Add(raw.Shift(-int32(tokenAmount.Decimals)))
	}
	return t.Amount(total), nil
}

// GetTokenInfo reads mint decimals on-chain. SPL mints carry no symbol, so a
// shortened mint address stands in unless a registry supplies one upstream.
func (c *SolanaClient) GetTokenInfo(ctx context.Context, address string) (token.Info, error) {
	normalized, err := c.NormalizeAddress(address)
	if err != nil {
		return token.Info{}, fmt.Errorf("%w: %v", ErrTokenLookup, err)
	}

	params := []interface{}{
		normalized,
		map[string]string{"encoding": "jsonParsed"},
	}

	var result struct {
		Value *struct {
			Data struct {
				Parsed struct {
					Info struct {
						Decimals uint8 `json:"decimals"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return token.Info{}, fmt.Errorf("%w: getAccountInfo %s: %v", ErrTokenLookup, normalized, err)
	}
	if result.Value == nil {
		return token.Info{}, fmt.Errorf("%w: mint %s not found", ErrTokenLookup, normalized)
	}

	symbol := normalized
	if len(symbol) > 6 {
		symbol = symbol[:6]
	}
	return token.NewInfo(symbol, normalized, result.Value.Data.Parsed.Info.Decimals, c.chain), nil
}

// SignatureInfo is one entry from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}

// GetSignaturesForAddress returns up to limit transaction signatures for an
// address, newest first, starting after the before signature when set.
func (c *SolanaClient) GetSignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error) {
	normalized, err := c.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	opts := map[string]interface{}{"limit": limit}
	if before != "" {
		opts["before"] = before
	}

	var result []SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{normalized, opts}, &result); err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress %s: %w", normalized, err)
	}
	return result, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC call, retrying transport-level failures with
// exponential backoff. RPC-level errors are terminal and not retried.
func (c *SolanaClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
