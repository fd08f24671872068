package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/portfolio"
)

// DefaultHeliusTransactionURL is the enhanced transactions endpoint.
const DefaultHeliusTransactionURL = "https://api.helius.xyz/v0/transactions"

// heliusBatchLimit is the API's per-request signature cap.
const heliusBatchLimit = 100

// HeliusClient resolves transaction signatures to parsed transactions. It
// implements the transaction source consumed by the Solana portfolio
// reconstructor.
type HeliusClient struct {
	transactionURL string
	apiKey         string
	client         *http.Client
	logger         *zap.Logger
}

// NewHeliusClient builds an enhanced-transaction client. An empty
// transactionURL uses the public endpoint.
func NewHeliusClient(apiKey, transactionURL string, logger *zap.Logger) *HeliusClient {
	if transactionURL == "" {
		transactionURL = DefaultHeliusTransactionURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeliusClient{
		transactionURL: transactionURL,
		apiKey:         apiKey,
		client:         &http.Client{Timeout: 30 * time.Second},
		logger:         logger.With(zap.String("service", "helius")),
	}
}

type heliusTokenTransfer struct {
	FromUserAccount string          `json:"fromUserAccount"`
	ToUserAccount   string          `json:"toUserAccount"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
	Mint            string          `json:"mint"`
}

type heliusTransaction struct {
	Signature      string                `json:"signature"`
	Slot           uint64                `json:"slot"`
	TokenTransfers []heliusTokenTransfer `json:"tokenTransfers"`
}

// GetTransactions fetches parsed detail for up to 100 signatures.
func (c *HeliusClient) GetTransactions(ctx context.Context, signatures []string) ([]portfolio.EnhancedTransaction, error) {
	if len(signatures) > heliusBatchLimit {
		return nil, fmt.Errorf("helius accepts at most %d signatures per request, got %d", heliusBatchLimit, len(signatures))
	}
	if len(signatures) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string]any{"transactions": signatures})
	if err != nil {
		return nil, fmt.Errorf("marshal transaction request: %w", err)
	}

	var transactions []heliusTransaction
	err = withRetry(ctx, transferMaxRetries, 0, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.transactionURL+"?api-key="+c.apiKey, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build transaction request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("helius transaction request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read transaction response: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return &transientError{fmt.Errorf("helius status %d: %s", resp.StatusCode, string(body))}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("helius status %d: %s", resp.StatusCode, string(body))
		}

		transactions = transactions[:0]
		if err := json.Unmarshal(body, &transactions); err != nil {
			return fmt.Errorf("decode transaction response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]portfolio.EnhancedTransaction, len(transactions))
	for i, tx := range transactions {
		transfers := make([]portfolio.TokenTransfer, len(tx.TokenTransfers))
		for j, t := range tx.TokenTransfers {
			transfers[j] = portfolio.TokenTransfer{
				Mint:            t.Mint,
				Amount:          t.TokenAmount,
				FromUserAccount: t.FromUserAccount,
				ToUserAccount:   t.ToUserAccount,
			}
		}
		out[i] = portfolio.EnhancedTransaction{
			Signature:      tx.Signature,
			Slot:           tx.Slot,
			TokenTransfers: transfers,
		}
	}
	c.logger.Debug("fetched transactions", zap.Int("requested", len(signatures)), zap.Int("returned", len(out)))
	return out, nil
}
