// Package history provides clients for the indexing services that back
// portfolio reconstruction: Alchemy asset transfers for EVM chains and
// Helius enhanced transactions for Solana.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/portfolio"
	"swapscope/internal/token"
)

// alchemyNetworks maps chain names to Alchemy network slugs.
var alchemyNetworks = map[string]string{
	"ethereum":         "eth-mainnet",
	"ethereum_sepolia": "eth-sepolia",
	"base":             "base-mainnet",
	"base_sepolia":     "base-sepolia",
}

// transferPageSize is the maxCount sent per getAssetTransfers request,
// as a hex string per the API convention.
const transferPageSize = "0x3e8"

// transferMaxRetries bounds retries of rate-limited transfer pages.
const transferMaxRetries = 3

// AlchemyClient fetches a wallet's historical token transfers. It implements
// the transfer source consumed by the EVM portfolio reconstructor.
type AlchemyClient struct {
	baseURL string
	apiKey  string
	chain   string
	client  *http.Client
	logger  *zap.Logger
}

// NewAlchemyClient builds a transfer client for one chain. An empty baseURL
// uses the network's public endpoint.
func NewAlchemyClient(chain, apiKey, baseURL string, logger *zap.Logger) (*AlchemyClient, error) {
	network, ok := alchemyNetworks[chain]
	if !ok {
		return nil, fmt.Errorf("no alchemy network for chain %s", chain)
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.g.alchemy.com/v2", network)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlchemyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		chain:   chain,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With(zap.String("service", "alchemy"), zap.String("chain", chain)),
	}, nil
}

type transferParams struct {
	FromBlock   string   `json:"fromBlock"`
	ToBlock     string   `json:"toBlock"`
	FromAddress string   `json:"fromAddress,omitempty"`
	ToAddress   string   `json:"toAddress,omitempty"`
	Category    []string `json:"category"`
	MaxCount    string   `json:"maxCount"`
	PageKey     string   `json:"pageKey,omitempty"`
}

type transferEntry struct {
	Asset       string          `json:"asset"`
	Value       decimal.Decimal `json:"value"`
	Hash        string          `json:"hash"`
	BlockNum    string          `json:"blockNum"`
	RawContract struct {
		Address string `json:"address"`
		Decimal string `json:"decimal"`
	} `json:"rawContract"`
}

type transferResult struct {
	Transfers []transferEntry `json:"transfers"`
	PageKey   string          `json:"pageKey"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  []any           `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GetTransfers lists every ERC-20 transfer into (incoming) or out of the
// wallet, following page keys until exhausted.
func (c *AlchemyClient) GetTransfers(ctx context.Context, wallet string, incoming bool) ([]portfolio.Transfer, error) {
	params := transferParams{
		FromBlock: "0x0",
		ToBlock:   "latest",
		Category:  []string{"erc20"},
		MaxCount:  transferPageSize,
	}
	if incoming {
		params.ToAddress = wallet
	} else {
		params.FromAddress = wallet
	}

	var result []portfolio.Transfer
	for {
		var page *transferResult
		err := withRetry(ctx, transferMaxRetries, 0, func(ctx context.Context) error {
			var err error
			page, err = c.fetchPage(ctx, params)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, entry := range page.Transfers {
			transfer, err := c.toTransfer(entry)
			if err != nil {
				c.logger.Warn("skipping malformed transfer",
					zap.String("hash", entry.Hash),
					zap.Error(err))
				continue
			}
			result = append(result, transfer)
		}
		if page.PageKey == "" {
			break
		}
		params.PageKey = page.PageKey
	}
	c.logger.Debug("fetched transfers",
		zap.String("wallet", wallet),
		zap.Bool("incoming", incoming),
		zap.Int("count", len(result)))
	return result, nil
}

func (c *AlchemyClient) fetchPage(ctx context.Context, params transferParams) (*transferResult, error) {
	payload, err := json.Marshal(rpcEnvelope{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "alchemy_getAssetTransfers",
		Params:  []any{params},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.apiKey, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alchemy transfer request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read transfer response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, &transientError{fmt.Errorf("alchemy status %d: %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alchemy status %d: %s", resp.StatusCode, string(body))
	}

	var envelope rpcEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode transfer response: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("alchemy error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}

	var result transferResult
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return nil, fmt.Errorf("decode transfer result: %w", err)
	}
	return &result, nil
}

func (c *AlchemyClient) toTransfer(entry transferEntry) (portfolio.Transfer, error) {
	block, err := parseHexUint(entry.BlockNum)
	if err != nil {
		return portfolio.Transfer{}, fmt.Errorf("bad block number %q: %w", entry.BlockNum, err)
	}
	decimals, err := parseHexUint(entry.RawContract.Decimal)
	if err != nil {
		return portfolio.Transfer{}, fmt.Errorf("bad decimals %q: %w", entry.RawContract.Decimal, err)
	}
	if decimals > 255 {
		return portfolio.Transfer{}, fmt.Errorf("decimals %d out of range", decimals)
	}

	return portfolio.Transfer{
		Token: token.Info{
			Symbol:   entry.Asset,
			Address:  entry.RawContract.Address,
			Decimals: uint8(decimals),
			Chain:    c.chain,
		},
		Value:       entry.Value,
		TxHash:      entry.Hash,
		BlockNumber: block,
	}, nil
}

func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}
