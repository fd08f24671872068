package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/token"
	"swapscope/internal/trade"
)

// DefaultJupiterQuoteURL is the public aggregator quote endpoint.
const DefaultJupiterQuoteURL = "https://quote-api.jup.ag/v6/quote"

// Jupiter quotes Solana token prices through the Jupiter aggregator API.
// It is a quote-only venue: swap submission and market enumeration are not
// supported.
type Jupiter struct {
	quoteURL string
	client   *http.Client
	logger   *zap.Logger
}

// NewJupiter builds an aggregator-quote client. A nil httpClient gets a
// 15 second timeout default.
func NewJupiter(quoteURL string, httpClient *http.Client, logger *zap.Logger) *Jupiter {
	if quoteURL == "" {
		quoteURL = DefaultJupiterQuoteURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jupiter{
		quoteURL: quoteURL,
		client:   httpClient,
		logger:   logger.With(zap.String("venue", NameJupiter), zap.String("chain", "solana")),
	}
}

func (j *Jupiter) Name() string  { return NameJupiter }
func (j *Jupiter) Chain() string { return "solana" }

type jupiterQuote struct {
	OutAmount string `json:"outAmount"`
}

// GetTokenPrice quotes a swap of exactly one base token and returns the
// aggregator's output as the quote-per-base price.
func (j *Jupiter) GetTokenPrice(ctx context.Context, base, quote token.Info) (decimal.Decimal, error) {
	if base.Chain != "solana" || quote.Chain != "solana" {
		return decimal.Zero, fmt.Errorf("%w: jupiter only quotes solana tokens, got %s and %s", ErrUnsupportedVenue, base.Chain, quote.Chain)
	}

	params := url.Values{}
	params.Set("inputMint", base.Address)
	params.Set("outputMint", quote.Address)
	params.Set("amount", base.ToBaseUnits(decimal.NewFromInt(1)).String())
	params.Set("slippageBps", strconv.Itoa(50))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.quoteURL+"?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build quote request: %w", err)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("jupiter quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("jupiter quote status %d: %s", resp.StatusCode, string(body))
	}

	var quoteResp jupiterQuote
	if err := json.Unmarshal(body, &quoteResp); err != nil {
		return decimal.Zero, fmt.Errorf("decode quote response: %w", err)
	}
	if quoteResp.OutAmount == "" {
		return decimal.Zero, fmt.Errorf("%w: no route for %s/%s", ErrNoLiquidity, base.Symbol, quote.Symbol)
	}

	outRaw, err := decimal.NewFromString(quoteResp.OutAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad outAmount %q in jupiter quote: %w", quoteResp.OutAmount, err)
	}

	price := outRaw.Shift(-int32(quote.Decimals))
	j.logger.Debug("jupiter quote",
		zap.String("base", base.Symbol),
		zap.String("quote", quote.Symbol),
		zap.String("price", price.String()))
	return price, nil
}

// GetMarketsForTokens is not supported: the aggregator routes over pools it
// does not enumerate.
func (j *Jupiter) GetMarketsForTokens(context.Context, []token.Info) ([]Market, error) {
	return nil, fmt.Errorf("%w: jupiter does not enumerate markets", ErrNotSupported)
}

// Swap is not supported; jupiter is used for quoting only.
func (j *Jupiter) Swap(context.Context, token.Info, token.Info, decimal.Decimal, int64) (trade.Result, error) {
	return trade.Result{}, fmt.Errorf("%w: jupiter swap execution", ErrNotSupported)
}
