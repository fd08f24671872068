package trade

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapscope/internal/token"
)

// Execution states. Transitions are QUOTING → APPROVING → APPROVED →
// SWAPPING → SETTLED, with FAILED reachable from any of them.
type state string

const (
	stateQuoting   state = "QUOTING"
	stateApproving state = "APPROVING"
	stateApproved  state = "APPROVED"
	stateSwapping  state = "SWAPPING"
	stateSettled   state = "SETTLED"
	stateFailed    state = "FAILED"
)

const (
	// DefaultGasLimit is used when the chain config carries no gas settings.
	DefaultGasLimit = 200_000
	// swap transactions carry a deadline this far past the latest block.
	deadlineSlack = 300 // seconds

	defaultApprovalConfirmations = 2
	defaultSwapConfirmations     = 1
	defaultPollInterval          = 3 * time.Second
	defaultSettleTimeout         = 150 * time.Second
)

// Backend is the transaction-level chain surface the executor needs. It is
// satisfied by *ethclient.Client.
type Backend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Order describes one swap to execute. The venue fills the price and the
// router-specific call-data builder; the executor owns approval, fees,
// submission and settlement.
type Order struct {
	Base  token.Info
	Quote token.Info
	// QuoteAmount is the amount of quote token to spend.
	QuoteAmount decimal.Decimal
	SlippageBps int64
	// Price is the venue quote expressed as base tokens received per quote
	// token spent. Expected output = QuoteAmount × Price.
	Price decimal.Decimal
	// PriceImpactBps is the venue's impact estimate; zero when the venue
	// cannot estimate it (constant-product pools, aggregators).
	PriceImpactBps decimal.Decimal
	// Router is the contract approved to spend the quote token and the
	// target of the swap transaction.
	Router common.Address
	// BuildSwapData packs the venue-specific router call.
	BuildSwapData func(rawIn, minOutRaw *big.Int, deadline uint64) ([]byte, error)
}

// Config carries per-chain execution settings.
type Config struct {
	GasLimit              uint64
	ApprovalConfirmations uint64
	SwapConfirmations     uint64
	PollInterval          time.Duration
	SettleTimeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.GasLimit == 0 {
		c.GasLimit = DefaultGasLimit
	}
	if c.ApprovalConfirmations == 0 {
		c.ApprovalConfirmations = defaultApprovalConfirmations
	}
	if c.SwapConfirmations == 0 {
		c.SwapConfirmations = defaultSwapConfirmations
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.SettleTimeout == 0 {
		c.SettleTimeout = defaultSettleTimeout
	}
	return c
}

// Executor submits approve+swap transaction pairs on one EVM chain and
// settles them from receipts.
type Executor struct {
	backend Backend
	key     *ecdsa.PrivateKey
	wallet  common.Address
	chainID *big.Int
	cfg     Config
	logger  *zap.Logger
}

// NewExecutor builds an executor for a wallet key on one chain.
func NewExecutor(backend Backend, privateKeyHex string, chainID *big.Int, cfg Config, logger *zap.Logger) (*Executor, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		backend: backend,
		key:     key,
		wallet:  crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}, nil
}

// Wallet returns the executing wallet address.
func (e *Executor) Wallet() common.Address {
	return e.wallet
}

// Execute runs the swap state machine for one order. The returned Result is
// terminal: either the realized settlement amounts or the failure reason.
func (e *Executor) Execute(ctx context.Context, order Order) Result {
	quoteSpent := order.Quote.Amount(order.QuoteAmount)
	log := e.logger.With(
		zap.String("base", order.Base.Symbol),
		zap.String("quote", order.Quote.Symbol),
		zap.String("quote_amount", order.QuoteAmount.String()),
		zap.Int64("slippage_bps", order.SlippageBps),
	)

	log.Info("swap execution started", zap.String("state", string(stateQuoting)))
	if !order.Price.IsPositive() {
		return failureResult(order.Base, quoteSpent, "", fmt.Errorf("quote price must be positive, got %s", order.Price))
	}
	if !order.QuoteAmount.IsPositive() {
		return failureResult(order.Base, quoteSpent, "", fmt.Errorf("quote amount must be positive, got %s", order.QuoteAmount))
	}
	if order.BuildSwapData == nil {
		return failureResult(order.Base, quoteSpent, "", fmt.Errorf("order has no swap builder"))
	}

	rawIn := order.Quote.ToBaseUnits(order.QuoteAmount)

	// Approval leg. Once broadcast it cannot be retracted; its failure ends
	// the attempt before any swap transaction exists.
	log.Info("checking allowance", zap.String("state", string(stateApproving)))
	if err := e.ensureAllowance(ctx, order, rawIn, log); err != nil {
		return failureResult(order.Base, quoteSpent, "", fmt.Errorf("%w: %v", ErrApprovalFailed, err))
	}
	log.Info("spending approved", zap.String("state", string(stateApproved)))

	// Output bound from the venue quote.
	expected := order.QuoteAmount.Mul(order.Price)
	minOut := MinOutput(expected, order.SlippageBps)
	minOutRaw := order.Base.ToBaseUnits(minOut)

	impactWarning := ImpactExceedsBudget(order.PriceImpactBps, order.SlippageBps)
	if impactWarning {
		log.Warn("price impact consumes most of the slippage budget",
			zap.String("price_impact_bps", order.PriceImpactBps.StringFixed(2)),
			zap.Int64("slippage_bps", order.SlippageBps))
	}

	log.Info("submitting swap",
		zap.String("state", string(stateSwapping)),
		zap.String("expected_output", expected.String()),
		zap.String("min_output", minOut.String()))

	receipt, txHash, err := e.submitSwap(ctx, order, rawIn, minOutRaw)
	if err != nil {
		result := failureResult(order.Base, quoteSpent, txHash, err)
		result.PriceImpactWarning = impactWarning
		return result
	}

	if receipt.Status == types.ReceiptStatusFailed {
		reason := e.revertReason(ctx, order, rawIn, minOutRaw, receipt)
		log.Error("swap reverted", zap.String("state", string(stateFailed)), zap.String("reason", reason))
		result := failureResult(order.Base, quoteSpent, txHash, fmt.Errorf("%w: %s", ErrTransactionReverted, reason))
		result.PriceImpactWarning = impactWarning
		return result
	}

	// The receipt is authoritative: actual AMM execution price may differ
	// from the quoted price.
	realized := ReceivedAmount(receipt.Logs, common.HexToAddress(order.Base.Address), e.wallet, order.Base.Decimals)
	if !realized.IsPositive() {
		result := failureResult(order.Base, quoteSpent, txHash, fmt.Errorf("no %s transfer to wallet found in settlement receipt", order.Base.Symbol))
		result.PriceImpactWarning = impactWarning
		return result
	}

	log.Info("swap settled",
		zap.String("state", string(stateSettled)),
		zap.String("tx_hash", txHash),
		zap.String("realized_output", realized.String()))

	result := successResult(order.Base.Amount(realized), quoteSpent, txHash)
	result.PriceImpactWarning = impactWarning
	return result
}

// ensureAllowance approves the router for the raw amount when the current
// allowance is insufficient, waiting for the approval to confirm.
func (e *Executor) ensureAllowance(ctx context.Context, order Order, rawIn *big.Int, log *zap.Logger) error {
	parsed, err := erc20SpendABI()
	if err != nil {
		return err
	}

	quoteContract := common.HexToAddress(order.Quote.Address)

	data, err := parsed.Pack("allowance", e.wallet, order.Router)
	if err != nil {
		return fmt.Errorf("pack allowance: %w", err)
	}
	resp, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &quoteContract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call allowance: %w", err)
	}
	values, err := parsed.Unpack("allowance", resp)
	if err != nil {
		return fmt.Errorf("unpack allowance: %w", err)
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return fmt.Errorf("unexpected allowance type %T", values[0])
	}

	if allowance.Cmp(rawIn) >= 0 {
		log.Debug("existing allowance sufficient", zap.String("allowance", allowance.String()))
		return nil
	}

	approveData, err := parsed.Pack("approve", order.Router, rawIn)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}

	tx, err := e.signAndSend(ctx, quoteContract, approveData, nil)
	if err != nil {
		return fmt.Errorf("send approval: %w", err)
	}
	log.Info("waiting for approval confirmation", zap.String("tx_hash", tx.Hash().Hex()))

	receipt, err := e.waitMined(ctx, tx.Hash(), e.cfg.ApprovalConfirmations)
	if err != nil {
		return fmt.Errorf("await approval: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fmt.Errorf("approval transaction %s reverted", tx.Hash().Hex())
	}
	return nil
}

// submitSwap builds, signs and submits the swap transaction using a fresh
// post-approval nonce, then waits for its confirmation.
func (e *Executor) submitSwap(ctx context.Context, order Order, rawIn, minOutRaw *big.Int) (*types.Receipt, string, error) {
	header, err := e.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("latest header: %w", err)
	}
	deadline := header.Time + deadlineSlack

	data, err := order.BuildSwapData(rawIn, minOutRaw, deadline)
	if err != nil {
		return nil, "", fmt.Errorf("build swap data: %w", err)
	}

	tx, err := e.signAndSend(ctx, order.Router, data, header)
	if err != nil {
		return nil, "", fmt.Errorf("send swap: %w", err)
	}

	receipt, err := e.waitMined(ctx, tx.Hash(), e.cfg.SwapConfirmations)
	if err != nil {
		return nil, tx.Hash().Hex(), fmt.Errorf("await swap: %w", err)
	}
	return receipt, tx.Hash().Hex(), nil
}

// signAndSend signs and broadcasts a dynamic-fee transaction. Fees double the
// current base fee to tolerate one block's increase.
func (e *Executor) signAndSend(ctx context.Context, to common.Address, data []byte, header *types.Header) (*types.Transaction, error) {
	if header == nil {
		var err error
		header, err = e.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("latest header: %w", err)
		}
	}

	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	tip, err := e.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	maxFee := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	nonce, err := e.backend.PendingNonceAt(ctx, e.wallet)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	tx, err := types.SignNewTx(e.key, types.LatestSignerForChainID(e.chainID), &types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       e.cfg.GasLimit,
		To:        &to,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := e.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	return tx, nil
}

// waitMined polls for the receipt and then for the confirmation depth. It is
// the engine's only suspension point and honors context cancellation.
func (e *Executor) waitMined(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for receipt == nil {
		r, err := e.backend.TransactionReceipt(ctx, txHash)
		if err == nil && r != nil {
			receipt = r
			break
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("poll receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not mined: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}

	if confirmations <= 1 {
		return receipt, nil
	}

	target := new(big.Int).Add(receipt.BlockNumber, new(big.Int).SetUint64(confirmations-1))
	for {
		head, err := e.backend.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("poll head: %w", err)
		}
		if new(big.Int).SetUint64(head).Cmp(target) >= 0 {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not confirmed: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// revertReason replays the failed swap call at its block to decode the
// revert payload.
func (e *Executor) revertReason(ctx context.Context, order Order, rawIn, minOutRaw *big.Int, receipt *types.Receipt) string {
	header, err := e.backend.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return "execution reverted"
	}

	data, err := order.BuildSwapData(rawIn, minOutRaw, header.Time+deadlineSlack)
	if err != nil {
		return "execution reverted"
	}

	msg := ethereum.CallMsg{
		From: e.wallet,
		To:   &order.Router,
		Gas:  e.cfg.GasLimit,
		Data: data,
	}
	ret, err := e.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		return err.Error()
	}
	if reason, ok := decodeRevertPayload(ret); ok {
		return reason
	}
	return "execution reverted"
}

// errorSelector is the 4-byte selector of Error(string).
var errorSelector = [4]byte{0x08, 0xc3, 0x79, 0xa0}

func decodeRevertPayload(data []byte) (string, bool) {
	if len(data) < 4+32+32 {
		return "", false
	}
	if data[0] != errorSelector[0] || data[1] != errorSelector[1] || data[2] != errorSelector[2] || data[3] != errorSelector[3] {
		return "", false
	}
	payload := data[4:]
	length := new(big.Int).SetBytes(payload[32:64]).Uint64()
	if uint64(len(payload)) < 64+length {
		return "", false
	}
	return string(payload[64 : 64+length]), true
}
