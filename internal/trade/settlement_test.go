package trade

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var (
	settleToken  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	settleWallet = common.HexToAddress("0x1111111111111111111111111111111111111111")
	settlePool   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func transferLog(tokenAddr, from, to common.Address, amount int64) *types.Log {
	return &types.Log{
		Address: tokenAddr,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(big.NewInt(amount).Bytes(), 32),
	}
}

func TestReceivedAmountSumsPartialFills(t *testing.T) {
	logs := []*types.Log{
		transferLog(settleToken, settlePool, settleWallet, 600_000),
		transferLog(settleToken, settlePool, settleWallet, 400_000),
	}

	got := ReceivedAmount(logs, settleToken, settleWallet, 6)
	assert.True(t, got.Equal(decimal.RequireFromString("1")), "got %s", got)
}

func TestReceivedAmountIgnoresOtherTransfers(t *testing.T) {
	otherToken := common.HexToAddress("0x3333333333333333333333333333333333333333")
	otherWallet := common.HexToAddress("0x4444444444444444444444444444444444444444")

	logs := []*types.Log{
		// Wrong token.
		transferLog(otherToken, settlePool, settleWallet, 999),
		// Wrong recipient, including the outbound leg of the swap itself.
		transferLog(settleToken, settleWallet, settlePool, 500),
		transferLog(settleToken, settlePool, otherWallet, 250),
		// The one that counts.
		transferLog(settleToken, settlePool, settleWallet, 1_234_567),
	}

	got := ReceivedAmount(logs, settleToken, settleWallet, 6)
	assert.True(t, got.Equal(decimal.RequireFromString("1.234567")), "got %s", got)
}

func TestReceivedAmountNoInboundTransfer(t *testing.T) {
	logs := []*types.Log{
		transferLog(settleToken, settleWallet, settlePool, 500),
	}
	assert.True(t, ReceivedAmount(logs, settleToken, settleWallet, 6).IsZero())
	assert.True(t, ReceivedAmount(nil, settleToken, settleWallet, 6).IsZero())
}

func TestReceivedAmountSkipsMalformedLogs(t *testing.T) {
	approvalTopic := common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925")
	logs := []*types.Log{
		// Approval event on the same contract.
		{
			Address: settleToken,
			Topics: []common.Hash{
				approvalTopic,
				common.BytesToHash(settleWallet.Bytes()),
				common.BytesToHash(settlePool.Bytes()),
			},
			Data: common.LeftPadBytes(big.NewInt(7).Bytes(), 32),
		},
		// Transfer with missing indexed topics.
		{
			Address: settleToken,
			Topics:  []common.Hash{transferTopic},
			Data:    common.LeftPadBytes(big.NewInt(7).Bytes(), 32),
		},
		nil,
		transferLog(settleToken, settlePool, settleWallet, 42),
	}

	got := ReceivedAmount(logs, settleToken, settleWallet, 0)
	assert.True(t, got.Equal(decimal.NewFromInt(42)), "got %s", got)
}

func TestDecodeRevertPayload(t *testing.T) {
	// abi.encodeWithSignature("Error(string)", "UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT")
	reason := "UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT"
	payload := make([]byte, 0, 4+32+32+64)
	payload = append(payload, 0x08, 0xc3, 0x79, 0xa0)
	payload = append(payload, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	payload = append(payload, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
	payload = append(payload, common.RightPadBytes([]byte(reason), 64)...)

	got, ok := decodeRevertPayload(payload)
	assert.True(t, ok)
	assert.Equal(t, reason, got)

	_, ok = decodeRevertPayload(nil)
	assert.False(t, ok)
	_, ok = decodeRevertPayload([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.False(t, ok)
}
