package integration

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/utils"
	"github.com/weisyn/multisig-authz-go/wallet"
)

// CreateTestWallet 创建测试钱包（导出函数）
func CreateTestWallet(t *testing.T) wallet.Wallet {
	w, err := wallet.NewWallet()
	require.NoError(t, err, "创建测试钱包失败")
	return w
}

// RandomHash 随机授权哈希（每次运行都是未消费状态）
func RandomHash(t *testing.T) common.Hash {
	var h common.Hash
	_, err := rand.Read(h[:])
	require.NoError(t, err)
	return h
}

// WaitForReceiptWithTest 等待交易确认（导出函数）
func WaitForReceiptWithTest(t *testing.T, lc client.LedgerClient, txHash common.Hash) *client.Receipt {
	ctx, cancel := context.WithTimeout(context.Background(), TransactionConfirmTimeout)
	defer cancel()

	rcpt, err := utils.WaitForReceipt(ctx, lc, txHash, TransactionConfirmInterval)
	require.NoError(t, err, "等待交易确认失败: %s", txHash.Hex())
	require.NotNil(t, rcpt, "交易收据为空: %s", txHash.Hex())
	return rcpt
}

// VerifyTransactionSuccess 验证交易成功
func VerifyTransactionSuccess(t *testing.T, rcpt *client.Receipt) {
	require.NotNil(t, rcpt, "交易收据为空")
	assert.True(t, rcpt.Succeeded(), "交易执行失败")
	assert.NotZero(t, rcpt.BlockNumber, "交易未打包进区块")
}
