package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/weisyn/multisig-authz-go/client"
)

// DefaultReceiptPollInterval 默认收据轮询间隔
const DefaultReceiptPollInterval = 2 * time.Second

// WaitForReceipt 轮询交易收据直到上链
//
// **流程**：
// 1. 调用 eth_getTransactionReceipt，未上链时按 interval 重试
// 2. 收据状态为回滚时返回收据与错误（调用方仍可读取区块信息）
// 3. ctx 结束时返回 ctx.Err()
func WaitForReceipt(ctx context.Context, ledger client.LedgerClient, txHash common.Hash, interval time.Duration) (*client.Receipt, error) {
	if interval <= 0 {
		interval = DefaultReceiptPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := ledger.TransactionReceipt(ctx, txHash)
		if err != nil {
			return nil, fmt.Errorf("get receipt %s: %w", txHash.Hex(), err)
		}
		if receipt != nil {
			if !receipt.Succeeded() {
				return receipt, fmt.Errorf("transaction %s reverted in block %d", txHash.Hex(), receipt.BlockNumber)
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FindLogs 查找指定合约发出、首个 topic 匹配的日志（保持原始顺序）
func FindLogs(logs []ethtypes.Log, address common.Address, topic0 common.Hash) []ethtypes.Log {
	var result []ethtypes.Log
	for _, l := range logs {
		if l.Address != address || len(l.Topics) == 0 || l.Topics[0] != topic0 || l.Removed {
			continue
		}
		result = append(result, l)
	}
	return result
}
