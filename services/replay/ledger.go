// Package replay 重放账本：记录 (consumer, 授权哈希) 的消费时间，保证同一授权至多被消费一次
package replay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/multisig-authz-go/types"
	"github.com/weisyn/multisig-authz-go/utils"
	"github.com/weisyn/multisig-authz-go/wallet"
)

// Ledger 重放账本接口
//
// 每个 (consumer, hash) 只有两种状态：未消费（0）与已消费（时间戳），
// 不存在从已消费回到未消费的转换。
type Ledger interface {
	// GetConsumedAt 查询消费时间（从未消费返回 0），只读
	GetConsumedAt(ctx context.Context, consumer common.Address, hash common.Hash) (uint64, error)

	// Consume 以 consumer 身份原子地消费一批哈希
	//
	// 空列表返回 EMPTY_INPUT；按输入顺序遇到的第一个已消费哈希返回
	// ALREADY_CONSUMED，此时整批不生效。成功时所有条目设为同一时间戳，
	// 并按输入顺序为每个哈希产生一个 Consumed 事件。
	Consume(ctx context.Context, consumer wallet.Wallet, hashes []common.Hash) (*Receipt, error)
}

// ConsumedEvent 一次消费事件
type ConsumedEvent struct {
	Consumer    common.Address
	Hash        common.Hash
	Timestamp   uint64
	TxHash      common.Hash // 链下账本为零值
	BlockNumber uint64
	LogIndex    uint
}

// Receipt 消费结果
type Receipt struct {
	TxHash      common.Hash // 链下账本为零值
	BlockNumber uint64
	Consumer    common.Address
	Timestamp   uint64
	Events      []ConsumedEvent
}

// ConsumedAtBatch 并发查询一批哈希的消费状态（结果与输入顺序一致）
//
// 用于 Finalize 失败后的对账：找出已执行但未记录的授权。
func ConsumedAtBatch(ctx context.Context, ledger Ledger, consumer common.Address, hashes []common.Hash) ([]types.ConsumptionEntry, error) {
	res, err := utils.BatchQuery(ctx, hashes, func(ctx context.Context, h common.Hash, _ int) (uint64, error) {
		return ledger.GetConsumedAt(ctx, consumer, h)
	}, utils.DefaultBatchConfig())
	if err != nil {
		return nil, err
	}
	if res.Failed > 0 {
		first := res.Errors[0]
		return nil, fmt.Errorf("query consumed-at for %s: %w", hashes[first.Index].Hex(), first.Error)
	}

	entries := make([]types.ConsumptionEntry, len(hashes))
	for _, item := range res.Items {
		entries[item.Index] = types.ConsumptionEntry{
			Consumer:   consumer,
			Hash:       hashes[item.Index],
			ConsumedAt: item.Value,
		}
	}
	return entries, nil
}
