package replay

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/multisig-authz-go/types"
	"github.com/weisyn/multisig-authz-go/wallet"
)

type consumptionKey struct {
	consumer common.Address
	hash     common.Hash
}

// MemoryLedger 进程内重放账本（测试与单机部署）
type MemoryLedger struct {
	mu       sync.RWMutex
	consumed map[consumptionKey]uint64
	events   []ConsumedEvent
	now      func() time.Time
}

// NewMemoryLedger 创建进程内账本，now 为 nil 时使用 time.Now
func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{
		consumed: make(map[consumptionKey]uint64),
		now:      now,
	}
}

// GetConsumedAt 查询消费时间
func (l *MemoryLedger) GetConsumedAt(_ context.Context, consumer common.Address, hash common.Hash) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.consumed[consumptionKey{consumer, hash}], nil
}

// Consume 原子消费：先检查整批，再统一写入
//
// 同一批次内重复出现的哈希在第二次出现时视为已消费。
func (l *MemoryLedger) Consume(ctx context.Context, consumer wallet.Wallet, hashes []common.Hash) (*Receipt, error) {
	if consumer == nil {
		return nil, types.ErrInvalidRequest(types.LayerReplay, "consumer wallet is required")
	}
	if len(hashes) == 0 {
		return nil, types.ErrEmptyInput()
	}
	if err := ctx.Err(); err != nil {
		return nil, types.ErrTransport(types.LayerReplay, err)
	}

	from := consumer.Address()
	ts := uint64(l.now().Unix())

	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[common.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		if at := l.consumed[consumptionKey{from, h}]; at != 0 {
			return nil, types.ErrAlreadyConsumed(from.Hex(), h.Hex(), at)
		}
		if _, dup := seen[h]; dup {
			return nil, types.ErrAlreadyConsumed(from.Hex(), h.Hex(), ts)
		}
		seen[h] = struct{}{}
	}

	rcpt := &Receipt{Consumer: from, Timestamp: ts}
	for _, h := range hashes {
		l.consumed[consumptionKey{from, h}] = ts
		ev := ConsumedEvent{
			Consumer:  from,
			Hash:      h,
			Timestamp: ts,
			LogIndex:  uint(len(l.events)),
		}
		l.events = append(l.events, ev)
		rcpt.Events = append(rcpt.Events, ev)
	}
	return rcpt, nil
}

// Events 返回全部已产生的事件（副本）
func (l *MemoryLedger) Events() []ConsumedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ConsumedEvent, len(l.events))
	copy(out, l.events)
	return out
}
