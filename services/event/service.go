// Package event 查询与订阅重放账本合约的 Consumed 事件
package event

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/services/replay"
)

// Service Event 业务服务接口
type Service interface {
	// GetEvents 获取 Consumed 事件列表（按区块、日志顺序）
	GetEvents(ctx context.Context, filters *EventFilters) ([]*replay.ConsumedEvent, error)

	// SubscribeEvents 订阅新的 Consumed 事件（需要 WebSocket 端点）
	SubscribeEvents(ctx context.Context, filters *EventFilters) (<-chan *replay.ConsumedEvent, error)
}

// eventService Event 服务实现
type eventService struct {
	ledger  client.LedgerClient
	address common.Address
	logger  *zap.Logger
}

// NewService 创建 Event 服务
func NewService(ledger client.LedgerClient, address common.Address, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventService{
		ledger:  ledger,
		address: address,
		logger:  logger,
	}
}

// EventFilters 事件查询过滤器
type EventFilters struct {
	Consumer  *common.Address
	Hashes    []common.Hash
	FromBlock *big.Int
	ToBlock   *big.Int // nil 表示 latest
	Limit     int
	Offset    int
}

func (s *eventService) query(filters *EventFilters) ethereum.FilterQuery {
	q := ethereum.FilterQuery{Addresses: []common.Address{s.address}}
	if filters == nil {
		q.Topics = replay.ConsumedTopics(nil, nil)
		return q
	}
	q.Topics = replay.ConsumedTopics(filters.Consumer, filters.Hashes)
	q.FromBlock = filters.FromBlock
	q.ToBlock = filters.ToBlock
	return q
}

// GetEvents 获取事件列表
func (s *eventService) GetEvents(ctx context.Context, filters *EventFilters) ([]*replay.ConsumedEvent, error) {
	logs, err := s.ledger.FilterLogs(ctx, s.query(filters))
	if err != nil {
		return nil, fmt.Errorf("get events failed: %w", err)
	}

	events := make([]*replay.ConsumedEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := replay.DecodeConsumedLog(l)
		if err != nil {
			return nil, fmt.Errorf("decode event failed: %w", err)
		}
		events = append(events, ev)
	}

	return paginate(events, filters), nil
}

// SubscribeEvents 订阅事件
func (s *eventService) SubscribeEvents(ctx context.Context, filters *EventFilters) (<-chan *replay.ConsumedEvent, error) {
	logs, err := s.ledger.SubscribeFilterLogs(ctx, s.query(filters))
	if err != nil {
		return nil, fmt.Errorf("subscribe events failed: %w", err)
	}

	out := make(chan *replay.ConsumedEvent, 10)
	go func() {
		defer close(out)
		for l := range logs {
			if l.Removed {
				continue
			}
			ev, err := replay.DecodeConsumedLog(l)
			if err != nil {
				s.logger.Warn("skip undecodable log", zap.String("tx", l.TxHash.Hex()), zap.Error(err))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func paginate(events []*replay.ConsumedEvent, filters *EventFilters) []*replay.ConsumedEvent {
	if filters == nil {
		return events
	}
	if filters.Offset > 0 {
		if filters.Offset >= len(events) {
			return []*replay.ConsumedEvent{}
		}
		events = events[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(events) {
		events = events[:filters.Limit]
	}
	return events
}
