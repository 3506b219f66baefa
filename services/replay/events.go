package replay

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/weisyn/multisig-authz-go/utils"
)

// LedgerABIJSON 重放账本合约 ABI
const LedgerABIJSON = `[
	{"type":"function","name":"getConsumedAt","stateMutability":"view",
	 "inputs":[{"name":"consumer","type":"address"},{"name":"hash","type":"bytes32"}],
	 "outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"consume","stateMutability":"nonpayable",
	 "inputs":[{"name":"hashes","type":"bytes32[]"}],"outputs":[]},
	{"type":"event","name":"Consumed","anonymous":false,"inputs":[
		{"name":"consumer","type":"address","indexed":true},
		{"name":"hash","type":"bytes32","indexed":true},
		{"name":"timestamp","type":"uint64","indexed":true}]},
	{"type":"error","name":"EmptyInput","inputs":[]},
	{"type":"error","name":"AlreadyConsumed","inputs":[
		{"name":"consumer","type":"address"},
		{"name":"hash","type":"bytes32"},
		{"name":"consumedAt","type":"uint64"}]}
]`

var ledgerABI = utils.MustParseABI(LedgerABIJSON)

// ConsumedEventID Consumed(address,bytes32,uint64) 的 topic0
var ConsumedEventID = ledgerABI.Events["Consumed"].ID

// DecodeConsumedLog 解码 Consumed 日志（三个参数都是 indexed topic）
func DecodeConsumedLog(l ethtypes.Log) (*ConsumedEvent, error) {
	if len(l.Topics) != 4 || l.Topics[0] != ConsumedEventID {
		return nil, fmt.Errorf("log %s#%d is not a Consumed event", l.TxHash.Hex(), l.Index)
	}
	ts := l.Topics[3].Big()
	if !ts.IsUint64() {
		return nil, fmt.Errorf("timestamp topic out of range: %s", ts)
	}
	return &ConsumedEvent{
		Consumer:    common.BytesToAddress(l.Topics[1].Bytes()),
		Hash:        l.Topics[2],
		Timestamp:   ts.Uint64(),
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}, nil
}

// ConsumedTopics 构造按 consumer / hash 过滤的 topic 条件（空值表示不过滤）
func ConsumedTopics(consumer *common.Address, hashes []common.Hash) [][]common.Hash {
	topics := [][]common.Hash{{ConsumedEventID}}
	if consumer == nil && len(hashes) == 0 {
		return topics
	}
	if consumer != nil {
		topics = append(topics, []common.Hash{common.BytesToHash(consumer.Bytes())})
	} else {
		topics = append(topics, nil)
	}
	if len(hashes) > 0 {
		topics = append(topics, hashes)
	}
	return topics
}
