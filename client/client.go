package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Client 账本节点 JSON-RPC 客户端接口
type Client interface {
	// Call 调用 JSON-RPC 方法，返回原始 result
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// SendRawTransaction 发送已签名的原始交易（eth_sendRawTransaction）
	SendRawTransaction(ctx context.Context, signedTxHex string) (*SendTxResult, error)

	// Subscribe 订阅日志（eth_subscribe "logs"，仅 WebSocket 支持）
	Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error)

	// Close 关闭连接
	Close() error
}

// EventFilter 日志订阅过滤器
//
// Topics 按位置匹配，某一位置为空切片表示通配。
type EventFilter struct {
	Addresses []common.Address
	Topics    [][]common.Hash
}

// toArg 转换为 eth_subscribe / eth_getLogs 的过滤参数
func (f *EventFilter) toArg() map[string]interface{} {
	arg := map[string]interface{}{}
	if f == nil {
		return arg
	}
	if len(f.Addresses) == 1 {
		arg["address"] = f.Addresses[0]
	} else if len(f.Addresses) > 1 {
		arg["address"] = f.Addresses
	}
	if len(f.Topics) > 0 {
		topics := make([]interface{}, len(f.Topics))
		for i, position := range f.Topics {
			switch len(position) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = position[0]
			default:
				topics[i] = position
			}
		}
		arg["topics"] = topics
	}
	return arg
}

// Event 订阅推送
type Event struct {
	Subscription string
	Data         json.RawMessage // eth_subscription 的 result（日志对象）
}

// SendTxResult 交易提交结果
type SendTxResult struct {
	TxHash   string `json:"tx_hash"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"` // 拒绝原因
}

// NewClient 创建新的客户端
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Protocol {
	case ProtocolHTTP, "":
		return NewHTTPClient(config)
	case ProtocolWebSocket:
		return NewWebSocketClient(config)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", config.Protocol)
	}
}

// sendRawTransaction HTTP 与 WebSocket 共用的提交逻辑
func sendRawTransaction(ctx context.Context, c Client, signedTxHex string) (*SendTxResult, error) {
	raw, err := c.Call(ctx, "eth_sendRawTransaction", []interface{}{signedTxHex})
	if err != nil {
		if rpcErr, ok := AsError(err); ok && rpcErr.Code == ErrCodeRPCError {
			// 节点拒绝（nonce 过低、余额不足等）
			return &SendTxResult{Accepted: false, Reason: rpcErr.Message}, nil
		}
		return nil, err
	}

	var txHash common.Hash
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return nil, NewInvalidResponseError(fmt.Sprintf("decode transaction hash: %v", err))
	}
	return &SendTxResult{TxHash: txHash.Hex(), Accepted: true}, nil
}
