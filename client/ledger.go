package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// LedgerClient 账本节点类型化客户端
// 提供类型化的 RPC 封装，避免直接使用 Call(method, params)
type LedgerClient interface {
	// ChainID 链 ID（eth_chainId）
	ChainID(ctx context.Context) (*big.Int, error)

	// CallContract 只读合约调用（eth_call，latest）
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)

	// 交易构建
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// 区块查询（number 为 nil 表示 latest）
	HeaderByNumber(ctx context.Context, number *big.Int) (*BlockHeader, error)

	// SendTransaction 广播已签名交易
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error)

	// TransactionReceipt 交易收据（尚未上链时返回 nil, nil）
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)

	// 日志
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery) (<-chan ethtypes.Log, error)

	// 底层通道（不推荐上层直接使用）
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// 连接管理
	Close() error
}

// ledgerClient LedgerClient 实现类
type ledgerClient struct {
	client Client
}

// NewLedgerClient 创建 LedgerClient 实例
func NewLedgerClient(config *Config) (LedgerClient, error) {
	c, err := NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &ledgerClient{client: c}, nil
}

// callInto 调用方法并解码 result
func (c *ledgerClient) callInto(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	raw, err := c.client.Call(ctx, method, params)
	if err != nil {
		return wrapRPCError(method, err)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return decodeError(method, err)
	}
	return nil
}

func (c *ledgerClient) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := c.callInto(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

func (c *ledgerClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if msg.To == nil {
		return nil, &LedgerError{Code: LedgerErrCodeInvalidParams, Message: "call target is required"}
	}
	var out hexutil.Bytes
	if err := c.callInto(ctx, &out, "eth_call", toCallArg(msg), "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce hexutil.Uint64
	if err := c.callInto(ctx, &nonce, "eth_getTransactionCount", account, "pending"); err != nil {
		return 0, err
	}
	return uint64(nonce), nil
}

func (c *ledgerClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip hexutil.Big
	if err := c.callInto(ctx, &tip, "eth_maxPriorityFeePerGas"); err != nil {
		return nil, err
	}
	return tip.ToInt(), nil
}

func (c *ledgerClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.callInto(ctx, &gas, "eth_estimateGas", toCallArg(msg)); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

func (c *ledgerClient) HeaderByNumber(ctx context.Context, number *big.Int) (*BlockHeader, error) {
	var raw json.RawMessage
	if err := c.callInto(ctx, &raw, "eth_getBlockByNumber", toBlockNumArg(number), false); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, &LedgerError{Code: LedgerErrCodeNotFound, Message: fmt.Sprintf("block %s not found", toBlockNumArg(number))}
	}
	var head rpcBlockHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, decodeError("eth_getBlockByNumber", err)
	}
	return head.toHeader(), nil
}

func (c *ledgerClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, &LedgerError{Code: LedgerErrCodeInvalidParams, Message: "encode transaction", Cause: err}
	}

	result, err := c.client.SendRawTransaction(ctx, hexutil.Encode(data))
	if err != nil {
		return common.Hash{}, wrapRPCError("eth_sendRawTransaction", err)
	}
	if !result.Accepted {
		return common.Hash{}, &LedgerError{
			Code:    LedgerErrCodeRPC,
			Message: fmt.Sprintf("transaction rejected: %s", result.Reason),
		}
	}
	return common.HexToHash(result.TxHash), nil
}

func (c *ledgerClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	var raw json.RawMessage
	if err := c.callInto(ctx, &raw, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil // 收据不存在（pending）
	}
	var r rpcReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, decodeError("eth_getTransactionReceipt", err)
	}
	return r.toReceipt(), nil
}

func (c *ledgerClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	var raw []rpcLog
	if err := c.callInto(ctx, &raw, "eth_getLogs", toFilterArg(q)); err != nil {
		return nil, err
	}
	logs := make([]ethtypes.Log, 0, len(raw))
	for _, l := range raw {
		logs = append(logs, l.toLog())
	}
	return logs, nil
}

func (c *ledgerClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery) (<-chan ethtypes.Log, error) {
	events, err := c.client.Subscribe(ctx, &EventFilter{Addresses: q.Addresses, Topics: q.Topics})
	if err != nil {
		return nil, wrapRPCError("eth_subscribe", err)
	}

	out := make(chan ethtypes.Log, 16)
	go func() {
		defer close(out)
		for ev := range events {
			var l rpcLog
			if err := json.Unmarshal(ev.Data, &l); err != nil {
				continue
			}
			select {
			case out <- l.toLog():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *ledgerClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.client.Call(ctx, method, params)
}

func (c *ledgerClient) Close() error {
	return c.client.Close()
}

// toCallArg 转换为 eth_call / eth_estimateGas 的调用参数
func toCallArg(msg ethereum.CallMsg) map[string]interface{} {
	arg := map[string]interface{}{}
	if msg.From != (common.Address{}) {
		arg["from"] = msg.From
	}
	if msg.To != nil {
		arg["to"] = msg.To
	}
	if len(msg.Data) > 0 {
		arg["input"] = hexutil.Bytes(msg.Data)
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	return arg
}

// toFilterArg 转换为 eth_getLogs 的过滤参数
func toFilterArg(q ethereum.FilterQuery) map[string]interface{} {
	arg := (&EventFilter{Addresses: q.Addresses, Topics: q.Topics}).toArg()
	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
		return arg
	}
	if q.FromBlock == nil {
		arg["fromBlock"] = "0x0"
	} else {
		arg["fromBlock"] = toBlockNumArg(q.FromBlock)
	}
	arg["toBlock"] = toBlockNumArg(q.ToBlock)
	return arg
}

func toBlockNumArg(number *big.Int) string {
	if number == nil || number.Sign() < 0 {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
