package client

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcHandler 伪节点方法处理函数
type rpcHandler func(params []json.RawMessage) (interface{}, *jsonRPCError)

// fakeNode 最小 JSON-RPC 伪节点，记录收到的请求
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string][]json.RawMessage
}

func newFakeNode(t *testing.T, handlers map[string]rpcHandler) (*fakeNode, *httptest.Server) {
	node := &fakeNode{handlers: handlers, calls: map[string][]json.RawMessage{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		node.mu.Lock()
		node.calls[req.Method] = append(node.calls[req.Method], req.Params...)
		h, ok := node.handlers[req.Method]
		node.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if !ok {
			resp["error"] = jsonRPCError{Code: -32601, Message: "method not found"}
		} else if result, rpcErr := h(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return node, server
}

func newTestLedger(t *testing.T, handlers map[string]rpcHandler) (*fakeNode, LedgerClient) {
	node, server := newFakeNode(t, handlers)
	ledger, err := NewLedgerClient(&Config{Endpoint: server.URL, Timeout: 5, Retry: NoRetry()})
	require.NoError(t, err)
	return node, ledger
}

func TestLedgerClient_Queries(t *testing.T) {
	_, ledger := newTestLedger(t, map[string]rpcHandler{
		"eth_chainId":              func([]json.RawMessage) (interface{}, *jsonRPCError) { return "0xaa36a7", nil },
		"eth_getTransactionCount":  func([]json.RawMessage) (interface{}, *jsonRPCError) { return "0x7", nil },
		"eth_maxPriorityFeePerGas": func([]json.RawMessage) (interface{}, *jsonRPCError) { return "0x3b9aca00", nil },
		"eth_estimateGas":          func([]json.RawMessage) (interface{}, *jsonRPCError) { return "0x5208", nil },
		"eth_getBlockByNumber": func([]json.RawMessage) (interface{}, *jsonRPCError) {
			return map[string]interface{}{
				"number":        "0x10",
				"hash":          common.HexToHash("0x01").Hex(),
				"timestamp":     "0x6553f100",
				"baseFeePerGas": "0x7",
			}, nil
		},
	})
	ctx := context.Background()

	chainID, err := ledger.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(11155111), chainID)

	nonce, err := ledger.PendingNonceAt(ctx, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)

	tip, err := ledger.SuggestGasTipCap(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000), tip)

	gas, err := ledger.EstimateGas(ctx, ethereum.CallMsg{})
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)

	head, err := ledger.HeaderByNumber(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), head.Number)
	assert.Equal(t, uint64(0x6553f100), head.Timestamp)
	assert.Equal(t, big.NewInt(7), head.BaseFee)
}

func TestLedgerClient_CallContract(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	node, ledger := newTestLedger(t, map[string]rpcHandler{
		"eth_call": func(params []json.RawMessage) (interface{}, *jsonRPCError) {
			var arg map[string]string
			_ = json.Unmarshal(params[0], &arg)
			if arg["data"] == "0xdeadbeef" {
				return nil, &jsonRPCError{Code: 3, Message: "execution reverted", Data: "0x01020304"}
			}
			return "0x" + common.Bytes2Hex(common.LeftPadBytes([]byte{2}, 32)), nil
		},
	})
	ctx := context.Background()

	out, err := ledger.CallContract(ctx, ethereum.CallMsg{To: &target, Data: []byte{0xe7, 0x52, 0x35, 0xb8}})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2), new(big.Int).SetBytes(out))

	var arg map[string]string
	require.NoError(t, json.Unmarshal(node.calls["eth_call"][0], &arg))
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", arg["to"])
	assert.Equal(t, `"latest"`, string(node.calls["eth_call"][1]))

	_, err = ledger.CallContract(ctx, ethereum.CallMsg{To: &target, Data: []byte{0xde, 0xad, 0xbe, 0xef}})
	require.Error(t, err)
	var ledgerErr *LedgerError
	require.ErrorAs(t, err, &ledgerErr)
	assert.Equal(t, LedgerErrCodeRPC, ledgerErr.Code)
	data, ok := RevertData(err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	_, err = ledger.CallContract(ctx, ethereum.CallMsg{})
	require.ErrorAs(t, err, &ledgerErr)
	assert.Equal(t, LedgerErrCodeInvalidParams, ledgerErr.Code)
}

func TestLedgerClient_SendAndReceipt(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainID := big.NewInt(1337)
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tx, err := ethtypes.SignTx(ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10),
		Gas:       50000,
		To:        &to,
	}), ethtypes.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)

	topic := crypto.Keccak256Hash([]byte("Consumed(address,bytes32,uint64)"))
	mined := false
	_, ledger := newTestLedger(t, map[string]rpcHandler{
		"eth_sendRawTransaction": func(params []json.RawMessage) (interface{}, *jsonRPCError) {
			var raw string
			_ = json.Unmarshal(params[0], &raw)
			decoded := new(ethtypes.Transaction)
			if err := decoded.UnmarshalBinary(common.FromHex(raw)); err != nil {
				return nil, &jsonRPCError{Code: -32000, Message: err.Error()}
			}
			return decoded.Hash().Hex(), nil
		},
		"eth_getTransactionReceipt": func([]json.RawMessage) (interface{}, *jsonRPCError) {
			if !mined {
				mined = true
				return nil, nil
			}
			return map[string]interface{}{
				"transactionHash": tx.Hash().Hex(),
				"status":          "0x1",
				"blockNumber":     "0x20",
				"blockHash":       common.HexToHash("0x02").Hex(),
				"gasUsed":         "0x100",
				"logs": []map[string]interface{}{{
					"address":          to.Hex(),
					"topics":           []string{topic.Hex()},
					"data":             "0x",
					"blockNumber":      "0x20",
					"transactionHash":  tx.Hash().Hex(),
					"transactionIndex": "0x0",
					"blockHash":        common.HexToHash("0x02").Hex(),
					"logIndex":         "0x3",
					"removed":          false,
				}},
			}, nil
		},
	})
	ctx := context.Background()

	hash, err := ledger.SendTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), hash)

	receipt, err := ledger.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, receipt, "pending transaction has no receipt")

	receipt, err = ledger.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, uint64(32), receipt.BlockNumber)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, topic, receipt.Logs[0].Topics[0])
	assert.Equal(t, uint(3), receipt.Logs[0].Index)
}

func TestLedgerClient_SendRejected(t *testing.T) {
	_, ledger := newTestLedger(t, map[string]rpcHandler{
		"eth_sendRawTransaction": func([]json.RawMessage) (interface{}, *jsonRPCError) {
			return nil, &jsonRPCError{Code: -32000, Message: "nonce too low"}
		},
	})
	to := common.HexToAddress("0x01")
	_, err := ledger.SendTransaction(context.Background(), ethtypes.NewTx(&ethtypes.DynamicFeeTx{ChainID: big.NewInt(1), To: &to}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestLedgerClient_FilterLogs(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	topic := common.HexToHash("0xabc")
	node, ledger := newTestLedger(t, map[string]rpcHandler{
		"eth_getLogs": func([]json.RawMessage) (interface{}, *jsonRPCError) {
			return []map[string]interface{}{{
				"address":          addr.Hex(),
				"topics":           []string{topic.Hex()},
				"data":             "0x0102",
				"blockNumber":      "0x5",
				"transactionHash":  common.HexToHash("0x09").Hex(),
				"transactionIndex": "0x1",
				"blockHash":        common.HexToHash("0x08").Hex(),
				"logIndex":         "0x0",
			}}, nil
		},
	})

	logs, err := ledger.FilterLogs(context.Background(), ethereum.FilterQuery{
		FromBlock: big.NewInt(1),
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{topic}, nil},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, addr, logs[0].Address)
	assert.Equal(t, []byte{1, 2}, logs[0].Data)
	assert.Equal(t, uint64(5), logs[0].BlockNumber)

	var arg map[string]interface{}
	require.NoError(t, json.Unmarshal(node.calls["eth_getLogs"][0], &arg))
	assert.Equal(t, "0x1", arg["fromBlock"])
	assert.Equal(t, "latest", arg["toBlock"])
	assert.Equal(t, []interface{}{topic.Hex(), nil}, arg["topics"])
}
