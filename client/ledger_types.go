package client

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// BlockHeader 区块头（只保留验证与交易构建需要的字段）
type BlockHeader struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
	BaseFee   *big.Int // 伦敦升级前的链为 nil
}

// Receipt 交易收据
type Receipt struct {
	TxHash      common.Hash
	Status      uint64 // 1 成功，0 回滚
	BlockNumber uint64
	BlockHash   common.Hash
	GasUsed     uint64
	Logs        []ethtypes.Log
}

// Succeeded 交易是否执行成功
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ethtypes.ReceiptStatusSuccessful
}

// rpcBlockHeader eth_getBlockByNumber 的响应（fullTx=false）
type rpcBlockHeader struct {
	Number        hexutil.Uint64 `json:"number"`
	Hash          common.Hash    `json:"hash"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
}

func (h *rpcBlockHeader) toHeader() *BlockHeader {
	header := &BlockHeader{
		Number:    uint64(h.Number),
		Hash:      h.Hash,
		Timestamp: uint64(h.Timestamp),
	}
	if h.BaseFeePerGas != nil {
		header.BaseFee = h.BaseFeePerGas.ToInt()
	}
	return header
}

// rpcReceipt eth_getTransactionReceipt 的响应
type rpcReceipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	Status      hexutil.Uint64 `json:"status"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	BlockHash   common.Hash    `json:"blockHash"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
	Logs        []rpcLog       `json:"logs"`
}

func (r *rpcReceipt) toReceipt() *Receipt {
	receipt := &Receipt{
		TxHash:      r.TxHash,
		Status:      uint64(r.Status),
		BlockNumber: uint64(r.BlockNumber),
		BlockHash:   r.BlockHash,
		GasUsed:     uint64(r.GasUsed),
		Logs:        make([]ethtypes.Log, 0, len(r.Logs)),
	}
	for _, l := range r.Logs {
		receipt.Logs = append(receipt.Logs, l.toLog())
	}
	return receipt
}

// rpcLog 日志对象（eth_getLogs、收据、eth_subscription 共用）
type rpcLog struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	TxIndex     hexutil.Uint   `json:"transactionIndex"`
	BlockHash   common.Hash    `json:"blockHash"`
	Index       hexutil.Uint   `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

func (l rpcLog) toLog() ethtypes.Log {
	return ethtypes.Log{
		Address:     l.Address,
		Topics:      l.Topics,
		Data:        l.Data,
		BlockNumber: uint64(l.BlockNumber),
		TxHash:      l.TxHash,
		TxIndex:     uint(l.TxIndex),
		BlockHash:   l.BlockHash,
		Index:       uint(l.Index),
		Removed:     l.Removed,
	}
}
