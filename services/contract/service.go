// Package contract 基于 ABI 的合约只读调用与交易发送
package contract

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/utils"
	"github.com/weisyn/multisig-authz-go/wallet"
)

// GasLimitBufferPercent EstimateGas 结果上浮比例
const GasLimitBufferPercent = 20

// Service Contract 业务服务接口
type Service interface {
	// CallContract 调用合约方法（写操作）：预检、签名、广播并等待收据
	CallContract(ctx context.Context, req *CallContractRequest, wallets ...wallet.Wallet) (*CallContractResult, error)

	// QueryContract 查询合约方法（只读操作），返回解码后的输出
	QueryContract(ctx context.Context, req *QueryContractRequest) ([]interface{}, error)
}

// contractService Contract 服务实现
type contractService struct {
	ledger       client.LedgerClient
	wallet       wallet.Wallet // 可选：默认 Wallet
	pollInterval time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// Option 服务选项
type Option func(*contractService)

// WithReceiptPollInterval 设置收据轮询间隔
func WithReceiptPollInterval(d time.Duration) Option {
	return func(s *contractService) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *contractService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService 创建 Contract 服务（不带 Wallet）
func NewService(ledger client.LedgerClient, opts ...Option) Service {
	s := &contractService{
		ledger:       ledger,
		pollInterval: utils.DefaultReceiptPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceWithWallet 创建带默认 Wallet 的 Contract 服务
func NewServiceWithWallet(ledger client.LedgerClient, w wallet.Wallet, opts ...Option) Service {
	s := NewService(ledger, opts...).(*contractService)
	s.wallet = w
	return s
}

// getWallet 获取 Wallet（优先使用参数，其次使用默认 Wallet）
func (s *contractService) getWallet(wallets ...wallet.Wallet) wallet.Wallet {
	if len(wallets) > 0 && wallets[0] != nil {
		return wallets[0]
	}
	return s.wallet
}

// CallContractRequest 合约调用请求
type CallContractRequest struct {
	ContractAddress common.Address
	ABI             abi.ABI
	Method          string        // 方法名
	Args            []interface{} // 方法参数
	Value           *big.Int      // 可选：随交易转入的原生币
	SkipPreflight   bool          // 跳过 eth_call 预检
}

// CallContractResult 合约调用结果
type CallContractResult struct {
	TxHash      common.Hash
	Success     bool
	BlockHeight *uint64
	Receipt     *client.Receipt
}

// QueryContractRequest 合约查询请求（只读）
type QueryContractRequest struct {
	ContractAddress common.Address
	ABI             abi.ABI
	Method          string
	Args            []interface{}
	From            common.Address // 可选：msg.sender
}

// CallContract 调用合约方法
//
// **流程**：
// 1. 以钱包地址为 from 做 eth_call 预检（回滚错误原样返回，可用 client.RevertData 解析）
// 2. 组装 EIP-1559 交易：nonce、tip、feeCap = tip + 2*baseFee、gas 估算上浮
// 3. Wallet 签名后广播，轮询收据
func (s *contractService) CallContract(ctx context.Context, req *CallContractRequest, wallets ...wallet.Wallet) (*CallContractResult, error) {
	// 1. 参数验证
	if req == nil || req.Method == "" {
		return nil, fmt.Errorf("method name is required")
	}
	if req.ContractAddress == (common.Address{}) {
		return nil, fmt.Errorf("contract address is required")
	}

	// 2. 获取 Wallet
	w := s.getWallet(wallets...)
	if w == nil {
		return nil, fmt.Errorf("wallet is required for contract invocation")
	}

	// 3. 编码调用数据
	data, err := packCall(req.ABI, req.Method, req.Args)
	if err != nil {
		return nil, fmt.Errorf("build payload failed: %w", err)
	}
	to := req.ContractAddress
	msg := ethereum.CallMsg{From: w.Address(), To: &to, Value: req.Value, Data: data}

	// 4. 预检
	if !req.SkipPreflight {
		if _, err := s.ledger.CallContract(ctx, msg); err != nil {
			return nil, fmt.Errorf("preflight %s failed: %w", req.Method, err)
		}
	}

	// 5. 构建并签名交易
	tx, err := s.buildTx(ctx, w, msg)
	if err != nil {
		return nil, err
	}

	// 6. 提交交易
	txHash, err := s.ledger.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("send raw transaction failed: %w", err)
	}
	s.logger.Info("contract transaction sent",
		zap.String("method", req.Method),
		zap.String("to", to.Hex()),
		zap.String("tx", txHash.Hex()),
	)

	// 7. 等待收据
	rcpt, err := utils.WaitForReceipt(ctx, s.ledger, txHash, s.pollInterval)
	result := &CallContractResult{TxHash: txHash, Receipt: rcpt}
	if rcpt != nil {
		height := rcpt.BlockNumber
		result.BlockHeight = &height
		result.Success = rcpt.Succeeded()
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *contractService) buildTx(ctx context.Context, w wallet.Wallet, msg ethereum.CallMsg) (*ethtypes.Transaction, error) {
	chainID, err := s.cachedChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id failed: %w", err)
	}
	nonce, err := s.ledger.PendingNonceAt(ctx, msg.From)
	if err != nil {
		return nil, fmt.Errorf("get nonce failed: %w", err)
	}
	tip, err := s.ledger.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip failed: %w", err)
	}
	head, err := s.ledger.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get latest header failed: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := s.ledger.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas failed: %w", err)
	}
	gas += gas * GasLimitBufferPercent / 100

	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	unsigned := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        msg.To,
		Value:     value,
		Data:      msg.Data,
	})
	signed, err := w.SignTx(unsigned, chainID)
	if err != nil {
		return nil, fmt.Errorf("sign transaction failed: %w", err)
	}
	return signed, nil
}

func (s *contractService) cachedChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.ledger.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	s.chainID = id
	return id, nil
}

// QueryContract 查询合约方法（只读）
func (s *contractService) QueryContract(ctx context.Context, req *QueryContractRequest) ([]interface{}, error) {
	// 1. 参数验证
	if req == nil || req.Method == "" {
		return nil, fmt.Errorf("method name is required")
	}
	if req.ContractAddress == (common.Address{}) {
		return nil, fmt.Errorf("contract address is required")
	}

	// 2. 编码
	data, err := packCall(req.ABI, req.Method, req.Args)
	if err != nil {
		return nil, fmt.Errorf("build payload failed: %w", err)
	}

	// 3. eth_call
	to := req.ContractAddress
	out, err := s.ledger.CallContract(ctx, ethereum.CallMsg{From: req.From, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("query contract failed: %w", err)
	}

	// 4. 解码输出
	return unpackResult(req.ABI, req.Method, out)
}
