// Package multisig 法定人数与签名验证
package multisig

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/services/registry"
	"github.com/weisyn/multisig-authz-go/types"
	"github.com/weisyn/multisig-authz-go/utils"
)

// VerifyRequest 验证请求
type VerifyRequest struct {
	Wallet        common.Address // 期望的多签钱包
	ChainID       *big.Int       // 钱包所在链
	ContentHash   string         // 授权哈希（注册服务中的 messageHash）
	MessageDigest common.Hash    // isValidSignature 的 bytes32 参数
}

// Service 法定人数与签名验证服务接口
type Service interface {
	// Verify 取回提议消息并验证确认数量与聚合签名
	//
	// 只有消息存在、钱包一致、确认数量达到门限且钱包认可聚合签名时才返回 Allow。
	Verify(ctx context.Context, req VerifyRequest) (*types.ProposedMessage, *types.Allow, error)

	// Threshold 查询钱包门限
	Threshold(ctx context.Context, wallet common.Address) (int, error)

	// Owners 查询钱包所有者
	Owners(ctx context.Context, wallet common.Address) ([]common.Address, error)
}

// multisigService 验证服务实现
type multisigService struct {
	network  client.Network
	registry registry.Service
	order    AggregationOrder
	logger   *zap.Logger
}

// Option 可选项
type Option func(*multisigService)

// WithAggregationOrder 设置本地聚合排序方式
func WithAggregationOrder(order AggregationOrder) Option {
	return func(s *multisigService) { s.order = order }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *multisigService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService 创建验证服务
//
// network 用于钱包的只读调用，registry 用于取回提议消息；
// 二者应来自同一执行环境（直连或沙箱）。
func NewService(network client.Network, reg registry.Service, opts ...Option) Service {
	s := &multisigService{
		network:  network,
		registry: reg,
		order:    OrderBySigner,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *multisigService) Verify(ctx context.Context, req VerifyRequest) (*types.ProposedMessage, *types.Allow, error) {
	// 1. 参数验证
	if req.Wallet == (common.Address{}) {
		return nil, nil, types.ErrInvalidRequest(types.LayerMultisig, "wallet address is required")
	}
	if req.ChainID == nil || req.ChainID.Sign() <= 0 {
		return nil, nil, types.ErrInvalidRequest(types.LayerMultisig, "chain id is required")
	}

	// 2. 取回提议消息
	msg, err := s.registry.GetMessage(ctx, req.ContentHash)
	if err != nil {
		return nil, nil, err
	}

	// 3. 钱包一致
	if !utils.EqualAddress(msg.Safe, req.Wallet.Hex()) {
		return nil, nil, types.ErrWrongWallet(req.Wallet.Hex(), msg.Safe)
	}

	// 4. 门限
	threshold, err := s.Threshold(ctx, req.Wallet)
	if err != nil {
		return nil, nil, err
	}

	current := len(msg.Confirmations)
	if current < threshold {
		return nil, nil, types.ErrInsufficientSignatures(current, threshold)
	}

	// 5. 聚合签名
	aggregate, err := AggregateSignatures(msg, s.order)
	if err != nil {
		return nil, nil, types.ErrInvalidSignature(err.Error(), current)
	}
	signature, err := hexutil.Decode(aggregate)
	if err != nil {
		return nil, nil, types.ErrInvalidSignature(fmt.Sprintf("aggregate signature is not hex: %v", err), current)
	}

	// 6. 钱包验证
	if err := s.checkSignature(ctx, req.Wallet, req.MessageDigest, signature, current); err != nil {
		return nil, nil, err
	}

	s.logger.Debug("multisig quorum verified",
		zap.String("wallet", req.Wallet.Hex()),
		zap.String("contentHash", req.ContentHash),
		zap.Int("confirmations", current),
		zap.Int("threshold", threshold))

	return msg, &types.Allow{
		ContentHash:   req.ContentHash,
		MessageDigest: req.MessageDigest.Hex(),
		Wallet:        req.Wallet.Hex(),
		ChainID:       new(big.Int).Set(req.ChainID),
		Confirmations: current,
		Threshold:     threshold,
	}, nil
}

func (s *multisigService) Threshold(ctx context.Context, wallet common.Address) (int, error) {
	out, err := s.network.CallContract(ctx, wallet, packGetThreshold())
	if err != nil {
		return 0, types.ErrTransport(types.LayerMultisig, fmt.Errorf("getThreshold: %w", err))
	}
	threshold, err := unpackThreshold(out)
	if err != nil {
		return 0, types.ErrTransport(types.LayerMultisig, err)
	}
	return threshold, nil
}

func (s *multisigService) Owners(ctx context.Context, wallet common.Address) ([]common.Address, error) {
	out, err := s.network.CallContract(ctx, wallet, packGetOwners())
	if err != nil {
		return nil, types.ErrTransport(types.LayerMultisig, fmt.Errorf("getOwners: %w", err))
	}
	owners, err := unpackOwners(out)
	if err != nil {
		return nil, types.ErrTransport(types.LayerMultisig, err)
	}
	return owners, nil
}

// checkSignature 调用 isValidSignature 并比较魔数
//
// 回滚、RPC 错误或其他返回值都是 INVALID_SIGNATURE；
// 未得到节点答复（网络、超时）才是 TRANSPORT_ERROR。
func (s *multisigService) checkSignature(ctx context.Context, wallet common.Address, digest common.Hash, signature []byte, confirmations int) error {
	data, err := packIsValidSignature(digest, signature)
	if err != nil {
		return types.ErrInvalidSignature(err.Error(), confirmations)
	}

	out, err := s.network.CallContract(ctx, wallet, data)
	if err != nil {
		if client.IsTransportFailure(err) {
			return types.ErrTransport(types.LayerMultisig, fmt.Errorf("isValidSignature: %w", err))
		}
		s.logger.Info("isValidSignature call failed",
			zap.String("wallet", wallet.Hex()), zap.Error(err))
		return types.ErrInvalidSignature(fmt.Sprintf("isValidSignature call failed: %v", err), confirmations)
	}

	magic, err := unpackMagicValue(out)
	if err != nil {
		return types.ErrInvalidSignature(err.Error(), confirmations)
	}
	if magic != EIP1271MagicValue {
		return types.ErrInvalidSignature(fmt.Sprintf("wallet returned %s", hexutil.Encode(magic[:])), confirmations)
	}
	return nil
}
