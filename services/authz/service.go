// Package authz 门控动作的三阶段授权：模拟、授权、完成
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/services"
	"github.com/weisyn/multisig-authz-go/services/message"
	"github.com/weisyn/multisig-authz-go/services/multisig"
	"github.com/weisyn/multisig-authz-go/services/registry"
	"github.com/weisyn/multisig-authz-go/services/replay"
	"github.com/weisyn/multisig-authz-go/services/validation"
	"github.com/weisyn/multisig-authz-go/types"
	"github.com/weisyn/multisig-authz-go/utils"
	"github.com/weisyn/multisig-authz-go/wallet"
)

// 阶段名称
const (
	PhaseSimulate  = "simulate"
	PhaseAuthorize = "authorize"
	PhaseFinalize  = "finalize"
)

const tracerName = "github.com/weisyn/multisig-authz-go/services/authz"

// Service 授权状态机接口
//
// 三个阶段都不返回 error：任何失败都以 *types.Deny 决策的形式返回，
// panic 也在边界内恢复。
type Service interface {
	// Simulate 只读预演（直连网络）
	Simulate(ctx context.Context, req Request) types.Decision

	// Authorize 与 Simulate 相同的检查，在沙箱网络中执行
	Authorize(ctx context.Context, req Request) types.Decision

	// Finalize 动作执行后以 principal 钱包消费授权哈希
	//
	// 动作已经执行，失败无法回滚：返回的 Deny 保留原始原因，
	// 同时记录错误日志与指标，供事后对账。
	Finalize(ctx context.Context, req Request, consumer wallet.Wallet) (*replay.Receipt, types.Decision)
}

// authzService 授权状态机实现
type authzService struct {
	config     *services.Config
	direct     multisig.Service
	sandbox    multisig.Service
	ledger     replay.Ledger
	logger     *zap.Logger
	metrics    *metrics
	tracer     trace.Tracer
	now        func() time.Time
	order      multisig.AggregationOrder
	registerer prometheus.Registerer
	provider   trace.TracerProvider
}

// Option 服务选项
type Option func(*authzService)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *authzService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegisterer 指标注册到 reg（默认不注册到全局）
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *authzService) {
		s.registerer = reg
	}
}

// WithTracerProvider 设置追踪提供者（默认使用全局提供者）
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *authzService) {
		if tp != nil {
			s.provider = tp
		}
	}
}

// WithClock 注入时钟（过期判断使用）
func WithClock(now func() time.Time) Option {
	return func(s *authzService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 创建授权状态机
//
// direct 供 Simulate 使用，sandbox 供 Authorize 使用；sandbox 为 nil 时
// Authorize 退化为直连（本地部署没有沙箱代理）。ledger 为重放账本。
func NewService(cfg *services.Config, direct, sandbox client.Network, ledger replay.Ledger, opts ...Option) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if direct == nil {
		return nil, fmt.Errorf("direct network is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("replay ledger is required")
	}
	if cfg.VerifyTimeout <= 0 {
		return nil, fmt.Errorf("verify timeout must be positive")
	}
	order, err := multisig.ParseAggregationOrder(cfg.AggregationOrder)
	if err != nil {
		return nil, err
	}

	s := &authzService{
		config:     cfg,
		ledger:     ledger,
		logger:     zap.NewNop(),
		now:        time.Now,
		order:      order,
		registerer: prometheus.NewRegistry(),
		provider:   otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registerer)
	s.tracer = s.provider.Tracer(tracerName)

	if s.direct, err = s.newVerifier(direct); err != nil {
		return nil, err
	}
	if sandbox == nil {
		s.logger.Warn("no sandbox network configured, authorize runs on the direct network")
		s.sandbox = s.direct
	} else if s.sandbox, err = s.newVerifier(sandbox); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *authzService) newVerifier(network client.Network) (multisig.Service, error) {
	reg, err := registry.NewService(network, s.config.RegistryBaseURL,
		registry.WithAPIKey(s.config.RegistryAPIKey),
		registry.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	return multisig.NewService(network, reg,
		multisig.WithAggregationOrder(s.order),
		multisig.WithLogger(s.logger),
	), nil
}

// Simulate 只读预演
func (s *authzService) Simulate(ctx context.Context, req Request) types.Decision {
	return s.run(ctx, PhaseSimulate, s.config.VerifyTimeout, req, func(ctx context.Context) (types.Decision, error) {
		return s.verify(ctx, s.direct, req)
	})
}

// Authorize 沙箱中的授权
func (s *authzService) Authorize(ctx context.Context, req Request) types.Decision {
	return s.run(ctx, PhaseAuthorize, s.config.VerifyTimeout, req, func(ctx context.Context) (types.Decision, error) {
		return s.verify(ctx, s.sandbox, req)
	})
}

// Finalize 消费授权哈希
func (s *authzService) Finalize(ctx context.Context, req Request, consumer wallet.Wallet) (*replay.Receipt, types.Decision) {
	var receipt *replay.Receipt
	decision := s.run(ctx, PhaseFinalize, s.finalizeTimeout(), req, func(ctx context.Context) (types.Decision, error) {
		rcpt, allow, err := s.finalize(ctx, req, consumer)
		receipt = rcpt
		return allow, err
	})
	if !decision.Allowed() {
		return nil, decision
	}
	return receipt, decision
}

// finalizeTimeout 完成阶段要等交易上链，不与验证共用超时
func (s *authzService) finalizeTimeout() time.Duration {
	if s.config.FinalizeTimeout > 0 {
		return s.config.FinalizeTimeout
	}
	return services.DefaultFinalizeTimeout
}

// run 阶段边界：超时、追踪、指标、panic 恢复，错误统一转为 Deny
func (s *authzService) run(ctx context.Context, phase string, timeout time.Duration, req Request, fn func(context.Context) (types.Decision, error)) (decision types.Decision) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "authz."+phase, trace.WithAttributes(
		attribute.String("authz.wallet", req.Wallet.Hex()),
		attribute.String("authz.action_id", req.ActionID),
	))

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("authorization phase panicked",
				zap.String("phase", phase),
				zap.Any("panic", r),
				zap.Stack("stack"))
			decision = types.ErrInternal(types.LayerAuthz, fmt.Sprintf("panic: %v", r))
		}

		if deny, ok := types.DecisionDeny(decision); ok {
			span.SetStatus(codes.Error, string(deny.Reason))
			span.RecordError(deny)
			span.SetAttributes(attribute.String("authz.reason", string(deny.Reason)))
			s.metrics.decisions.WithLabelValues(phase, "deny", string(deny.Reason)).Inc()
		} else {
			span.SetStatus(codes.Ok, "")
			s.metrics.decisions.WithLabelValues(phase, "allow", "").Inc()
		}
		s.metrics.duration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
		span.End()
	}()

	if err := req.validate(); err != nil {
		return s.toDeny(phase, err)
	}

	d, err := fn(ctx)
	if err != nil {
		return s.toDeny(phase, err)
	}
	return d
}

// toDeny 组件错误恢复为 Deny；未分类的错误归为 TRANSPORT_ERROR
func (s *authzService) toDeny(phase string, err error) *types.Deny {
	d, ok := types.AsDeny(err)
	if !ok {
		s.logger.Warn("authorization failed with unclassified error",
			zap.String("phase", phase), zap.Error(err))
		d = types.ErrTransport(types.LayerAuthz, err)
	}
	s.logger.Info("authorization denied",
		zap.String("phase", phase),
		zap.String("reason", string(d.Reason)),
		zap.String("layer", d.Layer),
		zap.String("traceId", d.TraceID),
		zap.String("detail", d.Detail))
	return d
}

// hash 构建类型化消息并计算哈希
func (s *authzService) hash(req Request) (*message.Hashes, error) {
	domain := message.NewDomain(s.config.DomainName, s.config.DomainVersion, req.ChainID, req.Wallet)
	env, err := message.Build(req.Record(), domain)
	if err != nil {
		return nil, err
	}
	_, hashes, err := message.HashEnvelope(env)
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// verify 模拟与授权共用的检查
//
// **顺序**：
// 1. 构建消息并计算内容哈希
// 2. 重放检查（已消费则 ALREADY_CONSUMED）
// 3. 法定人数与签名验证
// 4. 解析取回的记录并逐字段校验
// 5. 过期与 nonce 以签名覆盖的值为准，取回值必须与之一致
func (s *authzService) verify(ctx context.Context, verifier multisig.Service, req Request) (types.Decision, error) {
	// 1. 哈希
	hashes, err := s.hash(req)
	if err != nil {
		return nil, err
	}

	// 2. 重放检查
	principal := common.HexToAddress(req.PrincipalAddress)
	consumedAt, err := s.ledger.GetConsumedAt(ctx, principal, hashes.AuthorizationHash)
	if err != nil {
		return nil, err
	}
	if consumedAt != 0 {
		return nil, types.ErrAlreadyConsumed(principal.Hex(), hashes.ContentHash(), consumedAt)
	}

	// 3. 多签验证
	msg, allow, err := verifier.Verify(ctx, multisig.VerifyRequest{
		Wallet:        req.Wallet,
		ChainID:       req.ChainID,
		ContentHash:   hashes.ContentHash(),
		MessageDigest: hashes.MessageDigest,
	})
	if err != nil {
		return nil, err
	}

	// 4. 字段校验
	retrieved, err := message.ParseEnvelope(msg.Message)
	if err != nil {
		return nil, err
	}
	now := s.now()
	record, err := validation.Validate(req.Record(), retrieved, now)
	if err != nil {
		return nil, err
	}
	if err := validation.MatchSigned(req.Record(), record, now); err != nil {
		return nil, err
	}

	allow.Record = record
	s.logger.Debug("authorization allowed",
		zap.String("contentHash", allow.ContentHash),
		zap.String("wallet", allow.Wallet),
		zap.Int("confirmations", allow.Confirmations),
		zap.Int("threshold", allow.Threshold))
	return allow, nil
}

func (s *authzService) finalize(ctx context.Context, req Request, consumer wallet.Wallet) (*replay.Receipt, *types.Allow, error) {
	if consumer == nil {
		return nil, nil, types.ErrInvalidRequest(types.LayerAuthz, "consumer wallet is required")
	}
	if !utils.EqualAddress(consumer.Address().Hex(), req.PrincipalAddress) {
		return nil, nil, types.ErrWrongWallet(req.PrincipalAddress, consumer.Address().Hex())
	}

	hashes, err := s.hash(req)
	if err != nil {
		return nil, nil, err
	}

	rcpt, err := s.ledger.Consume(ctx, consumer, []common.Hash{hashes.AuthorizationHash})
	if err != nil {
		deny := finalizeDeny(consumer.Address(), hashes.AuthorizationHash, err)
		s.metrics.finalizeFailures.WithLabelValues(string(deny.Reason)).Inc()
		s.logger.Error("failed to record consumption of executed action",
			zap.String("consumer", consumer.Address().Hex()),
			zap.String("contentHash", hashes.ContentHash()),
			zap.String("wallet", req.Wallet.Hex()),
			zap.String("reason", string(deny.Reason)),
			zap.Any("tx", deny.Details["txHash"]),
			zap.Error(err))
		return nil, nil, deny
	}

	s.logger.Info("authorization consumed",
		zap.String("consumer", consumer.Address().Hex()),
		zap.String("contentHash", hashes.ContentHash()),
		zap.String("tx", rcpt.TxHash.Hex()),
		zap.Uint64("timestamp", rcpt.Timestamp))

	return rcpt, &types.Allow{
		ContentHash:   hashes.ContentHash(),
		MessageDigest: hashes.MessageDigest.Hex(),
		Wallet:        req.Wallet.Hex(),
		ChainID:       req.ChainID,
		Record:        recordPtr(req.Record()),
	}, nil
}

// finalizeDeny 账本自身的拒绝原因原样保留
//
// 已广播但未确认的交易归为 FINALIZE_PENDING，其余失败归为 FINALIZE_FAILED；
// 两者都尽量带上交易哈希。
func finalizeDeny(consumer common.Address, hash common.Hash, err error) *types.Deny {
	var txErr *replay.TxError
	if errors.As(err, &txErr) && txErr.Pending {
		return types.ErrFinalizePending(consumer.Hex(), hash.Hex(), txErr.TxHash.Hex(), err)
	}
	if d, ok := types.AsDeny(err); ok {
		switch d.Reason {
		case types.ReasonAlreadyConsumed, types.ReasonEmptyInput:
			return d
		}
	}
	deny := types.ErrFinalizeFailed(consumer.Hex(), hash.Hex(), err)
	if txErr != nil {
		deny.Details["txHash"] = txErr.TxHash.Hex()
	}
	return deny
}

func recordPtr(r types.AuthorizationRecord) *types.AuthorizationRecord {
	return &r
}
