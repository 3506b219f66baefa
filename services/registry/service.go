// Package registry 只读访问消息注册服务
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/types"
)

// Service 消息注册服务接口
type Service interface {
	// GetMessage 按内容哈希获取提议的消息及其确认
	//
	// 404 返回 NOT_FOUND；其他非 2xx、网络错误、超时、响应无法解码返回 TRANSPORT_ERROR。
	GetMessage(ctx context.Context, contentHash string) (*types.ProposedMessage, error)
}

// registryService 注册服务实现
type registryService struct {
	network client.Network
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

// Option 可选项
type Option func(*registryService)

// WithAPIKey 设置 Bearer 令牌
func WithAPIKey(apiKey string) Option {
	return func(s *registryService) { s.apiKey = apiKey }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *registryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService 创建注册服务客户端
//
// baseURL 形如 https://registry.example/api/v1，末尾的 "/" 会被去掉。
func NewService(network client.Network, baseURL string, opts ...Option) (Service, error) {
	if network == nil {
		return nil, fmt.Errorf("network is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid registry base url %q", baseURL)
	}

	s := &registryService{
		network: network,
		baseURL: baseURL,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *registryService) GetMessage(ctx context.Context, contentHash string) (*types.ProposedMessage, error) {
	// 1. 参数验证（32 字节十六进制）
	hash, err := normalizeHash(contentHash)
	if err != nil {
		return nil, types.ErrInvalidRequest(types.LayerRegistry, err.Error())
	}

	// 2. 请求
	endpoint := s.baseURL + "/messages/" + hash
	var msg types.ProposedMessage
	if err := s.network.FetchJSON(ctx, endpoint, s.apiKey, &msg); err != nil {
		if client.IsNotFound(err) {
			return nil, types.ErrNotFound(hash)
		}
		s.logger.Warn("registry request failed", zap.String("contentHash", hash), zap.Error(err))
		return nil, types.ErrTransport(types.LayerRegistry, err)
	}

	s.logger.Debug("registry message fetched",
		zap.String("contentHash", hash),
		zap.String("safe", msg.Safe),
		zap.Int("confirmations", len(msg.Confirmations)))
	return &msg, nil
}

// normalizeHash 校验并统一为 0x 前缀的 32 字节十六进制
func normalizeHash(s string) (string, error) {
	s = strings.TrimSpace(s)
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 2*common.HashLength {
		return "", fmt.Errorf("content hash must be 32 bytes, got %q", s)
	}
	for _, c := range raw {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return "", fmt.Errorf("content hash is not hex: %q", s)
		}
	}
	return "0x" + raw, nil
}
