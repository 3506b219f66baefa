package client

import (
	"context"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Network 验证流水线使用的网络能力
//
// 同一套验证逻辑在两种执行环境下运行：模拟阶段直连，
// 授权阶段在沙箱中经由代理访问网络。调用方为每个阶段注入对应实现。
type Network interface {
	// FetchJSON GET url 并将 JSON 响应解码到 out
	FetchJSON(ctx context.Context, url string, apiKey string, out interface{}) error

	// CallContract 对 to 执行只读合约调用
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

type network struct {
	rest   RESTClient
	ledger LedgerClient
}

// NewNetwork 由 REST 与账本客户端组合出网络能力
func NewNetwork(rest RESTClient, ledger LedgerClient) Network {
	return &network{rest: rest, ledger: ledger}
}

// NewDirectNetwork 按配置直连
func NewDirectNetwork(config *Config) (Network, error) {
	return newNetwork(config)
}

// NewSandboxNetwork 所有请求经由 proxyURL 转发
func NewSandboxNetwork(config *Config, proxyURL string) (Network, error) {
	if proxyURL == "" {
		return nil, fmt.Errorf("sandbox network requires a proxy url")
	}
	if config == nil {
		config = DefaultConfig()
	}
	return newNetwork(config.WithProxy(proxyURL))
}

func newNetwork(config *Config) (Network, error) {
	rest, err := NewRESTClient(config)
	if err != nil {
		return nil, fmt.Errorf("create rest client: %w", err)
	}
	ledger, err := NewLedgerClient(config)
	if err != nil {
		return nil, fmt.Errorf("create ledger client: %w", err)
	}
	return NewNetwork(rest, ledger), nil
}

func (n *network) FetchJSON(ctx context.Context, url string, apiKey string, out interface{}) error {
	return n.rest.GetJSON(ctx, url, apiKey, out)
}

func (n *network) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return n.ledger.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
}
