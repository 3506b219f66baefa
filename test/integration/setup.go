package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/wallet"
)

const (
	// DefaultTimeout 默认超时时间
	DefaultTimeout = 30 * time.Second
	// TransactionConfirmTimeout 交易确认超时时间
	TransactionConfirmTimeout = 60 * time.Second
	// TransactionConfirmInterval 交易确认轮询间隔
	TransactionConfirmInterval = 2 * time.Second
)

// 环境变量
const (
	EnvRPC          = "AUTHZ_IT_RPC"          // 账本节点 JSON-RPC 地址
	EnvReplayLedger = "AUTHZ_IT_REPLAY_LEDGER" // 已部署的重放账本合约
	EnvFundedKey    = "AUTHZ_IT_FUNDED_KEY"    // 有余额的测试账户私钥
	EnvSafeWallet   = "AUTHZ_IT_SAFE"          // 已部署的多签钱包
)

// TestConfig 测试配置
type TestConfig struct {
	NodeEndpoint string
	ReplayLedger common.Address
	SafeWallet   common.Address
	FundedKey    string
	Timeout      time.Duration
}

// LoadTestConfig 从环境变量读取测试配置，未配置节点时跳过测试
func LoadTestConfig(t *testing.T) *TestConfig {
	t.Helper()

	endpoint := os.Getenv(EnvRPC)
	if endpoint == "" {
		t.Skipf("%s 未设置，跳过集成测试", EnvRPC)
	}
	cfg := &TestConfig{
		NodeEndpoint: endpoint,
		FundedKey:    os.Getenv(EnvFundedKey),
		Timeout:      DefaultTimeout,
	}
	if v := os.Getenv(EnvReplayLedger); v != "" {
		require.True(t, common.IsHexAddress(v), "%s 不是合法地址: %s", EnvReplayLedger, v)
		cfg.ReplayLedger = common.HexToAddress(v)
	}
	if v := os.Getenv(EnvSafeWallet); v != "" {
		require.True(t, common.IsHexAddress(v), "%s 不是合法地址: %s", EnvSafeWallet, v)
		cfg.SafeWallet = common.HexToAddress(v)
	}
	return cfg
}

// SetupLedgerClient 设置账本客户端（导出函数）
//
// **功能**：
// - 连接 AUTHZ_IT_RPC 指定的节点
// - 验证节点是否运行（通过 eth_chainId）
func SetupLedgerClient(t *testing.T, cfg *TestConfig) client.LedgerClient {
	t.Helper()

	clientCfg := &client.Config{
		Endpoint: cfg.NodeEndpoint,
		Protocol: client.ProtocolHTTP,
		Timeout:  int(cfg.Timeout.Seconds()),
		Retry:    client.NoRetry(),
	}

	lc, err := client.NewLedgerClient(clientCfg)
	require.NoError(t, err, "创建客户端失败")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = lc.ChainID(ctx)
	require.NoError(t, err, "节点未运行，请先启动节点: %s", cfg.NodeEndpoint)

	t.Cleanup(func() {
		if err := lc.Close(); err != nil {
			t.Logf("关闭客户端时出现警告: %v", err)
		}
	})
	return lc
}

// RequireReplayLedger 需要已部署的重放账本
func RequireReplayLedger(t *testing.T, cfg *TestConfig) common.Address {
	t.Helper()
	if cfg.ReplayLedger == (common.Address{}) {
		t.Skipf("%s 未设置，跳过", EnvReplayLedger)
	}
	return cfg.ReplayLedger
}

// RequireSafeWallet 需要已部署的多签钱包
func RequireSafeWallet(t *testing.T, cfg *TestConfig) common.Address {
	t.Helper()
	if cfg.SafeWallet == (common.Address{}) {
		t.Skipf("%s 未设置，跳过", EnvSafeWallet)
	}
	return cfg.SafeWallet
}

// FundedWallet 有余额的测试账户（用于发送 consume 交易）
func FundedWallet(t *testing.T, cfg *TestConfig) wallet.Wallet {
	t.Helper()
	if cfg.FundedKey == "" {
		t.Skipf("%s 未设置，跳过", EnvFundedKey)
	}
	w, err := wallet.NewWalletFromPrivateKey(cfg.FundedKey)
	require.NoError(t, err, "从私钥创建测试钱包失败")
	return w
}
