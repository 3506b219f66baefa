package services

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// 默认值
const (
	DefaultVerifyTimeout       = 15 * time.Second
	DefaultFinalizeTimeout     = 2 * time.Minute
	DefaultReceiptPollInterval = 2 * time.Second
	DefaultDomainName          = "MultisigAuthorization"
	DefaultDomainVersion       = "1"
)

// 重放账本后端
const (
	LedgerBackendChain  = "chain"
	LedgerBackendMemory = "memory"
	LedgerBackendRedis  = "redis"
)

// 签名聚合顺序
const (
	AggregationOrderSigner        = "signer"
	AggregationOrderLexicographic = "lexicographic"
)

// Config 统一的业务服务配置结构，为授权流水线各个 Service 提供链、注册服务与账本参数。
//
// **设计目的**：
// - 链 ID 与钱包地址逐次调用显式传入，配置中不出现会被哈希的默认域
// - 合约地址、注册服务地址等由使用方提供，不在 service 内部硬编码
//
// **说明**：
// - 地址类字段使用 common.Address
// - 字段为零值时，各 service 采用下方默认值或返回错误
type Config struct {
	// ChainID 钱包所在链
	ChainID *big.Int

	// RPCEndpoint 账本节点 JSON-RPC 地址（http/https/ws/wss）
	RPCEndpoint string

	// SandboxProxyURL 授权阶段的出口代理
	SandboxProxyURL string

	// 消息注册服务
	RegistryBaseURL string
	RegistryAPIKey  string

	// 重放账本
	LedgerBackend       string
	ReplayLedgerAddress common.Address
	RedisURL            string

	// 类型化消息域标签
	DomainName    string
	DomainVersion string

	// VerifyTimeout 模拟与授权阶段的超时
	VerifyTimeout time.Duration

	// FinalizeTimeout 完成阶段的超时，覆盖 consume 交易的广播与上链等待
	FinalizeTimeout time.Duration

	// AggregationOrder 本地聚合签名的排序方式
	AggregationOrder string

	// ReceiptPollInterval consume 交易收据轮询间隔
	ReceiptPollInterval time.Duration
}

// DefaultConfig 返回默认配置（链 ID 与地址仍需调用方提供）
func DefaultConfig() *Config {
	return &Config{
		LedgerBackend:       LedgerBackendChain,
		DomainName:          DefaultDomainName,
		DomainVersion:       DefaultDomainVersion,
		VerifyTimeout:       DefaultVerifyTimeout,
		FinalizeTimeout:     DefaultFinalizeTimeout,
		AggregationOrder:    AggregationOrderSigner,
		ReceiptPollInterval: DefaultReceiptPollInterval,
	}
}

// Validate 检查配置完整性
func (c *Config) Validate() error {
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return fmt.Errorf("chain id is required")
	}
	if c.RegistryBaseURL == "" {
		return fmt.Errorf("registry base url is required")
	}
	switch c.LedgerBackend {
	case LedgerBackendChain:
		if c.RPCEndpoint == "" {
			return fmt.Errorf("rpc endpoint is required for the chain ledger")
		}
		if c.ReplayLedgerAddress == (common.Address{}) {
			return fmt.Errorf("replay ledger address is required for the chain ledger")
		}
	case LedgerBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis url is required for the redis ledger")
		}
	case LedgerBackendMemory:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.LedgerBackend)
	}
	switch c.AggregationOrder {
	case AggregationOrderSigner, AggregationOrderLexicographic:
	default:
		return fmt.Errorf("unknown aggregation order %q", c.AggregationOrder)
	}
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive")
	}
	if c.FinalizeTimeout < 0 {
		return fmt.Errorf("finalize timeout must not be negative")
	}
	return nil
}

// LoadConfigFromEnv 从环境变量加载配置
//
// 识别的变量：AUTHZ_CHAIN_ID、AUTHZ_RPC_ENDPOINT、AUTHZ_SANDBOX_PROXY、
// AUTHZ_REGISTRY_URL、AUTHZ_REGISTRY_API_KEY、AUTHZ_LEDGER_BACKEND、
// AUTHZ_REPLAY_LEDGER、AUTHZ_REDIS_URL、AUTHZ_DOMAIN_NAME、AUTHZ_DOMAIN_VERSION、
// AUTHZ_VERIFY_TIMEOUT、AUTHZ_FINALIZE_TIMEOUT、AUTHZ_AGGREGATION_ORDER、
// AUTHZ_RECEIPT_POLL。
func LoadConfigFromEnv() (*Config, error) {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if v := getenv("AUTHZ_CHAIN_ID"); v != "" {
		chainID, err := parseChainID(v)
		if err != nil {
			return nil, err
		}
		cfg.ChainID = chainID
	}

	cfg.RPCEndpoint = getenv("AUTHZ_RPC_ENDPOINT")
	cfg.SandboxProxyURL = getenv("AUTHZ_SANDBOX_PROXY")
	cfg.RegistryBaseURL = getenv("AUTHZ_REGISTRY_URL")
	cfg.RegistryAPIKey = getenv("AUTHZ_REGISTRY_API_KEY")
	cfg.RedisURL = getenv("AUTHZ_REDIS_URL")

	if v := getenv("AUTHZ_LEDGER_BACKEND"); v != "" {
		cfg.LedgerBackend = strings.ToLower(v)
	}
	if v := getenv("AUTHZ_REPLAY_LEDGER"); v != "" {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("AUTHZ_REPLAY_LEDGER: invalid address %q", v)
		}
		cfg.ReplayLedgerAddress = common.HexToAddress(v)
	}
	if v := getenv("AUTHZ_DOMAIN_NAME"); v != "" {
		cfg.DomainName = v
	}
	if v := getenv("AUTHZ_DOMAIN_VERSION"); v != "" {
		cfg.DomainVersion = v
	}
	if v := getenv("AUTHZ_VERIFY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("AUTHZ_VERIFY_TIMEOUT: %w", err)
		}
		cfg.VerifyTimeout = d
	}
	if v := getenv("AUTHZ_FINALIZE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("AUTHZ_FINALIZE_TIMEOUT: %w", err)
		}
		cfg.FinalizeTimeout = d
	}
	if v := getenv("AUTHZ_AGGREGATION_ORDER"); v != "" {
		cfg.AggregationOrder = strings.ToLower(v)
	}
	if v := getenv("AUTHZ_RECEIPT_POLL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("AUTHZ_RECEIPT_POLL: %w", err)
		}
		cfg.ReceiptPollInterval = d
	}

	return cfg, nil
}

// fileConfig YAML 文件格式
type fileConfig struct {
	ChainID             string        `yaml:"chainId"`
	RPCEndpoint         string        `yaml:"rpcEndpoint"`
	SandboxProxyURL     string        `yaml:"sandboxProxy"`
	Registry            registryFile  `yaml:"registry"`
	Ledger              ledgerFile    `yaml:"ledger"`
	Domain              domainFile    `yaml:"domain"`
	VerifyTimeout       time.Duration `yaml:"verifyTimeout"`
	FinalizeTimeout     time.Duration `yaml:"finalizeTimeout"`
	AggregationOrder    string        `yaml:"aggregationOrder"`
	ReceiptPollInterval time.Duration `yaml:"receiptPollInterval"`
}

type registryFile struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
}

type ledgerFile struct {
	Backend  string `yaml:"backend"`
	Address  string `yaml:"address"`
	RedisURL string `yaml:"redisUrl"`
}

type domainFile struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoadConfigFile 从 YAML 文件加载配置，未出现的字段保持默认值
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfigYAML(data)
}

// ParseConfigYAML 解析 YAML 配置
func ParseConfigYAML(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg := DefaultConfig()
	if fc.ChainID != "" {
		chainID, err := parseChainID(fc.ChainID)
		if err != nil {
			return nil, err
		}
		cfg.ChainID = chainID
	}
	cfg.RPCEndpoint = fc.RPCEndpoint
	cfg.SandboxProxyURL = fc.SandboxProxyURL
	cfg.RegistryBaseURL = fc.Registry.BaseURL
	cfg.RegistryAPIKey = fc.Registry.APIKey
	cfg.RedisURL = fc.Ledger.RedisURL
	if fc.Ledger.Backend != "" {
		cfg.LedgerBackend = strings.ToLower(fc.Ledger.Backend)
	}
	if fc.Ledger.Address != "" {
		if !common.IsHexAddress(fc.Ledger.Address) {
			return nil, fmt.Errorf("ledger.address: invalid address %q", fc.Ledger.Address)
		}
		cfg.ReplayLedgerAddress = common.HexToAddress(fc.Ledger.Address)
	}
	if fc.Domain.Name != "" {
		cfg.DomainName = fc.Domain.Name
	}
	if fc.Domain.Version != "" {
		cfg.DomainVersion = fc.Domain.Version
	}
	if fc.VerifyTimeout > 0 {
		cfg.VerifyTimeout = fc.VerifyTimeout
	}
	if fc.FinalizeTimeout > 0 {
		cfg.FinalizeTimeout = fc.FinalizeTimeout
	}
	if fc.AggregationOrder != "" {
		cfg.AggregationOrder = strings.ToLower(fc.AggregationOrder)
	}
	if fc.ReceiptPollInterval > 0 {
		cfg.ReceiptPollInterval = fc.ReceiptPollInterval
	}
	return cfg, nil
}

// parseChainID 接受十进制或 0x 前缀十六进制
func parseChainID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	chainID, ok := new(big.Int).SetString(s, base)
	if !ok || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %q", s)
	}
	return chainID, nil
}
