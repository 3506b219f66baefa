package client

// Config 节点连接配置
//
// 同一份配置既用于直连节点，也可经 WithProxy 派生出沙箱内的代理连接。
type Config struct {
	// Endpoint http(s):// 或 ws(s)://
	Endpoint string
	Protocol Protocol

	// Timeout 单次请求超时，秒
	Timeout int
	TLS     *TLSConfig

	// Retry 重试配置（nil 使用默认配置，MaxRetries=0 关闭重试）
	Retry *RetryConfig

	// ProxyURL 出站 HTTP 代理（沙箱执行环境下所有请求经由代理转发）
	ProxyURL string

	// Headers 每个请求附带的额外请求头
	Headers map[string]string

	// RateLimit 每秒请求数上限（0 表示不限制）
	RateLimit float64

	// RateBurst 令牌桶容量（默认 1）
	RateBurst int

	Debug bool

	// Logger 可为 nil
	Logger Logger
}

// Protocol 节点传输协议
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolWebSocket Protocol = "websocket"
)

// TLSConfig 双向 TLS 与自定义 CA
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
	Insecure bool // 跳过 TLS 验证（仅用于开发）
}

// Logger 传输层日志接口，键值对形式
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// DefaultConfig 本地开发节点
func DefaultConfig() *Config {
	return &Config{
		Endpoint: "http://localhost:8545",
		Protocol: ProtocolHTTP,
		Timeout:  30,
		Debug:    false,
	}
}

// WithProxy 返回使用代理的配置副本（原配置不变）
func (c *Config) WithProxy(proxyURL string) *Config {
	cp := *c
	cp.ProxyURL = proxyURL
	if c.Headers != nil {
		cp.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			cp.Headers[k] = v
		}
	}
	return &cp
}
