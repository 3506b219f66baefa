package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseBytes 单个响应体读取上限
const maxResponseBytes = 16 << 20

// transport HTTP 传输层（JSON-RPC 与 REST 共用）
//
// 负责代理、TLS、限流、重试与调试日志。
type transport struct {
	client  *http.Client
	headers map[string]string
	limiter *rate.Limiter
	retry   *RetryConfig
	logger  Logger
	debug   bool
}

// newTransport 根据配置创建传输层
func newTransport(config *Config) (*transport, error) {
	if config == nil {
		config = DefaultConfig()
	}

	base := http.DefaultTransport.(*http.Transport).Clone()

	if config.ProxyURL != "" {
		proxy, err := url.Parse(config.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		base.Proxy = http.ProxyURL(proxy)
	}

	if config.TLS != nil {
		tlsCfg, err := buildTLSConfig(config.TLS)
		if err != nil {
			return nil, err
		}
		base.TLSClientConfig = tlsCfg
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30
	}

	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
		// 调试模式下记录每次重试
		if config.Debug && config.Logger != nil {
			retryConfig.OnRetry = func(attempt int, err error) {
				config.Logger.Warn("Retrying request", "attempt", attempt, "error", err)
			}
		}
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &transport{
		client: &http.Client{
			Timeout:   time.Duration(timeout) * time.Second,
			Transport: base,
		},
		headers: config.Headers,
		limiter: limiter,
		retry:   retryConfig,
		logger:  config.Logger,
		debug:   config.Debug,
	}, nil
}

// buildTLSConfig 构建 TLS 配置
func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.Insecure, // #nosec G402 -- 仅开发环境显式开启
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// do 发送请求（带限流与重试），返回状态码与响应体
//
// 每次重试都通过 build 重新创建请求（Body 只能读取一次）。
// 可重试的状态码（5xx、429）在重试耗尽后以 *Error 返回；其他状态码原样交给调用方。
func (t *transport) do(ctx context.Context, build func() (*http.Request, error)) (int, []byte, error) {
	var (
		status int
		body   []byte
	)

	err := withRetry(ctx, func() error {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return classifyTransportError(err)
			}
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("create request failed: %w", err)
		}
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return classifyTransportError(ctx.Err())
			}
			return classifyTransportError(err)
		}
		defer func() {
			if cerr := resp.Body.Close(); cerr != nil && t.logger != nil {
				t.logger.Warn("Failed to close response body", "error", cerr)
			}
		}()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return NewNetworkError(fmt.Errorf("read response failed: %w", err))
		}

		if isRetryableHTTPError(resp.StatusCode) {
			return NewHTTPStatusError(resp.StatusCode, string(truncate(data, 256)))
		}

		status, body = resp.StatusCode, data
		return nil
	}, t.retry)

	return status, body, err
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// httpClient HTTP JSON-RPC 客户端实现
type httpClient struct {
	endpoint  string
	transport *transport
	nextID    atomic.Uint64
}

// NewHTTPClient 创建HTTP客户端
func NewHTTPClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	t, err := newTransport(config)
	if err != nil {
		return nil, err
	}

	return &httpClient{
		endpoint:  config.Endpoint,
		transport: t,
	}, nil
}

// Call 调用JSON-RPC方法
func (c *httpClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	req := &jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	t := c.transport
	if t.debug && t.logger != nil {
		t.logger.Debug("JSON-RPC request", "method", method, "body", string(reqBody))
	}

	status, respBody, err := t.do(ctx, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}

	if t.debug && t.logger != nil {
		t.logger.Debug("JSON-RPC response", "method", method, "status", status, "body", string(respBody))
	}

	// 部分节点在 HTTP 4xx 中仍返回 JSON-RPC error 对象，优先解析
	var jsonResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &jsonResp); err != nil {
		if status != http.StatusOK {
			return nil, NewHTTPStatusError(status, string(truncate(respBody, 256)))
		}
		return nil, NewInvalidResponseError(fmt.Sprintf("unmarshal response failed: %v", err))
	}

	if jsonResp.Error != nil {
		return nil, NewRPCError(jsonResp.Error.Code, jsonResp.Error.Message, jsonResp.Error.Data)
	}
	if status != http.StatusOK {
		return nil, NewHTTPStatusError(status, string(truncate(respBody, 256)))
	}

	return jsonResp.Result, nil
}

// SendRawTransaction 发送已签名的原始交易
func (c *httpClient) SendRawTransaction(ctx context.Context, signedTxHex string) (*SendTxResult, error) {
	return sendRawTransaction(ctx, c, signedTxHex)
}

// Subscribe 订阅事件（HTTP不支持，需要使用WebSocket）
func (c *httpClient) Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error) {
	return nil, NewNotSupportedError("subscription over HTTP, use the WebSocket client")
}

// Close 关闭连接（HTTP客户端无需特殊处理）
func (c *httpClient) Close() error {
	c.transport.client.CloseIdleConnections()
	return nil
}

// jsonRPCRequest JSON-RPC请求结构
type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

// jsonRPCResponse JSON-RPC响应结构
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// jsonRPCError JSON-RPC错误结构
type jsonRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
