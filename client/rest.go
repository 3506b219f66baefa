package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/weisyn/multisig-authz-go/types"
)

// RESTClient 只读 REST 客户端（消息注册服务）
type RESTClient interface {
	// GetJSON 发送 GET 请求并将 2xx 响应体解码到 out
	//
	// apiKey 非空时附带 Authorization: Bearer 头。
	// 404 返回 ErrCodeNotFound，其他非 2xx 返回 ErrCodeHTTPStatus。
	GetJSON(ctx context.Context, url string, apiKey string, out interface{}) error

	// Close 释放空闲连接
	Close() error
}

type restClient struct {
	transport *transport
}

// NewRESTClient 创建 REST 客户端（复用 Config 中的超时、代理、TLS、限流与重试配置）
func NewRESTClient(config *Config) (RESTClient, error) {
	t, err := newTransport(config)
	if err != nil {
		return nil, err
	}
	return &restClient{transport: t}, nil
}

func (c *restClient) GetJSON(ctx context.Context, url string, apiKey string, out interface{}) error {
	t := c.transport
	if t.debug && t.logger != nil {
		t.logger.Debug("REST request", "method", http.MethodGet, "url", url)
	}

	status, body, err := t.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		return req, nil
	})
	if err != nil {
		return err
	}

	if t.debug && t.logger != nil {
		t.logger.Debug("REST response", "url", url, "status", status, "bytes", len(body))
	}

	if status < 200 || status >= 300 {
		return NewHTTPStatusError(status, problemSummary(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewInvalidResponseError(fmt.Sprintf("decode response body: %v", err))
	}
	return nil
}

func (c *restClient) Close() error {
	c.transport.client.CloseIdleConnections()
	return nil
}

// problemSummary 尽量从错误响应体中提取可读信息
func problemSummary(body []byte) string {
	var p types.RegistryProblem
	if err := json.Unmarshal(body, &p); err == nil {
		if s := p.Summary(); s != "" {
			return s
		}
	}
	return string(truncate(body, 256))
}
