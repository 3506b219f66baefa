package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// websocketClient WebSocket 客户端实现
type websocketClient struct {
	endpoint string
	conn     *websocket.Conn
	mu       sync.Mutex // 串行化写入
	closed   int32
	nextID   uint64
	timeout  time.Duration

	requests map[uint64]chan *wsMessage
	subs     map[string]chan *Event
	muReq    sync.Mutex
}

// wsMessage 读取到的消息：带 id 的响应或 eth_subscription 通知
type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// subscriptionParams eth_subscription 通知的 params
type subscriptionParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// NewWebSocketClient 创建 WebSocket 客户端
func NewWebSocketClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	endpoint := toWebSocketURL(config.Endpoint)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	if config.ProxyURL != "" {
		proxy, err := url.Parse(config.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxy)
	}
	if config.TLS != nil {
		tlsCfg, err := buildTLSConfig(config.TLS)
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsCfg
	}

	header := http.Header{}
	for k, v := range config.Headers {
		header.Set(k, v)
	}

	conn, _, err := dialer.Dial(endpoint, header)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("dial websocket: %w", err))
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &websocketClient{
		endpoint: endpoint,
		conn:     conn,
		timeout:  timeout,
		requests: make(map[uint64]chan *wsMessage),
		subs:     make(map[string]chan *Event),
	}

	// 启动消息读取循环
	go client.readLoop()

	return client, nil
}

// toWebSocketURL 将 http:// 或 https:// 转换为 ws:// 或 wss://
func toWebSocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "ws://"), strings.HasPrefix(endpoint, "wss://"):
		return endpoint
	default:
		return "ws://" + endpoint
	}
}

// readLoop 消息读取循环
func (c *websocketClient) readLoop() {
	var readErr error
	defer func() {
		atomic.StoreInt32(&c.closed, 1)
		c.muReq.Lock()
		for id, ch := range c.requests {
			ch <- &wsMessage{Error: &jsonRPCError{Code: -1, Message: fmt.Sprintf("websocket read error: %v", readErr)}}
			delete(c.requests, id)
		}
		for id, ch := range c.subs {
			close(ch)
			delete(c.subs, id)
		}
		c.muReq.Unlock()
	}()

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			readErr = err
			return
		}

		if msg.ID == nil {
			if msg.Method == "eth_subscription" {
				c.dispatch(msg.Params)
			}
			continue
		}

		c.muReq.Lock()
		ch, exists := c.requests[*msg.ID]
		if exists {
			delete(c.requests, *msg.ID)
		}
		c.muReq.Unlock()

		if exists {
			ch <- &msg
		}
	}
}

// dispatch 将订阅通知投递到对应通道（消费者过慢时丢弃）
func (c *websocketClient) dispatch(raw json.RawMessage) {
	var params subscriptionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}
	c.muReq.Lock()
	defer c.muReq.Unlock()
	ch, ok := c.subs[params.Subscription]
	if !ok {
		return
	}
	select {
	case ch <- &Event{Subscription: params.Subscription, Data: params.Result}:
	default:
	}
}

// Call 调用 JSON-RPC 方法
func (c *websocketClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, NewNetworkError(fmt.Errorf("websocket client is closed"))
	}
	if params == nil {
		params = []interface{}{}
	}

	reqID := atomic.AddUint64(&c.nextID, 1)
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      reqID,
	}

	respCh := make(chan *wsMessage, 1)
	c.muReq.Lock()
	c.requests[reqID] = respCh
	c.muReq.Unlock()

	c.mu.Lock()
	err := c.conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.forget(reqID)
		return nil, NewNetworkError(fmt.Errorf("write request: %w", err))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			if resp.Error.Code == -1 && resp.ID == nil {
				return nil, NewNetworkError(fmt.Errorf("%s", resp.Error.Message))
			}
			return nil, NewRPCError(resp.Error.Code, resp.Error.Message, resp.Error.Data)
		}
		return resp.Result, nil

	case <-ctx.Done():
		c.forget(reqID)
		return nil, classifyTransportError(ctx.Err())

	case <-timer.C:
		c.forget(reqID)
		return nil, NewTimeoutError(fmt.Errorf("%s after %s", method, c.timeout))
	}
}

func (c *websocketClient) forget(reqID uint64) {
	c.muReq.Lock()
	delete(c.requests, reqID)
	c.muReq.Unlock()
}

// SendRawTransaction 发送已签名的原始交易
func (c *websocketClient) SendRawTransaction(ctx context.Context, signedTxHex string) (*SendTxResult, error) {
	return sendRawTransaction(ctx, c, signedTxHex)
}

// Subscribe 订阅日志
//
// ctx 结束时自动 eth_unsubscribe 并关闭通道。
func (c *websocketClient) Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error) {
	raw, err := c.Call(ctx, "eth_subscribe", []interface{}{"logs", filter.toArg()})
	if err != nil {
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	var subscriptionID string
	if err := json.Unmarshal(raw, &subscriptionID); err != nil || subscriptionID == "" {
		return nil, NewInvalidResponseError("missing subscription ID")
	}

	eventCh := make(chan *Event, 100)
	c.muReq.Lock()
	c.subs[subscriptionID] = eventCh
	c.muReq.Unlock()

	go func() {
		<-ctx.Done()
		c.muReq.Lock()
		ch, ok := c.subs[subscriptionID]
		delete(c.subs, subscriptionID)
		c.muReq.Unlock()
		if !ok {
			return // 连接已关闭，通道已由 readLoop 关闭
		}
		close(ch)

		if atomic.LoadInt32(&c.closed) == 0 {
			unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, _ = c.Call(unsubCtx, "eth_unsubscribe", []interface{}{subscriptionID})
		}
	}()

	return eventCh, nil
}

// Close 关闭连接
func (c *websocketClient) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			return c.conn.Close()
		}
	}
	return nil
}
