package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// RetryConfig 节点请求的重试策略
//
// 只有传输层故障会被重试：合约回滚、JSON-RPC 错误都是节点给出的确定答复，
// 重发同一请求只会得到同样的结果。
type RetryConfig struct {
	MaxRetries int // 0 表示只发送一次

	// 退避参数，单位毫秒
	InitialDelay      int
	MaxDelay          int
	BackoffMultiplier float64

	// Retryable 覆盖默认的可重试判定
	Retryable func(error) bool

	// OnRetry 每次等待前调用，attempt 从 1 开始
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig 1s 起步、翻倍退避、封顶 10s，最多重试 3 次
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1000,
		MaxDelay:          10000,
		BackoffMultiplier: 2.0,
		Retryable:         isRetryableError,
	}
}

// NoRetry 关闭重试
func NoRetry() *RetryConfig {
	return &RetryConfig{}
}

// isRetryableError 判定一次失败是否值得重发
//
// 调用方的取消与截止时间优先：即使底层是网络错误也不再重试。
func isRetryableError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}

	if e, ok := AsError(err); ok {
		switch e.Code {
		case ErrCodeNetwork, ErrCodeTimeout:
			return true
		case ErrCodeHTTPStatus:
			return isRetryableHTTPError(e.HTTPStatus)
		default:
			return false
		}
	}

	// 未经 classifyTransportError 包装的底层错误
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRetryableHTTPError 网关故障与限流（5xx、429）
func isRetryableHTTPError(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode/100 == 5
}

// calculateBackoffDelay 第 attempt 次失败（从 0 计）之后的等待时长
func calculateBackoffDelay(attempt int, config *RetryConfig) time.Duration {
	m := config.BackoffMultiplier
	if m <= 0 {
		m = 1
	}
	delay := float64(config.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= m
		if config.MaxDelay > 0 && delay >= float64(config.MaxDelay) {
			break
		}
	}
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay) * time.Millisecond
}

// withRetry 执行 fn，按策略重试传输故障
//
// 首次失败即不可重试时原样返回错误，便于上层用 == 或 errors.As 判定；
// 重试耗尽时包装最后一次错误。
func withRetry(ctx context.Context, fn func() error, config *RetryConfig) error {
	err := fn()
	if err == nil || config == nil || config.MaxRetries <= 0 {
		return err
	}

	retryable := config.Retryable
	if retryable == nil {
		retryable = isRetryableError
	}
	if !retryable(err) {
		return err
	}

	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}

		timer := time.NewTimer(calculateBackoffDelay(attempt-1, config))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			break
		}
	}

	return fmt.Errorf("node request failed after retries: %w", err)
}
