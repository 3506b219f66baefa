package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Error 客户端错误
type Error struct {
	Code    int
	Message string
	Err     error

	// HTTPStatus 非 2xx 响应的状态码
	HTTPStatus int
	// RPCCode / RPCData JSON-RPC error 对象的原始字段
	RPCCode int
	RPCData interface{}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client error [%d]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("client error [%d]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError 检查错误链中是否包含 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// 错误码定义
const (
	ErrCodeNetwork         = 1000 // 网络错误
	ErrCodeTimeout         = 1001 // 超时错误
	ErrCodeInvalidResponse = 1002 // 无效响应
	ErrCodeRPCError        = 1003 // JSON-RPC错误
	ErrCodeNotSupported    = 1004 // 不支持的操作
	ErrCodeNotFound        = 1005 // 资源不存在（HTTP 404）
	ErrCodeHTTPStatus      = 1006 // 其他非 2xx 响应
)

// NewNetworkError 创建网络错误
func NewNetworkError(err error) *Error {
	return &Error{
		Code:    ErrCodeNetwork,
		Message: "network error",
		Err:     err,
	}
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(err error) *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: "request timeout",
		Err:     err,
	}
}

// NewInvalidResponseError 创建无效响应错误
func NewInvalidResponseError(message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidResponse,
		Message: message,
	}
}

// NewRPCError 创建JSON-RPC错误
func NewRPCError(code int, message string, data interface{}) *Error {
	return &Error{
		Code:    ErrCodeRPCError,
		Message: message,
		RPCCode: code,
		RPCData: data,
	}
}

// NewNotSupportedError 创建不支持的操作错误
func NewNotSupportedError(operation string) *Error {
	return &Error{
		Code:    ErrCodeNotSupported,
		Message: fmt.Sprintf("operation not supported: %s", operation),
	}
}

// NewHTTPStatusError 创建 HTTP 状态错误（404 单独归类为 NotFound）
func NewHTTPStatusError(status int, summary string) *Error {
	code := ErrCodeHTTPStatus
	if status == http.StatusNotFound {
		code = ErrCodeNotFound
	}
	msg := fmt.Sprintf("HTTP %d", status)
	if summary != "" {
		msg = fmt.Sprintf("HTTP %d: %s", status, summary)
	}
	return &Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
	}
}

// classifyTransportError 将 http.Client.Do 的错误归类为超时或网络错误
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewNetworkError(err)
}

// IsNotFound 是否为 404
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrCodeNotFound
}

// IsTimeout 是否为超时
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	e, ok := AsError(err)
	return ok && e.Code == ErrCodeTimeout
}

// RevertData 提取 eth_call 回滚携带的数据（自定义错误的 ABI 编码）
func RevertData(err error) ([]byte, bool) {
	e, ok := AsError(err)
	if !ok || e.Code != ErrCodeRPCError {
		return nil, false
	}
	s, ok := e.RPCData.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return nil, false
	}
	data, decErr := hexutil.Decode(s)
	if decErr != nil {
		return nil, false
	}
	return data, true
}

// IsTransportFailure 请求是否未得到节点的明确答复（网络、超时、非 2xx、取消）
//
// JSON-RPC error 对象（包括合约回滚）不属于此类。
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code {
	case ErrCodeNetwork, ErrCodeTimeout, ErrCodeHTTPStatus, ErrCodeNotFound:
		return true
	}
	return false
}
