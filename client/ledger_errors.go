package client

import (
	"errors"
	"fmt"
)

// LedgerErrorCode LedgerClient 错误码
type LedgerErrorCode string

const (
	LedgerErrCodeNetwork       LedgerErrorCode = "NETWORK_ERROR"
	LedgerErrCodeRPC           LedgerErrorCode = "RPC_ERROR"
	LedgerErrCodeInvalidParams LedgerErrorCode = "INVALID_PARAMS"
	LedgerErrCodeNotFound      LedgerErrorCode = "NOT_FOUND"
	LedgerErrCodeDecodeFailed  LedgerErrorCode = "DECODE_FAILED"
)

// LedgerError LedgerClient 统一错误类型
type LedgerError struct {
	Code    LedgerErrorCode
	Message string
	Cause   error
}

func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause=%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// wrapRPCError 包装 RPC 错误为 LedgerError
//
// 原始 *Error 保留在 Cause 中，RevertData 等仍可通过 errors.As 取得。
func wrapRPCError(method string, err error) error {
	if err == nil {
		return nil
	}

	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return err
	}

	if e, ok := AsError(err); ok {
		switch e.Code {
		case ErrCodeNetwork, ErrCodeTimeout, ErrCodeHTTPStatus, ErrCodeNotFound:
			return &LedgerError{
				Code:    LedgerErrCodeNetwork,
				Message: fmt.Sprintf("network error calling %s", method),
				Cause:   err,
			}
		case ErrCodeRPCError:
			return &LedgerError{
				Code:    LedgerErrCodeRPC,
				Message: fmt.Sprintf("RPC error calling %s: %s", method, e.Message),
				Cause:   err,
			}
		case ErrCodeInvalidResponse:
			return &LedgerError{
				Code:    LedgerErrCodeDecodeFailed,
				Message: fmt.Sprintf("invalid response from %s", method),
				Cause:   err,
			}
		}
	}

	return err
}

func decodeError(method string, err error) error {
	return &LedgerError{
		Code:    LedgerErrCodeDecodeFailed,
		Message: fmt.Sprintf("decode %s result", method),
		Cause:   err,
	}
}
