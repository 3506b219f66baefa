package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReasonCode 拒绝原因码（稳定的标签，供调用框架分支处理）
type ReasonCode string

const (
	ReasonNotFound               ReasonCode = "NOT_FOUND"
	ReasonWrongWallet            ReasonCode = "WRONG_WALLET"
	ReasonInsufficientSignatures ReasonCode = "INSUFFICIENT_SIGNATURES"
	ReasonInvalidSignature       ReasonCode = "INVALID_SIGNATURE"
	ReasonMalformedMessage       ReasonCode = "MALFORMED_MESSAGE"
	ReasonMissingField           ReasonCode = "MISSING_FIELD"
	ReasonFieldMismatch          ReasonCode = "FIELD_MISMATCH"
	ReasonExpired                ReasonCode = "EXPIRED"
	ReasonAlreadyConsumed        ReasonCode = "ALREADY_CONSUMED"
	ReasonTransportError         ReasonCode = "TRANSPORT_ERROR"
	ReasonSerializationError     ReasonCode = "SERIALIZATION_ERROR"
	ReasonEmptyInput             ReasonCode = "EMPTY_INPUT"
	ReasonFinalizeFailed         ReasonCode = "FINALIZE_FAILED"
	ReasonFinalizePending        ReasonCode = "FINALIZE_PENDING"
	ReasonInvalidRequest         ReasonCode = "INVALID_REQUEST"
	ReasonInternalError          ReasonCode = "INTERNAL_ERROR"
)

// Layer 常量（错误产生的组件）
const (
	LayerEncoder   = "canonical-encoder"
	LayerMessage   = "typed-message"
	LayerRegistry  = "message-registry"
	LayerMultisig  = "multisig-verifier"
	LayerValidator = "field-validator"
	LayerReplay    = "replay-ledger"
	LayerAuthz     = "authz"
)

// Deny 拒绝决策
//
// 同时实现 error 接口：流水线各组件直接返回 *Deny，
// 状态机在边界处统一恢复为 Decision，不会以普通异常的形式泄漏给调用框架。
type Deny struct {
	Reason      ReasonCode
	Layer       string
	UserMessage string
	Detail      string
	Details     map[string]interface{}
	TraceID     string
	Timestamp   string
}

func (d *Deny) Error() string {
	if d.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", d.Reason, d.UserMessage, d.Detail)
	}
	return fmt.Sprintf("[%s] %s", d.Reason, d.UserMessage)
}

func (d *Deny) isDecision() {}

// Allowed 是否放行（Deny 恒为 false）
func (d *Deny) Allowed() bool { return false }

// Is 按原因码比较，便于 errors.Is(err, &Deny{Reason: ...})
func (d *Deny) Is(target error) bool {
	t, ok := target.(*Deny)
	if !ok {
		return false
	}
	return t.Reason == d.Reason
}

// WithDetail 追加诊断字段（返回自身便于链式调用）
func (d *Deny) WithDetail(key string, value interface{}) *Deny {
	if d.Details == nil {
		d.Details = make(map[string]interface{})
	}
	d.Details[key] = value
	return d
}

// NewDeny 创建拒绝决策
func NewDeny(reason ReasonCode, layer string, userMessage string, detail string, details map[string]interface{}) *Deny {
	if details == nil {
		details = make(map[string]interface{})
	}

	return &Deny{
		Reason:      reason,
		Layer:       layer,
		UserMessage: userMessage,
		Detail:      detail,
		Details:     details,
		TraceID:     uuid.New().String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// AsDeny 检查错误链中是否包含 *Deny
func AsDeny(err error) (*Deny, bool) {
	var d *Deny
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// HasReason 判断错误是否为指定原因码的拒绝
func HasReason(err error, reason ReasonCode) bool {
	d, ok := AsDeny(err)
	return ok && d.Reason == reason
}

// ErrSerialization 规范化失败
func ErrSerialization(detail string) *Deny {
	return NewDeny(ReasonSerializationError, LayerEncoder, "canonical serialization failed", detail, nil)
}

// ErrTransport 访问注册服务或账本节点失败
func ErrTransport(layer string, err error) *Deny {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return NewDeny(ReasonTransportError, layer, "remote service unreachable or returned an error", detail, nil)
}

// ErrNotFound 消息尚未被提议
func ErrNotFound(contentHash string) *Deny {
	return NewDeny(ReasonNotFound, LayerRegistry, "message has not been proposed", "",
		map[string]interface{}{"contentHash": contentHash})
}

// ErrWrongWallet 注册服务返回的消息属于其他钱包
func ErrWrongWallet(expected, received string) *Deny {
	return NewDeny(ReasonWrongWallet, LayerMultisig, "message belongs to a different wallet", "",
		map[string]interface{}{"expected": expected, "received": received})
}

// ErrInsufficientSignatures 签名数量未达到法定人数
func ErrInsufficientSignatures(current, required int) *Deny {
	return NewDeny(ReasonInsufficientSignatures, LayerMultisig, "not enough co-signer approvals",
		fmt.Sprintf("%d of %d", current, required),
		map[string]interface{}{"current": current, "required": required})
}

// ErrInvalidSignature 聚合签名未通过钱包验证
func ErrInvalidSignature(detail string, confirmations int) *Deny {
	return NewDeny(ReasonInvalidSignature, LayerMultisig, "aggregate signature rejected by wallet", detail,
		map[string]interface{}{"confirmations": confirmations})
}

// ErrMalformedMessage 取回的记录结构损坏
func ErrMalformedMessage(detail string) *Deny {
	return NewDeny(ReasonMalformedMessage, LayerValidator, "retrieved message is malformed", detail, nil)
}

// ErrMissingField 取回的记录缺少字段
func ErrMissingField(field string) *Deny {
	return NewDeny(ReasonMissingField, LayerValidator, "retrieved message is missing a field", field,
		map[string]interface{}{"field": field})
}

// ErrFieldMismatch 期望值与取回值不一致
func ErrFieldMismatch(field, expected, received string) *Deny {
	return NewDeny(ReasonFieldMismatch, LayerValidator, "retrieved message does not match the invocation", field,
		map[string]interface{}{"field": field, "expected": expected, "received": received})
}

// ErrExpired 授权已过期
func ErrExpired(now int64, expiry string) *Deny {
	return NewDeny(ReasonExpired, LayerValidator, "authorization has expired", "",
		map[string]interface{}{"now": now, "expiry": expiry})
}

// ErrAlreadyConsumed 授权已被消费（重放）
func ErrAlreadyConsumed(consumer, hash string, consumedAt uint64) *Deny {
	return NewDeny(ReasonAlreadyConsumed, LayerReplay, "authorization has already been consumed", "",
		map[string]interface{}{"consumer": consumer, "hash": hash, "consumedAt": consumedAt})
}

// ErrEmptyInput 批量消费的哈希列表为空
func ErrEmptyInput() *Deny {
	return NewDeny(ReasonEmptyInput, LayerReplay, "no hashes to consume", "", nil)
}

// RegistryProblem 注册服务的错误响应体
// 形如 {"detail": "Not found."} 或 {"code": 1, "message": "..."}
type RegistryProblem struct {
	Detail  string `json:"detail,omitempty"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Summary 返回可读的错误摘要
func (p *RegistryProblem) Summary() string {
	parts := make([]string, 0, 2)
	if p.Detail != "" {
		parts = append(parts, p.Detail)
	}
	if p.Message != "" {
		parts = append(parts, p.Message)
	}
	return strings.Join(parts, "; ")
}

// ErrInvalidRequest 调用参数不完整或非法
func ErrInvalidRequest(layer string, detail string) *Deny {
	return NewDeny(ReasonInvalidRequest, layer, "invalid authorization request", detail, nil)
}

// ErrFinalizeFailed 受控动作已执行，但消费记录写入失败
func ErrFinalizeFailed(consumer, hash string, err error) *Deny {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return NewDeny(ReasonFinalizeFailed, LayerReplay, "action executed but consumption was not recorded", detail,
		map[string]interface{}{"consumer": consumer, "hash": hash})
}

// ErrFinalizePending consume 交易已广播，截止前未确认
//
// 交易仍可能上链，txHash 用于事后对账。
func ErrFinalizePending(consumer, hash, txHash string, err error) *Deny {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return NewDeny(ReasonFinalizePending, LayerReplay, "consumption transaction broadcast but not confirmed", detail,
		map[string]interface{}{"consumer": consumer, "hash": hash, "txHash": txHash})
}

// ErrInternal 内部错误（含恢复的 panic）
func ErrInternal(layer string, detail string) *Deny {
	return NewDeny(ReasonInternalError, layer, "internal error", detail, nil)
}
