package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// 授权记录字段名（类型模式与载荷共用）
const (
	FieldRequesterID      = "requesterId"
	FieldRequesterVersion = "requesterVersion"
	FieldActionID         = "actionId"
	FieldParametersDigest = "parametersDigest"
	FieldPrincipalAddress = "principalAddress"
	FieldExpiry           = "expiry"
	FieldNonce            = "nonce"
)

// RecordFields 授权记录的全部字段（顺序即类型模式顺序）
var RecordFields = []string{
	FieldRequesterID,
	FieldRequesterVersion,
	FieldActionID,
	FieldParametersDigest,
	FieldPrincipalAddress,
	FieldExpiry,
	FieldNonce,
}

// IdentityFields 需要与调用方期望值逐一比对的字段
// nonce 与 expiry 在提议时生成，验证方无法预先得知，因此只读取不比对
var IdentityFields = []string{
	FieldRequesterID,
	FieldRequesterVersion,
	FieldActionID,
	FieldPrincipalAddress,
	FieldParametersDigest,
}

// AuthorizationRecord 被批准的授权记录
//
// 整数字段统一使用 *big.Int，规范化编码时输出十进制字符串，
// 与持有它的整数类型宽度无关。
type AuthorizationRecord struct {
	RequesterID      *big.Int
	RequesterVersion *big.Int
	ActionID         string // 内容标识（如 IPFS CID）
	ParametersDigest string
	PrincipalAddress string // 代其行事的钱包地址
	Expiry           *big.Int
	Nonce            *big.Int
}

// ToMap 转换为载荷映射（整数保持为 *big.Int，交由规范化编码器处理）
func (r AuthorizationRecord) ToMap() map[string]interface{} {
	return map[string]interface{}{
		FieldRequesterID:      r.RequesterID,
		FieldRequesterVersion: r.RequesterVersion,
		FieldActionID:         r.ActionID,
		FieldParametersDigest: r.ParametersDigest,
		FieldPrincipalAddress: r.PrincipalAddress,
		FieldExpiry:           r.Expiry,
		FieldNonce:            r.Nonce,
	}
}

// Validate 检查记录完整性
func (r AuthorizationRecord) Validate() error {
	ints := map[string]*big.Int{
		FieldRequesterID:      r.RequesterID,
		FieldRequesterVersion: r.RequesterVersion,
		FieldExpiry:           r.Expiry,
		FieldNonce:            r.Nonce,
	}
	for _, name := range RecordFields {
		v, ok := ints[name]
		if !ok {
			continue
		}
		if v == nil {
			return fmt.Errorf("%s is required", name)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if r.ActionID == "" {
		return fmt.Errorf("%s is required", FieldActionID)
	}
	if r.PrincipalAddress == "" {
		return fmt.Errorf("%s is required", FieldPrincipalAddress)
	}
	return nil
}

// Approval 共同签名者的一次批准
type Approval struct {
	Owner         string `json:"owner,omitempty"`
	Signature     string `json:"signature"`
	SignatureType string `json:"signatureType,omitempty"`
	Created       string `json:"created,omitempty"`
	Modified      string `json:"modified,omitempty"`
}

// SignerAddress 解析签名者地址（缺失或非法时返回 false）
func (a Approval) SignerAddress() (common.Address, bool) {
	if !common.IsHexAddress(a.Owner) {
		return common.Address{}, false
	}
	return common.HexToAddress(a.Owner), true
}

// ProposedMessage 注册服务中的消息记录（只读）
type ProposedMessage struct {
	Safe              string     `json:"safe"`
	MessageHash       string     `json:"messageHash"`
	Message           RawMessage `json:"message"`
	Confirmations     []Approval `json:"confirmations"`
	PreparedSignature string     `json:"preparedSignature,omitempty"`
	ProposedBy        string     `json:"proposedBy,omitempty"`
	Created           string     `json:"created,omitempty"`
	Modified          string     `json:"modified,omitempty"`
}

// RawMessage 序列化的授权记录
//
// 注册服务可能以 JSON 字符串或内联对象两种形式返回，
// 统一保存为原始 JSON 字节（对象形式）。
type RawMessage []byte

// UnmarshalJSON 兼容字符串与对象两种形式
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = nil
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode message string: %w", err)
		}
		*m = RawMessage(strings.TrimSpace(s))
		return nil
	}
	*m = append((*m)[:0], trimmed...)
	return nil
}

// MarshalJSON 以字符串形式输出
func (m RawMessage) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(string(m))
}

// ConsumptionEntry 重放账本条目
type ConsumptionEntry struct {
	Consumer   common.Address
	Hash       common.Hash
	ConsumedAt uint64 // 0 表示从未消费
}

// Consumed 是否已消费
func (e ConsumptionEntry) Consumed() bool {
	return e.ConsumedAt != 0
}
