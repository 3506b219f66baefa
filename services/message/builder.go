// Package message 构建授权记录的类型化消息并计算 Safe 消息哈希
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/multisig-authz-go/types"
	"github.com/weisyn/multisig-authz-go/utils"
)

const (
	// PrimaryType 授权记录的主类型
	PrimaryType = "Authorization"

	// DomainType 域的类型名
	DomainType = "EIP712Domain"

	// DefaultDomainName 域名称标签（不是链或合约的默认值）
	DefaultDomainName = "MultisigAuthorization"

	// DefaultDomainVersion 域版本标签
	DefaultDomainVersion = "1"
)

// TypedField 类型模式中的一个字段
type TypedField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Domain 类型化消息的域
//
// VerifyingContract 必须是多签钱包地址，ChainID 必须是钱包所在链，
// 二者每次调用显式提供。
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain 创建域
func NewDomain(name, version string, chainID *big.Int, wallet common.Address) Domain {
	var id *big.Int
	if chainID != nil {
		id = new(big.Int).Set(chainID)
	}
	return Domain{
		Name:              name,
		Version:           version,
		ChainID:           id,
		VerifyingContract: wallet,
	}
}

func (d Domain) validate() error {
	if d.ChainID == nil || d.ChainID.Sign() <= 0 {
		return types.ErrInvalidRequest(types.LayerMessage, "domain chain id is required")
	}
	if d.VerifyingContract == (common.Address{}) {
		return types.ErrInvalidRequest(types.LayerMessage, "domain verifying contract is required")
	}
	return nil
}

// toMap 域的载荷形式（地址使用 EIP-55 校验和格式）
func (d Domain) toMap() map[string]interface{} {
	return map[string]interface{}{
		"name":              d.Name,
		"version":           d.Version,
		"chainId":           d.ChainID,
		"verifyingContract": d.VerifyingContract.Hex(),
	}
}

// Envelope 类型化消息信封
type Envelope struct {
	Types       map[string][]TypedField
	Domain      Domain
	PrimaryType string
	Message     map[string]interface{}
}

// authorizationTypes 固定的类型模式
func authorizationTypes() map[string][]TypedField {
	return map[string][]TypedField{
		DomainType: {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		PrimaryType: {
			{Name: types.FieldRequesterID, Type: "uint256"},
			{Name: types.FieldRequesterVersion, Type: "uint256"},
			{Name: types.FieldActionID, Type: "string"},
			{Name: types.FieldParametersDigest, Type: "string"},
			{Name: types.FieldPrincipalAddress, Type: "address"},
			{Name: types.FieldExpiry, Type: "uint256"},
			{Name: types.FieldNonce, Type: "uint256"},
		},
	}
}

// Build 构建授权记录的类型化消息
//
// 输入相同则输出相同；记录字段缺失或域不完整时返回 INVALID_REQUEST。
func Build(record types.AuthorizationRecord, domain Domain) (*Envelope, error) {
	if err := record.Validate(); err != nil {
		return nil, types.ErrInvalidRequest(types.LayerMessage, err.Error())
	}
	if err := domain.validate(); err != nil {
		return nil, err
	}

	return &Envelope{
		Types:       authorizationTypes(),
		Domain:      NewDomain(domain.Name, domain.Version, domain.ChainID, domain.VerifyingContract),
		PrimaryType: PrimaryType,
		Message:     record.ToMap(),
	}, nil
}

// ToMap 信封的载荷形式 {types, domain, primaryType, message}
func (e *Envelope) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"types":       e.Types,
		"domain":      e.Domain.toMap(),
		"primaryType": e.PrimaryType,
		"message":     e.Message,
	}
}

// CanonicalString 信封的规范化字符串（即被哈希、被共同签名者签名的字符串）
func CanonicalString(env *Envelope) (string, error) {
	if env == nil {
		return "", types.ErrInvalidRequest(types.LayerMessage, "envelope is nil")
	}
	return utils.Canonicalize(env.ToMap())
}

// RawEnvelope 从注册服务取回的序列化记录
//
// 字段缺失时对应值为 nil，结构检查由字段校验器完成。
type RawEnvelope struct {
	Types       map[string]interface{} `json:"types"`
	Domain      map[string]interface{} `json:"domain"`
	PrimaryType string                 `json:"primaryType"`
	Message     map[string]interface{} `json:"message"`
}

// ParseEnvelope 解析序列化记录（数字保留为 json.Number）
func ParseEnvelope(raw []byte) (*RawEnvelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, types.ErrMalformedMessage("serialized record is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var env RawEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, types.ErrMalformedMessage(fmt.Sprintf("decode serialized record: %v", err))
	}
	return &env, nil
}
