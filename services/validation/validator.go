// Package validation 比对取回的授权记录与本次调用的期望值
package validation

import (
	"fmt"
	"math/big"
	"time"

	"github.com/weisyn/multisig-authz-go/services/message"
	"github.com/weisyn/multisig-authz-go/types"
	"github.com/weisyn/multisig-authz-go/utils"
)

// Validate 校验取回的记录
//
// **检查顺序**：
// 1. 结构：types、domain、message 必须存在，否则 MALFORMED_MESSAGE
// 2. 字段存在：七个字段逐一检查，缺失返回 MISSING_FIELD
// 3. 身份字段按 requesterId、requesterVersion、actionId、principalAddress、
//    parametersDigest 的顺序比较规范化字符串，第一个不一致返回 FIELD_MISMATCH
// 4. expiry 解析为整数（失败为 MALFORMED_MESSAGE），expiry <= now 返回 EXPIRED
//
// nonce 与 expiry 从取回的记录中读取，不与期望值比较；
// 调用方若持有签名覆盖的记录，应再用 MatchSigned 绑定。
// 成功时返回带有取回 nonce/expiry 的完整记录。
func Validate(expected types.AuthorizationRecord, retrieved *message.RawEnvelope, now time.Time) (*types.AuthorizationRecord, error) {
	if retrieved == nil {
		return nil, types.ErrMalformedMessage("retrieved envelope is empty")
	}
	switch {
	case retrieved.Types == nil:
		return nil, types.ErrMalformedMessage("missing types")
	case retrieved.Domain == nil:
		return nil, types.ErrMalformedMessage("missing domain")
	case retrieved.Message == nil:
		return nil, types.ErrMalformedMessage("missing message")
	}

	payload := retrieved.Message
	for _, field := range types.RecordFields {
		if v, ok := payload[field]; !ok || v == nil {
			return nil, types.ErrMissingField(field)
		}
	}

	want := expected.ToMap()
	for _, field := range types.IdentityFields {
		exp, err := utils.CanonicalScalar(want[field])
		if err != nil {
			return nil, err
		}
		got, err := utils.CanonicalScalar(payload[field])
		if err != nil {
			return nil, types.ErrMalformedMessage(fmt.Sprintf("%s: %v", field, err))
		}
		if !fieldEqual(field, exp, got) {
			return nil, types.ErrFieldMismatch(field, exp, got)
		}
	}

	expiry, err := utils.ParseInteger(payload[types.FieldExpiry])
	if err != nil {
		return nil, types.ErrMalformedMessage(fmt.Sprintf("expiry: %v", err))
	}
	nonce, err := utils.ParseInteger(payload[types.FieldNonce])
	if err != nil {
		return nil, types.ErrMalformedMessage(fmt.Sprintf("nonce: %v", err))
	}

	nowSec := now.Unix()
	if expiry.Cmp(big.NewInt(nowSec)) <= 0 {
		return nil, types.ErrExpired(nowSec, expiry.String())
	}

	return &types.AuthorizationRecord{
		RequesterID:      copyInt(expected.RequesterID),
		RequesterVersion: copyInt(expected.RequesterVersion),
		ActionID:         expected.ActionID,
		ParametersDigest: expected.ParametersDigest,
		PrincipalAddress: expected.PrincipalAddress,
		Expiry:           expiry,
		Nonce:            nonce,
	}, nil
}

// MatchSigned 把取回记录的 nonce/expiry 绑定到签名覆盖的值
//
// signed 是计算内容哈希所用的记录，也就是共同签名人签过的那份。
// 注册表不可信：它可以在同一哈希下返回不同的 nonce 或 expiry，
// 因此先按签名值做过期检查，再要求取回值与之一致。
func MatchSigned(signed types.AuthorizationRecord, validated *types.AuthorizationRecord, now time.Time) error {
	if signed.Expiry == nil || signed.Nonce == nil {
		return types.ErrMalformedMessage("signed record carries no expiry or nonce")
	}
	nowSec := now.Unix()
	if signed.Expiry.Cmp(big.NewInt(nowSec)) <= 0 {
		return types.ErrExpired(nowSec, signed.Expiry.String())
	}
	if validated == nil {
		return types.ErrMalformedMessage("retrieved record is empty")
	}
	if validated.Expiry == nil || signed.Expiry.Cmp(validated.Expiry) != 0 {
		return types.ErrFieldMismatch(types.FieldExpiry, signed.Expiry.String(), intString(validated.Expiry))
	}
	if validated.Nonce == nil || signed.Nonce.Cmp(validated.Nonce) != 0 {
		return types.ErrFieldMismatch(types.FieldNonce, signed.Nonce.String(), intString(validated.Nonce))
	}
	return nil
}

func intString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// fieldEqual 地址字段按 20 字节比较，其余字段比较规范化字符串
func fieldEqual(field, expected, received string) bool {
	if expected == received {
		return true
	}
	if field == types.FieldPrincipalAddress {
		return utils.EqualAddress(expected, received)
	}
	return false
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
