package types

import (
	"math/big"
)

// Decision 验证决策
//
// 只有两个实现：*Allow 与 *Deny，二者互斥。
type Decision interface {
	Allowed() bool
	isDecision()
}

// Allow 放行决策
type Allow struct {
	ContentHash   string   // 授权哈希（Safe 消息哈希，0x 前缀）
	MessageDigest string   // EIP-191 摘要（传给 isValidSignature 的 bytes32）
	Wallet        string   // 多签钱包地址
	ChainID       *big.Int // 钱包所在链
	Confirmations int      // 注册服务返回的签名数量
	Threshold     int      // 钱包门限
	Record        *AuthorizationRecord
}

func (a *Allow) isDecision() {}

// Allowed 是否放行
func (a *Allow) Allowed() bool { return true }

// AsAllow 取出放行详情
func AsAllow(d Decision) (*Allow, bool) {
	a, ok := d.(*Allow)
	return a, ok
}

// DecisionDeny 取出拒绝详情
func DecisionDeny(d Decision) (*Deny, bool) {
	dn, ok := d.(*Deny)
	return dn, ok
}
