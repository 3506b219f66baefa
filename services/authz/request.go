package authz

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/multisig-authz-go/types"
)

// Request 一次门控动作的授权请求
//
// 身份字段（requester、action、principal、parametersDigest）由调用框架提供，
// nonce 与 expiry 来自动作参数。
type Request struct {
	RequesterID      *big.Int
	RequesterVersion *big.Int
	ActionID         string
	ParametersDigest string
	PrincipalAddress string
	Nonce            *big.Int
	Expiry           *big.Int

	// Wallet 持有授权的多签钱包
	Wallet common.Address

	// ChainID 钱包所在链
	ChainID *big.Int
}

// Record 期望的授权记录
func (r Request) Record() types.AuthorizationRecord {
	return types.AuthorizationRecord{
		RequesterID:      r.RequesterID,
		RequesterVersion: r.RequesterVersion,
		ActionID:         r.ActionID,
		ParametersDigest: r.ParametersDigest,
		PrincipalAddress: r.PrincipalAddress,
		Expiry:           r.Expiry,
		Nonce:            r.Nonce,
	}
}

func (r Request) validate() error {
	if r.Wallet == (common.Address{}) {
		return types.ErrInvalidRequest(types.LayerAuthz, "wallet address is required")
	}
	if r.ChainID == nil || r.ChainID.Sign() <= 0 {
		return types.ErrInvalidRequest(types.LayerAuthz, "chain id must be positive")
	}
	if err := r.Record().Validate(); err != nil {
		return types.ErrInvalidRequest(types.LayerAuthz, err.Error())
	}
	if !common.IsHexAddress(r.PrincipalAddress) {
		return types.ErrInvalidRequest(types.LayerAuthz, "principal address is not a valid address")
	}
	return nil
}
