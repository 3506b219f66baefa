package message

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/weisyn/multisig-authz-go/types"
)

// safeMessageType Safe 钱包的消息结构
const safeMessageType = "SafeMessage"

// Hashes 哈希计算结果
type Hashes struct {
	// MessageDigest EIP-191 摘要，isValidSignature 的 bytes32 参数
	MessageDigest common.Hash

	// AuthorizationHash Safe 消息哈希，即内容哈希
	AuthorizationHash common.Hash
}

// ContentHash 内容哈希的 0x 十六进制形式
func (h *Hashes) ContentHash() string {
	return h.AuthorizationHash.Hex()
}

// ComputeAuthorizationHash 计算授权哈希
//
// **算法**（两步缺一不可）：
// 1. digest = keccak256("\x19Ethereum Signed Message:\n" + len + canonical)
// 2. 以 digest 作为 SafeMessage{message: bytes} 的 message，
//    在域 {chainId, verifyingContract: wallet} 下计算 EIP-712 哈希
func ComputeAuthorizationHash(canonical string, wallet common.Address, chainID *big.Int) (*Hashes, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, types.ErrInvalidRequest(types.LayerMessage, "chain id is required")
	}
	if wallet == (common.Address{}) {
		return nil, types.ErrInvalidRequest(types.LayerMessage, "wallet address is required")
	}

	digest := common.BytesToHash(accounts.TextHash([]byte(canonical)))
	safeHash, err := SafeMessageHash(digest.Bytes(), wallet, chainID)
	if err != nil {
		return nil, err
	}

	return &Hashes{
		MessageDigest:     digest,
		AuthorizationHash: safeHash,
	}, nil
}

// SafeMessageHash 计算 Safe 钱包 getMessageHash(message) 的结果
func SafeMessageHash(message []byte, wallet common.Address, chainID *big.Int) (common.Hash, error) {
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			DomainType: {
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			safeMessageType: {
				{Name: "message", Type: "bytes"},
			},
		},
		PrimaryType: safeMessageType,
		Domain: apitypes.TypedDataDomain{
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: wallet.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"message": hexutil.Encode(message),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return common.Hash{}, types.ErrSerialization("safe message typed data: " + err.Error())
	}
	return common.BytesToHash(hash), nil
}

// HashEnvelope 构建规范化字符串并计算哈希（域中的钱包与链 ID 即哈希参数）
func HashEnvelope(env *Envelope) (string, *Hashes, error) {
	canonical, err := CanonicalString(env)
	if err != nil {
		return "", nil, err
	}
	hashes, err := ComputeAuthorizationHash(canonical, env.Domain.VerifyingContract, env.Domain.ChainID)
	if err != nil {
		return "", nil, err
	}
	return canonical, hashes, nil
}
