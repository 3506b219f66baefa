package utils

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// multihash 前缀：sha2-256（0x12），长度 32（0x20）
var sha256MultihashPrefix = []byte{0x12, 0x20}

// ParametersDigest 计算动作参数的摘要
//
// **格式**：
// - 对参数做规范化编码（与授权消息使用同一编码器）
// - SHA-256 后加 multihash 前缀，Base58 编码（CIDv0 形式，以 "Qm" 开头）
//
// 请求方与共同签名者用同一函数从参数得到 parametersDigest，
// 参数的键顺序与整数类型宽度不影响结果。
func ParametersDigest(params interface{}) (string, error) {
	canonical, err := CanonicalBytes(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return base58.Encode(append(append([]byte{}, sha256MultihashPrefix...), sum[:]...)), nil
}

// DecodeParametersDigest 解码参数摘要，返回 32 字节 SHA-256 值
func DecodeParametersDigest(digest string) ([]byte, error) {
	decoded := base58.Decode(digest)
	if len(decoded) != 34 || decoded[0] != sha256MultihashPrefix[0] || decoded[1] != sha256MultihashPrefix[1] {
		return nil, fmt.Errorf("invalid parameters digest %q", digest)
	}
	return decoded[2:], nil
}
