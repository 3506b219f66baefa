package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress 解析十六进制地址
//
// **格式**：
// - 40 个十六进制字符，可带 0x 前缀
// - 全小写或全大写不做校验；大小写混合时必须满足 EIP-55 校验和
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}

	addr := common.HexToAddress(s)
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if addr.Hex()[2:] != body {
			return common.Address{}, fmt.Errorf("address %q fails EIP-55 checksum", s)
		}
	}
	return addr, nil
}

// EqualAddress 按 20 字节值比较两个地址（忽略大小写与 0x 前缀）
//
// 任一方不是合法地址时返回 false。
func EqualAddress(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
