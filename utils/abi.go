package utils

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseABI 解析合约 ABI JSON
func ParseABI(definition string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}

// MustParseABI 解析失败时 panic（仅用于包级常量 ABI）
func MustParseABI(definition string) abi.ABI {
	parsed, err := ParseABI(definition)
	if err != nil {
		panic(err)
	}
	return parsed
}

// CustomError 解码后的合约自定义错误
type CustomError struct {
	Name string
	Args map[string]interface{}
}

func (e *CustomError) Error() string {
	if len(e.Args) == 0 {
		return e.Name + "()"
	}
	keys := make([]string, 0, len(e.Args))
	for k := range e.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Args[k]))
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}

// DecodeCustomError 按 ABI 中声明的 error 解码回滚数据
//
// 选择器不匹配任何已声明错误时返回 false。
func DecodeCustomError(parsed abi.ABI, data []byte) (*CustomError, bool) {
	if len(data) < 4 {
		return nil, false
	}
	for name, e := range parsed.Errors {
		if !bytes.Equal(e.ID[:4], data[:4]) {
			continue
		}
		args := make(map[string]interface{}, len(e.Inputs))
		if err := e.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
			return nil, false
		}
		return &CustomError{Name: name, Args: args}, true
	}
	return nil, false
}
