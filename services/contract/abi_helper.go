package contract

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/utils"
)

// packCall 按 ABI 编码方法调用（4 字节选择器 + 参数）
func packCall(parsed abi.ABI, method string, args []interface{}) ([]byte, error) {
	if _, ok := parsed.Methods[method]; !ok {
		return nil, fmt.Errorf("method %q not found in ABI", method)
	}
	return parsed.Pack(method, args...)
}

// unpackResult 解码方法返回值；无返回值的方法返回空切片
func unpackResult(parsed abi.ABI, method string, data []byte) ([]interface{}, error) {
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %q not found in ABI", method)
	}
	if len(m.Outputs) == 0 {
		return []interface{}{}, nil
	}
	values, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return values, nil
}

// DecodeRevert 从调用错误中解析 ABI 声明的自定义错误
func DecodeRevert(parsed abi.ABI, err error) (*utils.CustomError, bool) {
	data, ok := client.RevertData(err)
	if !ok {
		return nil, false
	}
	return utils.DecodeCustomError(parsed, data)
}
