package multisig

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/multisig-authz-go/utils"
)

// safeABIJSON 多签钱包中本模块用到的方法
const safeABIJSON = `[
	{"type":"function","name":"getThreshold","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getOwners","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"isValidSignature","stateMutability":"view",
	 "inputs":[{"name":"_dataHash","type":"bytes32"},{"name":"_signature","type":"bytes"}],
	 "outputs":[{"name":"","type":"bytes4"}]}
]`

var safeABI = utils.MustParseABI(safeABIJSON)

// EIP1271MagicValue isValidSignature(bytes32,bytes) 的成功返回值
var EIP1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

func packGetThreshold() []byte {
	data, _ := safeABI.Pack("getThreshold")
	return data
}

func unpackThreshold(data []byte) (int, error) {
	out, err := safeABI.Unpack("getThreshold", data)
	if err != nil {
		return 0, fmt.Errorf("decode getThreshold: %w", err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("decode getThreshold: unexpected type %T", out[0])
	}
	if !v.IsInt64() || v.Int64() > math.MaxInt32 {
		return 0, fmt.Errorf("threshold out of range: %s", v)
	}
	return int(v.Int64()), nil
}

func packGetOwners() []byte {
	data, _ := safeABI.Pack("getOwners")
	return data
}

func unpackOwners(data []byte) ([]common.Address, error) {
	out, err := safeABI.Unpack("getOwners", data)
	if err != nil {
		return nil, fmt.Errorf("decode getOwners: %w", err)
	}
	owners, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("decode getOwners: unexpected type %T", out[0])
	}
	return owners, nil
}

func packIsValidSignature(digest common.Hash, signature []byte) ([]byte, error) {
	data, err := safeABI.Pack("isValidSignature", digest, signature)
	if err != nil {
		return nil, fmt.Errorf("encode isValidSignature: %w", err)
	}
	return data, nil
}

func unpackMagicValue(data []byte) ([4]byte, error) {
	out, err := safeABI.Unpack("isValidSignature", data)
	if err != nil {
		return [4]byte{}, fmt.Errorf("decode isValidSignature: %w", err)
	}
	v, ok := out[0].([4]byte)
	if !ok {
		return [4]byte{}, fmt.Errorf("decode isValidSignature: unexpected type %T", out[0])
	}
	return v, nil
}
