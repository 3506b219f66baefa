package contract

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/utils"
)

const counterABI = `[
	{"type":"function","name":"get","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"bump","stateMutability":"nonpayable","inputs":[{"name":"by","type":"uint256"}],"outputs":[]},
	{"type":"error","name":"TooLarge","inputs":[{"name":"limit","type":"uint256"}]}
]`

var parsedCounter = utils.MustParseABI(counterABI)

// TestPackCall 测试调用数据编码
func TestPackCall(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		args    []interface{}
		wantLen int
		wantErr bool
	}{
		{name: "address 参数", method: "get", args: []interface{}{common.HexToAddress("0x01")}, wantLen: 36},
		{name: "uint256 参数", method: "bump", args: []interface{}{big.NewInt(5)}, wantLen: 36},
		{name: "未知方法", method: "missing", wantErr: true},
		{name: "参数类型错误", method: "bump", args: []interface{}{"five"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := packCall(parsedCounter, tt.method, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, data, tt.wantLen)
			assert.Equal(t, parsedCounter.Methods[tt.method].ID, data[:4])
		})
	}
}

// TestUnpackResult 测试返回值解码
func TestUnpackResult(t *testing.T) {
	out, err := parsedCounter.Methods["get"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)

	values, err := unpackResult(parsedCounter, "get", out)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, big.NewInt(42), values[0])

	values, err = unpackResult(parsedCounter, "bump", nil)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = unpackResult(parsedCounter, "get", []byte{0x01})
	assert.Error(t, err)
}

// TestDecodeRevert 测试自定义错误解析
func TestDecodeRevert(t *testing.T) {
	e := parsedCounter.Errors["TooLarge"]
	packed, err := e.Inputs.Pack(big.NewInt(100))
	require.NoError(t, err)
	data := append(append([]byte{}, e.ID[:4]...), packed...)

	custom, ok := DecodeRevert(parsedCounter, client.NewRPCError(3, "execution reverted", hexutil.Encode(data)))
	require.True(t, ok)
	assert.Equal(t, "TooLarge", custom.Name)
	assert.Equal(t, big.NewInt(100), custom.Args["limit"])

	_, ok = DecodeRevert(parsedCounter, client.NewRPCError(-32000, "nonce too low", nil))
	assert.False(t, ok)
}
