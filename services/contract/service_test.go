package contract

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/wallet"
)

var counterAddress = common.HexToAddress("0x00000000000000000000000000000000000000c0")

type fakeLedger struct {
	client.LedgerClient

	preflightErr error
	status       uint64
	calls        []ethereum.CallMsg
	sent         []*ethtypes.Transaction
}

func (f *fakeLedger) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeLedger) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.preflightErr != nil {
		return nil, f.preflightErr
	}
	return parsedCounter.Methods["get"].Outputs.Pack(big.NewInt(7))
}

func (f *fakeLedger) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 3, nil
}

func (f *fakeLedger) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(2), nil }

func (f *fakeLedger) HeaderByNumber(context.Context, *big.Int) (*client.BlockHeader, error) {
	return &client.BlockHeader{Number: 99}, nil
}

func (f *fakeLedger) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (f *fakeLedger) SendTransaction(_ context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	f.sent = append(f.sent, tx)
	return tx.Hash(), nil
}

func (f *fakeLedger) TransactionReceipt(_ context.Context, txHash common.Hash) (*client.Receipt, error) {
	return &client.Receipt{TxHash: txHash, Status: f.status, BlockNumber: 100}, nil
}

func testWallet(t *testing.T) wallet.Wallet {
	w, err := wallet.NewWallet()
	require.NoError(t, err)
	return w
}

func TestQueryContract(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewService(ledger)
	owner := common.HexToAddress("0x01")

	values, err := svc.QueryContract(context.Background(), &QueryContractRequest{
		ContractAddress: counterAddress,
		ABI:             parsedCounter,
		Method:          "get",
		Args:            []interface{}{owner},
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), values[0])
	require.Len(t, ledger.calls, 1)
	assert.Equal(t, counterAddress, *ledger.calls[0].To)

	_, err = svc.QueryContract(context.Background(), &QueryContractRequest{ABI: parsedCounter, Method: "get"})
	assert.Error(t, err)
	_, err = svc.QueryContract(context.Background(), &QueryContractRequest{ContractAddress: counterAddress})
	assert.Error(t, err)
}

func TestCallContract(t *testing.T) {
	ledger := &fakeLedger{status: ethtypes.ReceiptStatusSuccessful}
	w := testWallet(t)
	svc := NewServiceWithWallet(ledger, w, WithReceiptPollInterval(time.Millisecond))

	res, err := svc.CallContract(context.Background(), &CallContractRequest{
		ContractAddress: counterAddress,
		ABI:             parsedCounter,
		Method:          "bump",
		Args:            []interface{}{big.NewInt(1)},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.BlockHeight)
	assert.Equal(t, uint64(100), *res.BlockHeight)

	require.Len(t, ledger.sent, 1)
	tx := ledger.sent[0]
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, uint64(120000), tx.Gas())
	assert.Equal(t, big.NewInt(2), tx.GasFeeCap())

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), from)

	// 预检调用使用钱包地址
	assert.Equal(t, w.Address(), ledger.calls[0].From)
}

func TestCallContract_Failures(t *testing.T) {
	req := &CallContractRequest{
		ContractAddress: counterAddress,
		ABI:             parsedCounter,
		Method:          "bump",
		Args:            []interface{}{big.NewInt(1)},
	}

	t.Run("无 Wallet", func(t *testing.T) {
		_, err := NewService(&fakeLedger{}).CallContract(context.Background(), req)
		assert.Error(t, err)
	})

	t.Run("预检回滚", func(t *testing.T) {
		rpcErr := client.NewRPCError(3, "execution reverted", "0x")
		ledger := &fakeLedger{preflightErr: rpcErr}
		_, err := NewService(ledger).CallContract(context.Background(), req, testWallet(t))
		require.Error(t, err)
		var target *client.Error
		assert.True(t, errors.As(err, &target))
		assert.Empty(t, ledger.sent)
	})

	t.Run("交易回滚", func(t *testing.T) {
		ledger := &fakeLedger{status: ethtypes.ReceiptStatusFailed}
		svc := NewService(ledger, WithReceiptPollInterval(time.Millisecond))
		res, err := svc.CallContract(context.Background(), req, testWallet(t))
		require.Error(t, err)
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.NotNil(t, res.Receipt)
	})
}
