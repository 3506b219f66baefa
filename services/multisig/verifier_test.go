package multisig

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/types"
)

var (
	testWallet  = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	testChainID = big.NewInt(11155111)
	testHash    = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testDigest  = common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
)

// fakeWallet 按选择器应答钱包的只读调用
type fakeWallet struct {
	threshold    int64
	owners       []common.Address
	thresholdErr error
	magic        [4]byte
	sigErr       error

	gotDigest    [32]byte
	gotSignature []byte
}

func newFakeWallet(threshold int64) *fakeWallet {
	return &fakeWallet{threshold: threshold, magic: EIP1271MagicValue}
}

func (f *fakeWallet) FetchJSON(ctx context.Context, url string, apiKey string, out interface{}) error {
	return errors.New("unexpected FetchJSON")
}

func (f *fakeWallet) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("short calldata")
	}
	method, err := safeABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "getThreshold":
		if f.thresholdErr != nil {
			return nil, f.thresholdErr
		}
		return method.Outputs.Pack(big.NewInt(f.threshold))
	case "getOwners":
		return method.Outputs.Pack(f.owners)
	case "isValidSignature":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		f.gotDigest = args[0].([32]byte)
		f.gotSignature = args[1].([]byte)
		if f.sigErr != nil {
			return nil, f.sigErr
		}
		return method.Outputs.Pack(f.magic)
	}
	return nil, errors.New("unexpected method " + method.Name)
}

// fakeRegistry 返回固定的提议消息
type fakeRegistry struct {
	msg *types.ProposedMessage
	err error
}

func (r *fakeRegistry) GetMessage(ctx context.Context, contentHash string) (*types.ProposedMessage, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.msg, nil
}

func confirmations(n int) []types.Approval {
	out := make([]types.Approval, n)
	for i := range out {
		owner := common.BigToAddress(big.NewInt(int64(n - i)))
		out[i] = types.Approval{
			Owner:     owner.Hex(),
			Signature: "0x" + strings.Repeat(string("abcdef"[i%6]), 130),
		}
	}
	return out
}

func proposed(n int) *types.ProposedMessage {
	return &types.ProposedMessage{
		Safe:          strings.ToLower(testWallet.Hex()),
		MessageHash:   testHash,
		Confirmations: confirmations(n),
	}
}

func verifyRequest() VerifyRequest {
	return VerifyRequest{
		Wallet:        testWallet,
		ChainID:       testChainID,
		ContentHash:   testHash,
		MessageDigest: testDigest,
	}
}

func TestVerifyThresholdBoundary(t *testing.T) {
	tests := []struct {
		confirmations int
		wantAllow     bool
	}{
		{confirmations: 0, wantAllow: false},
		{confirmations: 1, wantAllow: false},
		{confirmations: 2, wantAllow: true},
		{confirmations: 3, wantAllow: true},
	}

	for _, tt := range tests {
		wallet := newFakeWallet(2)
		svc := NewService(wallet, &fakeRegistry{msg: proposed(tt.confirmations)})

		msg, allow, err := svc.Verify(context.Background(), verifyRequest())
		if !tt.wantAllow {
			require.Error(t, err)
			d, ok := types.AsDeny(err)
			require.True(t, ok)
			assert.Equal(t, types.ReasonInsufficientSignatures, d.Reason)
			assert.Equal(t, tt.confirmations, d.Details["current"])
			assert.Equal(t, 2, d.Details["required"])
			assert.Nil(t, wallet.gotSignature, "signature check must not run below quorum")
			continue
		}

		require.NoError(t, err, "confirmations=%d", tt.confirmations)
		require.NotNil(t, msg)
		assert.Equal(t, testHash, allow.ContentHash)
		assert.Equal(t, testDigest.Hex(), allow.MessageDigest)
		assert.Equal(t, tt.confirmations, allow.Confirmations)
		assert.Equal(t, 2, allow.Threshold)
		assert.Equal(t, [32]byte(testDigest), wallet.gotDigest)
		assert.Len(t, wallet.gotSignature, 65*tt.confirmations)
	}
}

func TestVerifyDenials(t *testing.T) {
	transportErr := client.NewTimeoutError(context.DeadlineExceeded)
	revertErr := client.NewRPCError(3, "execution reverted", "0x")

	tests := []struct {
		name    string
		setup   func(w *fakeWallet, r *fakeRegistry)
		wantTag types.ReasonCode
	}{
		{
			name:    "not found",
			setup:   func(w *fakeWallet, r *fakeRegistry) { r.err = types.ErrNotFound(testHash) },
			wantTag: types.ReasonNotFound,
		},
		{
			name:    "registry transport",
			setup:   func(w *fakeWallet, r *fakeRegistry) { r.err = types.ErrTransport(types.LayerRegistry, errors.New("503")) },
			wantTag: types.ReasonTransportError,
		},
		{
			name:    "wrong wallet",
			setup:   func(w *fakeWallet, r *fakeRegistry) { r.msg.Safe = "0x0000000000000000000000000000000000000001" },
			wantTag: types.ReasonWrongWallet,
		},
		{
			name:    "threshold call fails",
			setup:   func(w *fakeWallet, r *fakeRegistry) { w.thresholdErr = transportErr },
			wantTag: types.ReasonTransportError,
		},
		{
			name:    "wrong magic value",
			setup:   func(w *fakeWallet, r *fakeRegistry) { w.magic = [4]byte{0xff, 0xff, 0xff, 0xff} },
			wantTag: types.ReasonInvalidSignature,
		},
		{
			name:    "isValidSignature reverts",
			setup:   func(w *fakeWallet, r *fakeRegistry) { w.sigErr = revertErr },
			wantTag: types.ReasonInvalidSignature,
		},
		{
			name:    "isValidSignature unreachable",
			setup:   func(w *fakeWallet, r *fakeRegistry) { w.sigErr = transportErr },
			wantTag: types.ReasonTransportError,
		},
		{
			name: "no signatures present",
			setup: func(w *fakeWallet, r *fakeRegistry) {
				for i := range r.msg.Confirmations {
					r.msg.Confirmations[i].Signature = ""
				}
			},
			wantTag: types.ReasonInvalidSignature,
		},
		{
			name: "signature not hex",
			setup: func(w *fakeWallet, r *fakeRegistry) {
				r.msg.PreparedSignature = "0xzz"
			},
			wantTag: types.ReasonInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet := newFakeWallet(2)
			reg := &fakeRegistry{msg: proposed(2)}
			tt.setup(wallet, reg)

			_, allow, err := NewService(wallet, reg).Verify(context.Background(), verifyRequest())
			require.Error(t, err)
			assert.Nil(t, allow)
			assert.True(t, types.HasReason(err, tt.wantTag), "err = %v, want %s", err, tt.wantTag)
		})
	}
}

func TestVerifyRejectsInvalidRequest(t *testing.T) {
	svc := NewService(newFakeWallet(1), &fakeRegistry{msg: proposed(1)})

	req := verifyRequest()
	req.Wallet = common.Address{}
	_, _, err := svc.Verify(context.Background(), req)
	assert.True(t, types.HasReason(err, types.ReasonInvalidRequest))

	req = verifyRequest()
	req.ChainID = nil
	_, _, err = svc.Verify(context.Background(), req)
	assert.True(t, types.HasReason(err, types.ReasonInvalidRequest))
}

func TestVerifyPrefersPreparedSignature(t *testing.T) {
	wallet := newFakeWallet(2)
	msg := proposed(2)
	msg.PreparedSignature = "0x" + strings.Repeat("01", 130)

	_, _, err := NewService(wallet, &fakeRegistry{msg: msg}).Verify(context.Background(), verifyRequest())
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x01}, 130), wallet.gotSignature)
}

func TestThresholdAndOwners(t *testing.T) {
	wallet := newFakeWallet(3)
	wallet.owners = []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}
	svc := NewService(wallet, &fakeRegistry{})

	threshold, err := svc.Threshold(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 3, threshold)

	owners, err := svc.Owners(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, wallet.owners, owners)
}

func TestUnpackThresholdOutOfRange(t *testing.T) {
	huge, err := safeABI.Methods["getThreshold"].Outputs.Pack(new(big.Int).Lsh(big.NewInt(1), 80))
	require.NoError(t, err)
	_, err = unpackThreshold(huge)
	assert.Error(t, err)

	_, err = unpackThreshold([]byte{0x01})
	assert.Error(t, err)
}
