package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() AuthorizationRecord {
	return AuthorizationRecord{
		RequesterID:      big.NewInt(7),
		RequesterVersion: big.NewInt(1),
		ActionID:         "QmAction",
		ParametersDigest: "QmParams",
		PrincipalAddress: "0x00000000000000000000000000000000000000bb",
		Expiry:           big.NewInt(1700000600),
		Nonce:            big.NewInt(0),
	}
}

func TestAuthorizationRecord_Validate(t *testing.T) {
	require.NoError(t, validRecord().Validate())

	tests := []struct {
		name   string
		mutate func(*AuthorizationRecord)
	}{
		{"missing requester id", func(r *AuthorizationRecord) { r.RequesterID = nil }},
		{"missing version", func(r *AuthorizationRecord) { r.RequesterVersion = nil }},
		{"negative nonce", func(r *AuthorizationRecord) { r.Nonce = big.NewInt(-1) }},
		{"missing expiry", func(r *AuthorizationRecord) { r.Expiry = nil }},
		{"empty action", func(r *AuthorizationRecord) { r.ActionID = "" }},
		{"empty principal", func(r *AuthorizationRecord) { r.PrincipalAddress = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestAuthorizationRecord_ToMap(t *testing.T) {
	m := validRecord().ToMap()
	assert.Len(t, m, len(RecordFields))
	for _, f := range RecordFields {
		assert.Contains(t, m, f)
	}
	assert.Equal(t, big.NewInt(7), m[FieldRequesterID])
}

func TestRawMessage_UnmarshalJSON(t *testing.T) {
	var pm ProposedMessage
	require.NoError(t, json.Unmarshal([]byte(`{"safe":"0x1","message":"  {\"a\":1} "}`), &pm))
	assert.Equal(t, `{"a":1}`, string(pm.Message))

	require.NoError(t, json.Unmarshal([]byte(`{"message":{"a": 1}}`), &pm))
	assert.Equal(t, `{"a": 1}`, string(pm.Message))

	pm = ProposedMessage{}
	require.NoError(t, json.Unmarshal([]byte(`{"message":null}`), &pm))
	assert.Nil(t, pm.Message)

	out, err := json.Marshal(RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `"{\"a\":1}"`, string(out))
}

func TestApproval_SignerAddress(t *testing.T) {
	addr, ok := Approval{Owner: "0x00000000000000000000000000000000000000AA"}.SignerAddress()
	assert.True(t, ok)
	assert.Equal(t, byte(0xaa), addr[19])

	_, ok = Approval{Owner: "nope"}.SignerAddress()
	assert.False(t, ok)
}

func TestConsumptionEntry_Consumed(t *testing.T) {
	assert.False(t, ConsumptionEntry{}.Consumed())
	assert.True(t, ConsumptionEntry{ConsumedAt: 1}.Consumed())
}
