package validation

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/multisig-authz-go/services/message"
	"github.com/weisyn/multisig-authz-go/types"
)

var now = time.Unix(1700000000, 0)

func expectedRecord() types.AuthorizationRecord {
	return types.AuthorizationRecord{
		RequesterID:      big.NewInt(1),
		RequesterVersion: big.NewInt(1),
		ActionID:         "Qm123",
		ParametersDigest: "abc",
		PrincipalAddress: "0x00000000000000000000000000000000000000aa",
	}
}

func retrievedEnvelope(overrides map[string]interface{}) *message.RawEnvelope {
	payload := map[string]interface{}{
		"requesterId":      json.Number("1"),
		"requesterVersion": "1",
		"actionId":         "Qm123",
		"parametersDigest": "abc",
		"principalAddress": "0x00000000000000000000000000000000000000AA",
		"expiry":           "1700000100",
		"nonce":            "42",
	}
	for k, v := range overrides {
		if v == nil {
			delete(payload, k)
			continue
		}
		payload[k] = v
	}
	return &message.RawEnvelope{
		Types:       map[string]interface{}{"Authorization": []interface{}{}},
		Domain:      map[string]interface{}{"chainId": "1"},
		PrimaryType: "Authorization",
		Message:     payload,
	}
}

func TestValidate(t *testing.T) {
	record, err := Validate(expectedRecord(), retrievedEnvelope(nil), now)
	require.NoError(t, err)
	assert.Equal(t, "1700000100", record.Expiry.String())
	assert.Equal(t, "42", record.Nonce.String())
	assert.Equal(t, "Qm123", record.ActionID)
	assert.NoError(t, record.Validate())
}

func TestValidateStructure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *message.RawEnvelope)
	}{
		{"missing types", func(e *message.RawEnvelope) { e.Types = nil }},
		{"missing domain", func(e *message.RawEnvelope) { e.Domain = nil }},
		{"missing message", func(e *message.RawEnvelope) { e.Message = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := retrievedEnvelope(nil)
			tt.mutate(env)
			_, err := Validate(expectedRecord(), env, now)
			assert.True(t, types.HasReason(err, types.ReasonMalformedMessage), "err = %v", err)
		})
	}

	_, err := Validate(expectedRecord(), nil, now)
	assert.True(t, types.HasReason(err, types.ReasonMalformedMessage))
}

func TestValidateMissingField(t *testing.T) {
	for _, field := range types.RecordFields {
		t.Run(field, func(t *testing.T) {
			_, err := Validate(expectedRecord(), retrievedEnvelope(map[string]interface{}{field: nil}), now)
			d, ok := types.AsDeny(err)
			require.True(t, ok, "err = %v", err)
			assert.Equal(t, types.ReasonMissingField, d.Reason)
			assert.Equal(t, field, d.Details["field"])
		})
	}
}

func TestValidateFieldMismatch(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
		wantField string
		wantRecv  string
	}{
		{"requesterId", map[string]interface{}{"requesterId": "2"}, "requesterId", "2"},
		{"requesterVersion", map[string]interface{}{"requesterVersion": json.Number("3")}, "requesterVersion", "3"},
		{"actionId", map[string]interface{}{"actionId": "QmDIFFERENT"}, "actionId", "QmDIFFERENT"},
		{"principalAddress", map[string]interface{}{"principalAddress": "0x00000000000000000000000000000000000000bb"}, "principalAddress", "0x00000000000000000000000000000000000000bb"},
		{"parametersDigest", map[string]interface{}{"parametersDigest": "xyz"}, "parametersDigest", "xyz"},
		{
			name:      "first mismatch wins",
			overrides: map[string]interface{}{"parametersDigest": "xyz", "actionId": "QmOther"},
			wantField: "actionId",
			wantRecv:  "QmOther",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(expectedRecord(), retrievedEnvelope(tt.overrides), now)
			d, ok := types.AsDeny(err)
			require.True(t, ok, "err = %v", err)
			assert.Equal(t, types.ReasonFieldMismatch, d.Reason)
			assert.Equal(t, tt.wantField, d.Details["field"])
			assert.Equal(t, tt.wantRecv, d.Details["received"])
		})
	}
}

func TestValidateNonceAndExpiryNotCompared(t *testing.T) {
	expected := expectedRecord()
	expected.Nonce = big.NewInt(1)
	expected.Expiry = big.NewInt(1)

	record, err := Validate(expected, retrievedEnvelope(nil), now)
	require.NoError(t, err)
	assert.Equal(t, "42", record.Nonce.String())
}

func TestMatchSigned(t *testing.T) {
	signed := expectedRecord()
	signed.Nonce = big.NewInt(42)
	signed.Expiry = big.NewInt(1700000100)

	t.Run("same values", func(t *testing.T) {
		record, err := Validate(signed, retrievedEnvelope(nil), now)
		require.NoError(t, err)
		assert.NoError(t, MatchSigned(signed, record, now))
	})

	tests := []struct {
		name      string
		signed    func(r *types.AuthorizationRecord)
		overrides map[string]interface{}
		wantTag   types.ReasonCode
		wantField string
	}{
		{
			name:      "retrieved expiry extended",
			overrides: map[string]interface{}{"expiry": "1800000000"},
			wantTag:   types.ReasonFieldMismatch,
			wantField: "expiry",
		},
		{
			name:      "retrieved nonce differs",
			overrides: map[string]interface{}{"nonce": "43"},
			wantTag:   types.ReasonFieldMismatch,
			wantField: "nonce",
		},
		{
			name:      "signed expiry already passed",
			signed:    func(r *types.AuthorizationRecord) { r.Expiry = big.NewInt(now.Unix()) },
			overrides: map[string]interface{}{"expiry": "1800000000"},
			wantTag:   types.ReasonExpired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := signed
			if tt.signed != nil {
				tt.signed(&s)
			}
			record, err := Validate(s, retrievedEnvelope(tt.overrides), now)
			require.NoError(t, err)

			err = MatchSigned(s, record, now)
			d, ok := types.AsDeny(err)
			require.True(t, ok, "err = %v", err)
			assert.Equal(t, tt.wantTag, d.Reason)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, d.Details["field"])
			}
		})
	}
}

func TestValidateExpiryBoundary(t *testing.T) {
	nowSec := now.Unix()
	tests := []struct {
		name    string
		expiry  interface{}
		wantTag types.ReasonCode
	}{
		{name: "equal to now", expiry: big.NewInt(nowSec).String(), wantTag: types.ReasonExpired},
		{name: "in the past", expiry: json.Number("1"), wantTag: types.ReasonExpired},
		{name: "now plus one", expiry: big.NewInt(nowSec + 1).String()},
		{name: "numeric", expiry: json.Number(big.NewInt(nowSec + 60).String())},
		{name: "not an integer", expiry: "tomorrow", wantTag: types.ReasonMalformedMessage},
		{name: "fractional", expiry: json.Number("1700000100.5"), wantTag: types.ReasonMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(expectedRecord(), retrievedEnvelope(map[string]interface{}{"expiry": tt.expiry}), now)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, types.HasReason(err, tt.wantTag), "err = %v, want %s", err, tt.wantTag)
		})
	}
}

func TestValidateFromSerializedRecord(t *testing.T) {
	raw := []byte(`{
		"types": {"Authorization": []},
		"domain": {"chainId": "1"},
		"primaryType": "Authorization",
		"message": {
			"requesterId": 1, "requesterVersion": "1", "actionId": "Qm123",
			"parametersDigest": "abc", "principalAddress": "0x00000000000000000000000000000000000000aa",
			"expiry": 1700000100, "nonce": "7"
		}
	}`)
	env, err := message.ParseEnvelope(raw)
	require.NoError(t, err)

	record, err := Validate(expectedRecord(), env, now)
	require.NoError(t, err)
	assert.Equal(t, "7", record.Nonce.String())
}
