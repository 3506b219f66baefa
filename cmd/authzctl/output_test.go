package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteResult(t *testing.T) {
	v := map[string]interface{}{"contentHash": "0xabc", "threshold": 2}

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, "json", v))
	assert.JSONEq(t, `{"contentHash":"0xabc","threshold":2}`, buf.String())

	buf.Reset()
	require.NoError(t, writeResult(&buf, "yaml", v))
	assert.YAMLEq(t, "contentHash: \"0xabc\"\nthreshold: 2\n", buf.String())

	assert.Error(t, writeResult(&buf, "table", v))
}

func TestParseHashes(t *testing.T) {
	hashes, err := parseHashes([]string{"0x" + "11" + string(bytes.Repeat([]byte("0"), 62))})
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	assert.Equal(t, byte(0x11), hashes[0][0])

	_, err = parseHashes(nil)
	assert.Error(t, err)
	_, err = parseHashes([]string{"0x1234"})
	assert.Error(t, err)
}

func TestRequestFlagsBuild(t *testing.T) {
	cfg = nil
	f := requestFlags{
		Wallet:           "0x00000000000000000000000000000000000000aa",
		ChainID:          "1",
		RequesterID:      "7",
		RequesterVersion: "1",
		ActionID:         "transfer",
		Parameters:       `{"amount": 10, "to": "bob"}`,
		Principal:        "0x00000000000000000000000000000000000000bb",
		Nonce:            "5",
		Expiry:           "1700000000",
	}
	req, err := f.build()
	require.NoError(t, err)
	assert.Equal(t, "transfer", req.ActionID)
	assert.Equal(t, int64(1), req.ChainID.Int64())
	assert.Equal(t, "Qm", req.ParametersDigest[:2])

	f.ParametersDigest = "QmSomething"
	_, err = f.build()
	assert.Error(t, err, "--params and --params-digest are exclusive")

	f.ParametersDigest = ""
	f.Nonce = "-x"
	_, err = f.build()
	assert.Error(t, err)
}
