package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureVerifier(t *testing.T) {
	body := []byte(`{"reference":"ABCD-1"}`)
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	v := NewSignatureVerifier("shh")
	assert.Equal(t, expected, v.Sign(body))

	tests := []struct {
		name      string
		body      []byte
		signature string
		want      error
	}{
		{name: "valid", body: body, signature: expected},
		{name: "missing signature", body: body, want: ErrSignatureMissing},
		{name: "missing body", signature: expected, want: ErrSignatureMissing},
		{name: "tampered body", body: []byte(`{"reference":"ABCD-2"}`), signature: expected, want: ErrSignatureMismatch},
		{name: "garbage", body: body, signature: "nope", want: ErrSignatureMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Verify(tc.body, tc.signature)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	v := NewSignatureVerifier("")
	body := []byte("x")
	assert.ErrorIs(t, v.Verify(body, v.Sign(body)), ErrSignatureMismatch)
}
