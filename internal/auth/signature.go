package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "Tito-Signature"

var (
	ErrSignatureMissing  = errors.New("webhook signature or body missing")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// SignatureVerifier checks base64(HMAC-SHA256(body, secret)) signatures.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier builds a verifier. An empty secret rejects every request.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Sign returns the signature for body.
func (v *SignatureVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify compares signature against the body in constant time.
func (v *SignatureVerifier) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if len(body) == 0 || signature == "" {
		return ErrSignatureMissing
	}
	if len(v.secret) == 0 {
		return ErrSignatureMismatch
	}
	if !hmac.Equal([]byte(v.Sign(body)), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
