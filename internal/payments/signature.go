package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureMismatch is returned when a payment signature fails verification.
var ErrSignatureMismatch = errors.New("payments: signature verification failed")

// SignatureVerifier validates the HMAC the gateway attaches to payment
// confirmations. The signed message is "<orderRef>|<paymentRef>".
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier builds a verifier over the shared gateway secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("payments: signature secret is required")
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Sign computes the hex-encoded signature for an (orderRef, paymentRef) pair.
func (v *SignatureVerifier) Sign(orderRef, paymentRef string) string {
	return hex.EncodeToString(v.compute(orderRef, paymentRef))
}

// Verify checks the supplied signature against the expected HMAC in constant
// time. Both hex and base64 encodings are accepted.
func (v *SignatureVerifier) Verify(orderRef, paymentRef, signature string) error {
	if v == nil || len(v.secret) == 0 {
		return errors.New("payments: verifier not initialised")
	}
	decoded, err := decodeSignature(signature)
	if err != nil {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(decoded, v.compute(orderRef, paymentRef)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (v *SignatureVerifier) compute(orderRef, paymentRef string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(strings.TrimSpace(orderRef)))
	_, _ = mac.Write([]byte("|"))
	_, _ = mac.Write([]byte(strings.TrimSpace(paymentRef)))
	return mac.Sum(nil)
}

func decodeSignature(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("payments: empty signature")
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("payments: signature must be hex or base64 encoded")
}
