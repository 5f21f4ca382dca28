package payments

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func TestSignatureVerifierAcceptsValidSignature(t *testing.T) {
	verifier, err := NewSignatureVerifier("top-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	sig := verifier.Sign("order_GX123", "pay_HY456")
	if err := verifier.Verify("order_GX123", "pay_HY456", sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSignatureVerifierAcceptsBase64Encoding(t *testing.T) {
	verifier, err := NewSignatureVerifier("top-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	raw, err := hex.DecodeString(verifier.Sign("order_GX123", "pay_HY456"))
	if err != nil {
		t.Fatalf("decode hex signature: %v", err)
	}
	b64 := base64.StdEncoding.EncodeToString(raw)
	if err := verifier.Verify("order_GX123", "pay_HY456", b64); err != nil {
		t.Fatalf("Verify base64: %v", err)
	}
}

func TestSignatureVerifierRejectsForgedSignature(t *testing.T) {
	verifier, err := NewSignatureVerifier("top-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	forged, err := NewSignatureVerifier("wrong-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	sig := forged.Sign("order_GX123", "pay_HY456")
	if err := verifier.Verify("order_GX123", "pay_HY456", sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestSignatureVerifierRejectsTamperedReferences(t *testing.T) {
	verifier, err := NewSignatureVerifier("top-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	sig := verifier.Sign("order_GX123", "pay_HY456")
	if err := verifier.Verify("order_GX123", "pay_OTHER", sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch for tampered payment ref, got %v", err)
	}
	if err := verifier.Verify("order_OTHER", "pay_HY456", sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch for tampered order ref, got %v", err)
	}
}

func TestSignatureVerifierRejectsGarbageEncoding(t *testing.T) {
	verifier, err := NewSignatureVerifier("top-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}
	if err := verifier.Verify("order_GX123", "pay_HY456", "!!not-encoded!!"); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch for malformed signature, got %v", err)
	}
}

func TestNewSignatureVerifierRequiresSecret(t *testing.T) {
	if _, err := NewSignatureVerifier("   "); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
