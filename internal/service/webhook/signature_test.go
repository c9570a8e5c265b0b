package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func TestGenericHMACVerifier(t *testing.T) {
	verifier, err := NewVerifier("generic-hmac", "secret-1")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	body := []byte(`{"id":"evt_1","type":"payment.captured","data":{"payment_id":"pi_1"}}`)
	if err := verifier.Verify(body, Sign("secret-1", body)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	if err := verifier.Verify([]byte(`{"tampered":true}`), Sign("secret-1", body)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("tampered body must be rejected, got %v", err)
	}
	if err := verifier.Verify(body, Sign("wrong-secret", body)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("wrong secret must be rejected, got %v", err)
	}
	if err := verifier.Verify(body, "not-hex"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("garbage header must be rejected, got %v", err)
	}
}

func TestRazorpayVerifier(t *testing.T) {
	verifier, err := NewVerifier("razorpay", "rzp-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	body := []byte(`{"id":"evt_2","type":"payment.captured"}`)
	if err := verifier.Verify(body, Sign("rzp-secret", body)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func stripeHeader(t *testing.T, secret, timestamp string, body []byte) string {
	t.Helper()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestStripeVerifier(t *testing.T) {
	verifier, err := NewVerifier("stripe", "whsec_test")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	body := []byte(`{"id":"evt_3","type":"payment_intent.succeeded"}`)
	header := stripeHeader(t, "whsec_test", "1735689600", body)
	if err := verifier.Verify(body, header); err != nil {
		t.Fatalf("valid stripe signature rejected: %v", err)
	}

	// Любая совпавшая v1 из нескольких достаточна.
	multi := "t=1735689600,v1=deadbeef," + header[len("t=1735689600,"):]
	if err := verifier.Verify(body, multi); err != nil {
		t.Fatalf("multiple v1 candidates must pass when one matches: %v", err)
	}

	if err := verifier.Verify(body, stripeHeader(t, "whsec_other", "1735689600", body)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("wrong secret must be rejected, got %v", err)
	}
	if err := verifier.Verify(body, "v1=deadbeef"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("header without timestamp must be rejected, got %v", err)
	}
}

func TestNewVerifierUnknownProvider(t *testing.T) {
	if _, err := NewVerifier("paypal", "secret"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}
