package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSignatureInvalid — подпись не совпала с ожидаемой.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrUnknownProvider — неизвестная схема подписи в конфигурации.
	ErrUnknownProvider = errors.New("unknown webhook signature provider")
)

// SignatureVerifier проверяет подпись сырого тела webhook-запроса.
// Сравнение всегда константное по времени.
type SignatureVerifier interface {
	Verify(body []byte, signatureHeader string) error
}

// NewVerifier возвращает верификатор для схемы провайдера.
// Поддерживаются razorpay, stripe и generic-hmac.
func NewVerifier(provider, secret string) (SignatureVerifier, error) {
	switch provider {
	case "razorpay":
		return &razorpayVerifier{secret: []byte(secret)}, nil
	case "stripe":
		return &stripeVerifier{secret: []byte(secret)}, nil
	case "generic-hmac":
		return &genericHMACVerifier{secret: []byte(secret)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// genericHMACVerifier: заголовок содержит hex(HMAC-SHA256(body)).
type genericHMACVerifier struct {
	secret []byte
}

func (v *genericHMACVerifier) Verify(body []byte, signatureHeader string) error {
	return verifyHex(v.secret, body, signatureHeader)
}

// razorpayVerifier: X-Razorpay-Signature = hex(HMAC-SHA256(body)).
type razorpayVerifier struct {
	secret []byte
}

func (v *razorpayVerifier) Verify(body []byte, signatureHeader string) error {
	return verifyHex(v.secret, body, signatureHeader)
}

// stripeVerifier: заголовок вида "t=<ts>,v1=<sig>[,v1=<sig>...]",
// подписывается строка "<ts>.<body>". Достаточно совпадения любой v1.
type stripeVerifier struct {
	secret []byte
}

func (v *stripeVerifier) Verify(body []byte, signatureHeader string) error {
	var timestamp string
	var candidates []string

	for _, part := range strings.Split(signatureHeader, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return ErrSignatureInvalid
	}

	signed := make([]byte, 0, len(timestamp)+1+len(body))
	signed = append(signed, timestamp...)
	signed = append(signed, '.')
	signed = append(signed, body...)
	expected := computeHMAC(v.secret, signed)

	for _, candidate := range candidates {
		provided, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, provided) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

func verifyHex(secret, body []byte, signatureHeader string) error {
	provided, err := hex.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil {
		return ErrSignatureInvalid
	}
	if !hmac.Equal(computeHMAC(secret, body), provided) {
		return ErrSignatureInvalid
	}
	return nil
}

func computeHMAC(secret, data []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

// Sign возвращает hex-подпись тела. Используется в тестах и mock-провайдере.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(computeHMAC([]byte(secret), body))
}
