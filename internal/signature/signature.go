package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
)

// ErrSignatureInvalid rejects a webhook before any state is touched.
var ErrSignatureInvalid = errors.New("invalid webhook signature")

// Sign returns the hex-encoded HMAC-SHA256 of body under secret.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signatureHex is the HMAC-SHA256 of body under secret. The length check
// happens first; equal-length values are compared in constant time.
func Verify(body []byte, signatureHex string, secret []byte) bool {
	if signatureHex == "" {
		return false
	}
	expected := Sign(body, secret)
	provided := strings.ToLower(strings.TrimSpace(signatureHex))
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// Verifier checks inbound webhook signatures with an explicitly injected secret.
type Verifier struct {
	secret        []byte
	allowUnsigned bool
	logger        *slog.Logger
}

// NewVerifier builds a Verifier. An empty secret only passes requests when allowUnsigned is set,
// and every such request is logged as unverified.
func NewVerifier(secret string, allowUnsigned bool, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{secret: []byte(secret), allowUnsigned: allowUnsigned, logger: logger}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Check validates the signature header against the raw body.
func (v *Verifier) Check(body []byte, header string) error {
	if !v.Enabled() {
		if v.allowUnsigned {
			v.logger.Warn("webhook accepted without signature verification", slog.Int("body_bytes", len(body)))
			return nil
		}
		return ErrSignatureInvalid
	}
	if !Verify(body, header, v.secret) {
		return ErrSignatureInvalid
	}
	return nil
}
