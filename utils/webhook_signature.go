package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateWebhookSignature creates an HMAC-SHA256 signature for webhook payload
// This signature allows the receiver to verify that the webhook came from our system
// and the payload has not been tampered with
func GenerateWebhookSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature validates an HMAC signature against the payload and secret
// Returns true if the signature is valid, false otherwise
func VerifyWebhookSignature(payload []byte, secret string, signature string) bool {
	expectedSignature := GenerateWebhookSignature(payload, secret)
	// Use constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(expectedSignature), []byte(signature))
}

// ParseSignatureHeader extracts the hex digest from a Meta-style
// "sha256=<hex>" header value. Returns false for any other shape.
func ParseSignatureHeader(header string) (string, bool) {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	digest := header[len(prefix):]
	if len(digest) != sha256.Size*2 {
		return "", false
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", false
	}
	return digest, true
}

// VerifySignatureHeader validates a raw x-hub-signature-256 header value
// against the payload and secret.
func VerifySignatureHeader(payload []byte, secret, header string) bool {
	digest, ok := ParseSignatureHeader(header)
	if !ok {
		return false
	}
	return VerifyWebhookSignature(payload, secret, digest)
}
