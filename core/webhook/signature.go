package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
)

var (
	ErrMissingSignature = errors.New("webhook signature required but not present")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// Header names the sender may use for the hex HMAC digest.
const (
	HeaderCoinbaseSignature = "x-coinbase-signature"
	HeaderWebhookSignature  = "x-webhook-signature"
)

// Verify checks that signatureHex is the HMAC-SHA256 of body under
// secret. The comparison runs in constant time over the decoded bytes;
// a malformed or wrong-length signature verifies false, never errors.
func Verify(signatureHex string, body []byte, secret string) bool {
	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hmac.Equal(got, mac.Sum(nil))
}

// Sign computes the hex HMAC-SHA256 digest of body under secret. Used by
// tests and by senders we control.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureFromHeader extracts the signature from the request headers,
// recognizing both header name variants. ok is false when neither is
// present; a missing signature is not a failure unless policy says so.
func SignatureFromHeader(h http.Header) (string, bool) {
	if v := h.Get(HeaderCoinbaseSignature); v != "" {
		return v, true
	}
	if v := h.Get(HeaderWebhookSignature); v != "" {
		return v, true
	}
	return "", false
}

type ProcessResult struct {
	Processed bool
	Verified  bool
	Body      []byte
}

// Process applies the signature policy to a raw request body. When
// require is set and no signature is present it fails with
// ErrMissingSignature; a present but unverifiable signature always fails
// with ErrInvalidSignature.
func Process(body []byte, signature, secret string, require bool) (ProcessResult, error) {
	if signature == "" {
		if require {
			return ProcessResult{}, ErrMissingSignature
		}
		return ProcessResult{Processed: true, Verified: false, Body: body}, nil
	}

	if !Verify(signature, body, secret) {
		return ProcessResult{}, ErrInvalidSignature
	}

	return ProcessResult{Processed: true, Verified: true, Body: body}, nil
}
