package fulfillment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/iliamunaev/checkout-core/internal/apperr"
)

// SignatureHeaders are checked in order; the first present one is used.
var SignatureHeaders = []string{
	"X-Fulfillment-Signature",
	"X-Webhook-Signature",
	"X-Signature",
	"X-Hub-Signature-256",
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(body []byte, secret string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// VerifySignature checks the keyed hash over the raw body in constant time.
func VerifySignature(body []byte, h http.Header, secret string) error {
	if secret == "" {
		return apperr.ErrInvalidSignature
	}

	var got string
	for _, name := range SignatureHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			got = v
			break
		}
	}
	got = strings.TrimPrefix(got, "sha256=")
	sig, err := hex.DecodeString(got)
	if err != nil || len(sig) == 0 {
		return apperr.ErrInvalidSignature
	}

	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	if !hmac.Equal(sig, m.Sum(nil)) {
		return apperr.ErrInvalidSignature
	}
	return nil
}
