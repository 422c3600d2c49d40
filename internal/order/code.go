package order

import (
	"crypto/rand"
	"fmt"
)

// CodeAlphabet omits 0/O and 1/I so codes survive being read aloud.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the confirmation code length.
const CodeLength = 8

// NewConfirmationCode returns a random code drawn from CodeAlphabet.
func NewConfirmationCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("confirmation code: %w", err)
	}
	// 32-symbol alphabet: masking keeps the draw uniform.
	for i, b := range buf {
		buf[i] = CodeAlphabet[b&31]
	}
	return string(buf), nil
}
