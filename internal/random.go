package internal

import (
	"crypto/rand"
	"encoding/base64"
)

const csrfTokenSize = 32

// NewCSRFToken returns a base64url token with 256 bits of entropy.
func NewCSRFToken() (string, error) {
	raw := make([]byte, csrfTokenSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	// base64url, no padding, header-safe
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
