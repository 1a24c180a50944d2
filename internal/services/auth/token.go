package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func NewOpaqueToken(byteLen int) (string, error) {
	if byteLen <= 0 {
		return "", fmt.Errorf("invalid token size")
	}

	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewSessionToken mints a 256-bit URL-safe bearer token.
func NewSessionToken() (string, error) {
	return NewOpaqueToken(32)
}
