package handlers

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// decodeBase64 accepts both the standard and URL-safe alphabets, with or
// without padding. Browsers emit URL-safe strings from WebAuthn APIs while
// older clients send padded standard base64.
func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	normalized := strings.TrimRight(s, "=")
	if decoded, err := base64.RawURLEncoding.DecodeString(normalized); err == nil {
		return decoded, nil
	}
	decoded, err := base64.RawStdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return decoded, nil
}
