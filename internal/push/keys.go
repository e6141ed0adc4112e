package push

import (
	"encoding/base64"
	"fmt"
	"strings"

	"careAlert/pkg/e"
)

const (
	p256dhLen = 65
	authLen   = 16
)

// ValidateKeys checks the subscription key material before it is stored:
// p256dh must be an uncompressed P-256 point and auth a 16 byte secret.
func ValidateKeys(p256dh, auth string) error {
	pub, err := decodeKey(p256dh)
	if err != nil || len(pub) != p256dhLen || pub[0] != 0x04 {
		return fmt.Errorf("%w: keys.p256dh is not a P-256 public key", e.ErrInvalidInput)
	}
	secret, err := decodeKey(auth)
	if err != nil || len(secret) != authLen {
		return fmt.Errorf("%w: keys.auth must decode to %d bytes", e.ErrInvalidInput, authLen)
	}
	return nil
}

// Browsers send URL-safe base64 without padding, some clients pad it.
func decodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
