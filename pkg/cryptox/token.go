package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// TokenBytes is the entropy of opaque tokens such as MFA challenge tokens.
const TokenBytes = 32

// RandomToken returns n random bytes encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// codeAlphabet omits 0/O and 1/I/L.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// BackupCodes returns count one-time codes formatted as XXXX-XXXX.
func BackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	buf := make([]byte, 8)
	for i := range codes {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("cryptox: read random: %w", err)
		}
		var sb strings.Builder
		for j, b := range buf {
			if j == 4 {
				sb.WriteByte('-')
			}
			sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
		}
		codes[i] = sb.String()
	}
	return codes, nil
}

// Fingerprint returns the SHA-256 of s as base64url, for storing tokens and
// backup codes without keeping the plaintext.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
