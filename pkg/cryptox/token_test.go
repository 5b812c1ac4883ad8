package cryptox

import (
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(TokenBytes)
	require.NoError(t, err)
	b, err := RandomToken(TokenBytes)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	require.Len(t, raw, TokenBytes)

	_, err = RandomToken(0)
	require.Error(t, err)
}

func TestBackupCodes(t *testing.T) {
	codes, err := BackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	shape := regexp.MustCompile(`^[2-9A-HJKMNP-Z]{4}-[2-9A-HJKMNP-Z]{4}$`)
	seen := map[string]bool{}
	for _, c := range codes {
		require.Regexp(t, shape, c)
		require.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}

func TestFingerprint(t *testing.T) {
	require.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	require.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
	require.Len(t, Fingerprint("abc"), 43)
}
