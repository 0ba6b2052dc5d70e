package cryptobox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKeyBits = 1024

func TestOpen_GeneratesAndReloads(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "private_key.pem")

	box, err := Open(keyPath, testKeyBits)
	require.NoError(t, err)

	info, err := os.Stat(keyPath)
	require.NoError(t, err, "key file must be persisted on first start")
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	ciphertext, err := box.EncryptField("carol@example.com")
	require.NoError(t, err)

	// A second Open must load the same key, not regenerate it.
	reloaded, err := Open(keyPath, testKeyBits)
	require.NoError(t, err)

	plaintext, err := reloaded.DecryptField(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "carol@example.com", plaintext)
}

func TestOpen_CorruptKeyFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "private_key.pem")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a pem"), 0o600))

	_, err := Open(keyPath, testKeyBits)
	require.ErrorIs(t, err, ErrCrypto)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	box, err := Open(filepath.Join(t.TempDir(), "key.pem"), testKeyBits)
	require.NoError(t, err)

	for _, value := range []string{
		"carol@example.com",
		"carol",
		"02:42:ac:11:00:02",
		"198.51.100.10",
		"",
	} {
		ciphertext, err := box.EncryptField(value)
		require.NoError(t, err)
		require.NotEqual(t, value, ciphertext)

		plaintext, err := box.DecryptField(ciphertext)
		require.NoError(t, err)
		require.Equal(t, value, plaintext)
	}
}

func TestEncryptField_OversizedPlaintext(t *testing.T) {
	box, err := Open(filepath.Join(t.TempDir(), "key.pem"), testKeyBits)
	require.NoError(t, err)

	_, err = box.EncryptField(strings.Repeat("x", 1024))
	require.ErrorIs(t, err, ErrCrypto)
}

func TestDecryptField_Malformed(t *testing.T) {
	box, err := Open(filepath.Join(t.TempDir(), "key.pem"), testKeyBits)
	require.NoError(t, err)

	_, err = box.DecryptField("%%% not base64 %%%")
	require.ErrorIs(t, err, ErrCrypto)

	_, err = box.DecryptField("dG9vIHNob3J0")
	require.ErrorIs(t, err, ErrCrypto)
}

func TestDecryptField_WrongKey(t *testing.T) {
	dir := t.TempDir()
	boxA, err := Open(filepath.Join(dir, "a.pem"), testKeyBits)
	require.NoError(t, err)
	boxB, err := Open(filepath.Join(dir, "b.pem"), testKeyBits)
	require.NoError(t, err)

	ciphertext, err := boxA.EncryptField("carol")
	require.NoError(t, err)

	_, err = boxB.DecryptField(ciphertext)
	require.True(t, errors.Is(err, ErrCrypto), "mismatched key must surface ErrCrypto, got %v", err)
}
