package crypto

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	blob, err := EncryptKey(key.String(), "correct horse battery staple")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	blob, err := EncryptKey(key.String(), "right")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptRejectsBadInput(t *testing.T) {
	_, err := EncryptKey("not-a-key", "password")
	assert.Error(t, err)

	key := solana.NewWallet().PrivateKey
	_, err = EncryptKey(key.String(), "")
	assert.Error(t, err)
}

func TestLoadKeyRawTakesPrecedence(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	got, err := LoadKey(KeyConfig{RawPrivateKey: key.String(), EncryptedKeyPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestLoadKeyNoSource(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.Error(t, err)
}
