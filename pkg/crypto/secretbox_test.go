package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	SetMasterKey("test-master-key")
	t.Cleanup(func() { SetMasterKey("") })

	for _, plaintext := range []string{"", "sk-live-abc123", "unicode ✓ payload", strings.Repeat("x", 4096)} {
		sealed, err := Seal(plaintext)
		require.NoError(t, err)

		opened, err := Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestSealProducesDistinctCiphertexts(t *testing.T) {
	SetMasterKey("test-master-key")
	t.Cleanup(func() { SetMasterKey("") })

	a, err := Seal("same input")
	require.NoError(t, err)
	b, err := Seal("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must randomize ciphertext")
}

func TestOpenTamperedCiphertext(t *testing.T) {
	SetMasterKey("test-master-key")
	t.Cleanup(func() { SetMasterKey("") })

	sealed, err := Seal("secret-key-material")
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	out, err := Open(sealed)
	assert.ErrorIs(t, err, ErrCryptoTamper)
	assert.Empty(t, out)
	// Failed opens must not leak the plaintext through the error.
	assert.NotContains(t, err.Error(), "secret-key-material")
}

func TestOpenTruncatedCiphertext(t *testing.T) {
	SetMasterKey("test-master-key")
	t.Cleanup(func() { SetMasterKey("") })

	_, err := Open([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrCryptoTamper)
}

func TestNotReadyWithoutKey(t *testing.T) {
	SetMasterKey("")

	_, err := Seal("anything")
	assert.ErrorIs(t, err, ErrCryptoNotReady)

	_, err = Open([]byte("whatever"))
	assert.ErrorIs(t, err, ErrCryptoNotReady)
	assert.False(t, Ready())
}

func TestWrongKeyFailsAuthentication(t *testing.T) {
	SetMasterKey("key-one")
	sealed, err := Seal("payload")
	require.NoError(t, err)

	SetMasterKey("key-two")
	t.Cleanup(func() { SetMasterKey("") })

	_, err = Open(sealed)
	assert.ErrorIs(t, err, ErrCryptoTamper)
}
