package signature

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverRoundTrip(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	digest := Keccak256([]byte("canonical payload"))
	sig := Sign(priv, digest)

	v := NewVerifier()
	addr, err := v.Recover(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, AddressOf(priv.PubKey()), addr)
}

func TestRecoverWrongDigest(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	sig := Sign(priv, Keccak256([]byte("signed payload")))

	v := NewVerifier()
	addr, err := v.Recover(Keccak256([]byte("different payload")), sig)
	// Recovery over a different digest yields some key, but never the
	// signer's address.
	if err == nil {
		assert.NotEqual(t, AddressOf(priv.PubKey()), addr)
	}
}

func TestRecoverMalformed(t *testing.T) {
	v := NewVerifier()

	_, err := v.Recover(Keccak256([]byte("payload")), []byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = v.Recover(Keccak256([]byte("payload")), make([]byte, 65))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestKeccak256Concatenation(t *testing.T) {
	joined := Keccak256([]byte("ab"), []byte("cd"))
	whole := Keccak256([]byte("abcd"))
	assert.Equal(t, whole, joined)

	assert.Len(t, joined, 32)
	assert.NotEqual(t, Keccak256([]byte("abce")), joined)
}
