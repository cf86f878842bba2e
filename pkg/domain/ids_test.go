package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	t.Run("normalizes case", func(t *testing.T) {
		addr, err := ParseAddress("0xAbCdEf0123456789abcdef0123456789ABCDEF01")
		require.NoError(t, err)
		assert.Equal(t, Address("0xabcdef0123456789abcdef0123456789abcdef01"), addr)
	})

	t.Run("rejects missing prefix", func(t *testing.T) {
		_, err := ParseAddress("abcdef0123456789abcdef0123456789abcdef01")
		assert.Error(t, err)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := ParseAddress("0xabcd")
		assert.Error(t, err)
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ParseAddress("0xzzcdef0123456789abcdef0123456789abcdef01")
		assert.Error(t, err)
	})
}

func TestAddressIsZero(t *testing.T) {
	assert.True(t, ZeroAddress.IsZero())
	assert.True(t, Address("").IsZero())
	assert.False(t, Address("0xabcdef0123456789abcdef0123456789abcdef01").IsZero())
}

func TestAddressBytesRoundTrip(t *testing.T) {
	addr := Address("0xabcdef0123456789abcdef0123456789abcdef01")
	b, err := addr.Bytes()
	require.NoError(t, err)
	require.Len(t, b, 20)

	back, err := AddressFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, addr, back)
}

func TestParseMessageID(t *testing.T) {
	t.Run("accepts hex digest", func(t *testing.T) {
		id, err := ParseMessageID("0xDEADbeef00")
		require.NoError(t, err)
		assert.Equal(t, MessageID("0xdeadbeef00"), id)
	})

	t.Run("rejects bare string", func(t *testing.T) {
		_, err := ParseMessageID("deadbeef")
		assert.Error(t, err)
	})

	t.Run("zero sentinel", func(t *testing.T) {
		assert.True(t, MessageID("").IsZero())
		assert.False(t, MessageID("0xdeadbeef00").IsZero())
	})
}
