package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key := GenerateKey()
	for _, msg := range [][]byte{[]byte("hello mesh"), make([]byte, 4096)} {
		sealed, err := Seal(key, msg)
		require.NoError(t, err)
		opened, err := Open(key, sealed)
		require.NoError(t, err)
		assert.Equal(t, msg, opened)
	}
}

func TestSealEmpty(t *testing.T) {
	key := GenerateKey()
	sealed, err := Seal(key, nil)
	require.NoError(t, err)
	opened, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestSealUsesFreshNonce(t *testing.T) {
	key := GenerateKey()
	a, err := Seal(key, []byte("same"))
	require.NoError(t, err)
	b, err := Seal(key, []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenWrongKey(t *testing.T) {
	sealed, err := Seal(GenerateKey(), []byte("secret"))
	require.NoError(t, err)
	_, err = Open(GenerateKey(), sealed)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestOpenTampered(t *testing.T) {
	key := GenerateKey()
	sealed, err := Seal(key, []byte("secret"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	_, err = Open(key, sealed)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestOpenTooShort(t *testing.T) {
	_, err := Open(GenerateKey(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestGenerateKey(t *testing.T) {
	assert.False(t, GenerateKey().IsZero())
	assert.NotEqual(t, GenerateKey(), GenerateKey())
}
