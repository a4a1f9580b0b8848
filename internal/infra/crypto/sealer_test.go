package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestSealerRoundtrip(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	plaintext := []byte("HDL 65 mg/dL\nLDL 150 mg/dL")
	sealed, err := s.Seal(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "HDL")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealerNonDeterministicNonce(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	a, err := s.Seal([]byte("same input"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("same input"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealerRejectsTamperedCiphertext(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0x01

	_, err = s.Open(sealed)
	assert.Error(t, err)
}

func TestSealerRejectsWrongKey(t *testing.T) {
	s1, err := NewSealer(testKey())
	require.NoError(t, err)

	other := make([]byte, 32)
	other[0] = 0xff
	s2, err := NewSealer(base64.StdEncoding.EncodeToString(other))
	require.NoError(t, err)

	sealed, err := s1.Seal([]byte("payload"))
	require.NoError(t, err)
	_, err = s2.Open(sealed)
	assert.Error(t, err)
}

func TestSealerRejectsShortCiphertext(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)
	_, err = s.Open([]byte("too short"))
	assert.Error(t, err)
}

func TestNewSealerKeyValidation(t *testing.T) {
	_, err := NewSealer("not base64!!!")
	assert.Error(t, err)

	_, err = NewSealer(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
