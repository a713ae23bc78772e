package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"short",
		"exactly16bytes!!",
		`{"d":"product","v":"1.0","c":"x","b":"y","sn":"SN1","l":"en-US","f":"1","options":{"zone":""},"pkg":""}`,
	}
	for _, plain := range cases {
		cipherText, err := encrypt([]byte(plain))
		require.NoError(t, err)
		assert.Equal(t, 0, len(cipherText)%16)

		decoded, err := decrypt(cipherText)
		require.NoError(t, err)
		assert.Equal(t, plain, string(decoded))
	}
}

func TestPkcs7PadAlwaysAddsAFullBlockWhenAligned(t *testing.T) {
	aligned := make([]byte, 32)
	padded := pkcs7Pad(aligned)
	assert.Len(t, padded, 48) // a full extra block, not zero
	for _, b := range padded[32:] {
		assert.Equal(t, byte(16), b)
	}
}

func TestPkcs7UnpadRejectsInvalidPadding(t *testing.T) {
	bad := make([]byte, 16)
	bad[15] = 0 // pad length 0 is invalid
	_, err := pkcs7Unpad(bad)
	require.Error(t, err)
}

func TestDecryptRejectsNonBlockAlignedInput(t *testing.T) {
	_, err := decrypt(make([]byte, 17))
	require.Error(t, err)
}
