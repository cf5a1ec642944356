package auth

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBlobRoundTrip(t *testing.T) {
	for _, password := range []string{"", "hunter2", "correct horse battery staple"} {
		blob, err := GenerateBlob(password)
		require.NoError(t, err)
		require.Len(t, blob, BlobSize)

		assert.True(t, VerifyPassword(blob, password))
		assert.False(t, VerifyPassword(blob, password+"x"))
	}
}

func TestGenerateBlobSaltsDiffer(t *testing.T) {
	first, err := GenerateBlob("hunter2")
	require.NoError(t, err)
	second, err := GenerateBlob("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, VerifyPassword(first, "hunter2"))
	assert.True(t, VerifyPassword(second, "hunter2"))
}

// The blob stores the digest first and the salt second; a hand-built blob
// pins that layout.
func TestVerifyPasswordBlobLayout(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, SaltSize)
	inner := sha256.Sum256([]byte("hunter2"))
	for i := range inner {
		inner[i] ^= salt[i]
	}
	outer := sha256.Sum256(inner[:])
	blob := append(outer[:], salt...)

	assert.True(t, VerifyPassword(blob, "hunter2"))
	assert.False(t, VerifyPassword(blob, "Hunter2"))
}

func TestVerifyPasswordRejectsMalformedBlob(t *testing.T) {
	assert.False(t, VerifyPassword(nil, "hunter2"))
	assert.False(t, VerifyPassword([]byte("short"), "hunter2"))
	assert.False(t, VerifyPassword(make([]byte, BlobSize+1), "hunter2"))
}

func TestVerifyPasswordRejectsUnsetBlob(t *testing.T) {
	blob := make([]byte, BlobSize)
	assert.False(t, VerifyPassword(blob, ""))
	assert.False(t, VerifyPassword(blob, "anything"))
}

func TestVerifyPasswordTamperedDigest(t *testing.T) {
	blob, err := GenerateBlob("hunter2")
	require.NoError(t, err)

	blob[0] ^= 0x01
	assert.False(t, VerifyPassword(blob, "hunter2"))
	blob[0] ^= 0x01
	assert.True(t, VerifyPassword(blob, "hunter2"))
}

func TestSelfTest(t *testing.T) {
	require.NoError(t, SelfTest())
}
