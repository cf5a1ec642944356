// Package auth verifies and generates the salted password blobs stored on
// account rows. A blob is 64 bytes: a SHA-256 digest followed by the
// 32-byte salt it was derived with, where the digest is
// SHA256(SHA256(password) XOR salt). Comparisons run in constant time and
// an all-zero blob never verifies.
package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// SaltSize is the length of the random salt stored after the digest.
	SaltSize = 32

	// BlobSize is the exact length of a stored authentication blob.
	BlobSize = sha256.Size + SaltSize
)

// derive computes the stored digest for a password under a given salt.
func derive(password string, salt []byte) [sha256.Size]byte {
	digest := sha256.Sum256([]byte(password))
	for i := range digest {
		digest[i] ^= salt[i]
	}
	return sha256.Sum256(digest[:])
}

// VerifyPassword reports whether password matches the stored blob.
//
// A blob of the wrong size never verifies. Neither does an all-zero blob:
// externally provisioned rows use it to mean "no password set". Both the
// zero scan and the digest comparison run in constant time.
func VerifyPassword(blob []byte, password string) bool {
	if len(blob) != BlobSize {
		return false
	}

	var set byte
	for _, b := range blob {
		set |= b
	}
	if set == 0 {
		return false
	}

	digest := derive(password, blob[sha256.Size:])
	return subtle.ConstantTimeCompare(digest[:], blob[:sha256.Size]) == 1
}

// GenerateBlob builds a fresh authentication blob for password using a
// random salt. It fails only if the system's entropy source does.
func GenerateBlob(password string) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	digest := derive(password, salt)
	blob := make([]byte, 0, BlobSize)
	blob = append(blob, digest[:]...)
	blob = append(blob, salt...)
	return blob, nil
}

// sha256Vectors are NIST short-message test vectors (hex input, hex digest).
var sha256Vectors = []struct {
	input  string
	digest string
}{
	{
		"",
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	},
	{
		"5738c929c4f4ccb6",
		"963bb88f27f512777aab6c8b1a02c70ec0ad651d428f870036e1917120fb48bf",
	},
	{
		"1b503fb9a73b16ada3fcf1042623ae7610",
		"d5c30315f72ed05fe519a1bf75ab5fd0ffec5ac1acb0daf66b6b769598594509",
	},
	{
		"09fc1accc230a205e4a208e64a8f204291f581a12756392da4b8c0cf5ef02b95",
		"4f44c1c7fbebb6f9601829f3897bfd650c56fa07844be76489076356ac1886a4",
	},
	{
		"03b264be51e4b941864f9b70b4c958f5355aac294b4b87cb037f11f85f07eb57b3f0b89550",
		"d1f8bd684001ac5a4b67bbf79f87de524d2da99ac014dec3e4187728f4557471",
	},
	{
		"d1be3f13febafefc14414d9fb7f693db16dc1ae270c5b647d80da8583587c1ad8cb8cb01824324411ca5ace3ca22e179a4ff4986f3f21190f3d7f3",
		"02804978eba6e1de65afdbc6a6091ed6b1ecee51e8bff40646a251de6678b7ef",
	},
}

// SelfTest recomputes the NIST SHA-256 vectors and returns an error naming
// the first mismatch. Startup runs it before accepting any login.
func SelfTest() error {
	for i, v := range sha256Vectors {
		input, err := hex.DecodeString(v.input)
		if err != nil {
			return fmt.Errorf("sha256 test vector %d: bad input: %w", i, err)
		}
		want, err := hex.DecodeString(v.digest)
		if err != nil {
			return fmt.Errorf("sha256 test vector %d: bad digest: %w", i, err)
		}

		digest := sha256.Sum256(input)
		if !bytes.Equal(digest[:], want) {
			return fmt.Errorf("sha256 test vector %d failed", i)
		}
	}
	return nil
}
