// Package cryptoutil provides the credential primitives of the
// authentication service: PBKDF2 password hashing with timing-safe
// verification, and CSPRNG generation of salts, opaque tokens, and
// temporary passwords.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// saltLen is the random salt length in bytes. The storage layer
	// accepts anything >= 2; 16 is the practical floor.
	saltLen = 16

	// pbkdf2Iterations is the PBKDF2 iteration count. Changing this
	// invalidates every stored hash, so it is fixed.
	pbkdf2Iterations = 20000

	// keyLen is the derived key length in bytes.
	keyLen = 32

	// tokenBytes is the entropy of an opaque token before encoding.
	tokenBytes = 20

	// tempPasswordChars is the alphabet for generated temporary passwords.
	// Ambiguous characters (0/O, 1/l/I) are excluded since the password is
	// delivered out of band and typed by a human.
	tempPasswordChars = "abcdefghijkmnpqrstuvwxyzACDEFGHJKLMNPQRSTUVWXYZ23456789+!@$%&*"
)

// PasswordHasher derives and verifies PBKDF2-SHA256 password hashes.
type PasswordHasher struct{}

// NewPasswordHasher returns a PasswordHasher.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{}
}

// Hash derives a key from the password and salt. The caller owns zeroing
// the password and, eventually, the returned hash.
func (h *PasswordHasher) Hash(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, pbkdf2Iterations, keyLen, sha256.New)
}

// Verify re-derives the key and compares it with the expected hash in
// constant time.
func (h *PasswordHasher) Verify(password, expectedHash, salt []byte) bool {
	if len(expectedHash) == 0 {
		return false
	}
	derived := pbkdf2.Key(password, salt, pbkdf2Iterations, keyLen, sha256.New)
	defer Zero(derived)
	return subtle.ConstantTimeCompare(derived, expectedHash) == 1
}

// RandomGenerator produces cryptographically random salts, tokens, and
// temporary passwords.
type RandomGenerator struct{}

// NewRandomGenerator returns a RandomGenerator.
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

// Salt returns a fresh random salt.
func (g *RandomGenerator) Salt() ([]byte, error) {
	b := make([]byte, saltLen)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("cryptoutil: generating salt: %w", err)
	}
	return b, nil
}

// Token returns a random high-entropy opaque token string.
func (g *RandomGenerator) Token() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("cryptoutil: generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TemporaryPassword returns a random printable password of length n.
func (g *RandomGenerator) TemporaryPassword(n int) ([]byte, error) {
	if n < 8 {
		return nil, fmt.Errorf("cryptoutil: temporary password length %d is too short", n)
	}
	pwd := make([]byte, n)
	// Rejection sampling keeps the character distribution uniform.
	max := byte(256 - 256%len(tempPasswordChars))
	buf := make([]byte, 1)
	for i := 0; i < n; {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("cryptoutil: generating temporary password: %w", err)
		}
		if buf[0] >= max {
			continue
		}
		pwd[i] = tempPasswordChars[int(buf[0])%len(tempPasswordChars)]
		i++
	}
	return pwd, nil
}

// Zero overwrites the buffer. Password and hash buffers are zeroed on every
// exit path after use.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
