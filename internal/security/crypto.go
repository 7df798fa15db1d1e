// Package security provides the cryptographic and input-validation primitives
// used by the group & identity model.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher hashes and verifies group passwords using Argon2id.
// Argon2id is the Password Hashing Competition winner and the recommended
// choice for new designs that need a salted, memory-hard KDF.
type PasswordHasher struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
}

// NewPasswordHasher creates a hasher with secure defaults.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{
		time:    1,
		memory:  64 * 1024, // 64 MB
		threads: 4,
		keyLen:  32,
	}
}

// Hash hashes a plaintext group password.
// Complexity: O(memory * time) — intentionally slow to resist brute force.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("security: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, h.keyLen)

	saltEncoded := base64.RawStdEncoding.EncodeToString(salt)
	hashEncoded := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		h.memory, h.time, h.threads, saltEncoded, hashEncoded), nil
}

// Verify checks a plaintext password against an encoded hash in constant time.
// Complexity: O(memory * time), same cost as Hash.
func (h *PasswordHasher) Verify(password, encodedHash string) (bool, error) {
	var memory, timeCost uint32
	var threads uint8
	var saltEncoded, hashEncoded string

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return false, fmt.Errorf("security: invalid hash format")
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false, fmt.Errorf("security: invalid hash format: %w", err)
	}
	saltEncoded, hashEncoded = parts[4], parts[5]

	salt, err := base64.RawStdEncoding.DecodeString(saltEncoded)
	if err != nil {
		return false, fmt.Errorf("security: decode salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(hashEncoded)
	if err != nil {
		return false, fmt.Errorf("security: decode hash: %w", err)
	}

	actual := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, uint32(len(expected)))

	if len(actual) != len(expected) {
		return false, nil
	}
	var diff byte
	for i := range actual {
		diff |= actual[i] ^ expected[i]
	}
	return diff == 0, nil
}
