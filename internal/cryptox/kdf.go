// Package cryptox holds the vault's key derivation and field encryption.
//
// Master keys are derived with Argon2id. The stored verifier is a SHA-256
// digest of the derived key, so a password can be checked without the key or
// the password ever touching storage. Secret fields are sealed into
// self-describing blobs whose first byte names the AEAD construction used.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the length of derived keys accepted by the cipher.
const KeySize = 32

// KDF is a set of Argon2id parameters.
type KDF struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   int
}

// DefaultKDF is the work factor used for new accounts: 3 passes over 64 MiB
// with 4 lanes, producing a 256-bit key from a 128-bit salt.
var DefaultKDF = KDF{
	Time:      3,
	MemoryKiB: 64 * 1024,
	Threads:   4,
	KeyLen:    KeySize,
	SaltLen:   16,
}

// Validate reports whether the parameters are usable.
func (k KDF) Validate() error {
	switch {
	case k.Time < 1:
		return common.NewValidationError("kdf.time", "must be at least 1")
	case k.Threads < 1:
		return common.NewValidationError("kdf.threads", "must be at least 1")
	case k.MemoryKiB < 8*uint32(k.Threads):
		return common.NewValidationError("kdf.memory", "must be at least 8 KiB per thread")
	case k.KeyLen != KeySize:
		return common.NewValidationError("kdf.key_len", fmt.Sprintf("must be %d", KeySize))
	case k.SaltLen < 16:
		return common.NewValidationError("kdf.salt_len", "must be at least 16")
	}
	return nil
}

// Derive stretches password with salt. A nil salt makes Derive generate a
// fresh random one, which is returned alongside the key. The same password
// and salt always yield the same key.
func (k KDF) Derive(password, salt []byte) (usedSalt, key []byte, err error) {
	if len(password) == 0 {
		return nil, nil, common.NewValidationError("password", "must not be empty")
	}
	if err := k.Validate(); err != nil {
		return nil, nil, err
	}
	if salt == nil {
		salt = common.GenerateRandByteArray(k.SaltLen)
	}
	key = argon2.IDKey(password, salt, k.Time, k.MemoryKiB, k.Threads, k.KeyLen)
	return salt, key, nil
}

// String encodes the parameters for storage next to an account.
func (k KDF) String() string {
	return fmt.Sprintf("argon2id$m=%d,t=%d,p=%d,l=%d,s=%d", k.MemoryKiB, k.Time, k.Threads, k.KeyLen, k.SaltLen)
}

// ParseKDF decodes the output of KDF.String.
func ParseKDF(s string) (KDF, error) {
	var k KDF
	_, err := fmt.Sscanf(s, "argon2id$m=%d,t=%d,p=%d,l=%d,s=%d", &k.MemoryKiB, &k.Time, &k.Threads, &k.KeyLen, &k.SaltLen)
	if err != nil {
		return KDF{}, fmt.Errorf("malformed kdf params %q: %w", s, err)
	}
	if err := k.Validate(); err != nil {
		return KDF{}, err
	}
	return k, nil
}

// DeriveKey derives a key with DefaultKDF.
func DeriveKey(password, salt []byte) (usedSalt, key []byte, err error) {
	return DefaultKDF.Derive(password, salt)
}

const verifierLabel = "keyvault/verifier/v1"

// MakeVerifier returns the value stored in place of the password.
func MakeVerifier(key []byte) []byte {
	h := sha256.New()
	h.Write([]byte(verifierLabel))
	h.Write(key)
	return h.Sum(nil)
}

// VerifierMatches compares a stored verifier with a candidate in constant time.
func VerifierMatches(stored, candidate []byte) bool {
	if len(stored) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(stored, candidate) == 1
}
