package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// Version identifies the AEAD construction of a sealed blob. It is written
// as the first byte of every blob.
type Version byte

const (
	// VersionAESGCM is AES-256-GCM with a 12-byte random nonce.
	VersionAESGCM Version = 1
	// VersionXChaCha is XChaCha20-Poly1305 with a 24-byte random nonce.
	VersionXChaCha Version = 2
)

// DefaultCipherVersion is used by Encrypt.
const DefaultCipherVersion = VersionAESGCM

// ParseVersion validates a configured cipher version.
func ParseVersion(v int) (Version, error) {
	switch Version(v) {
	case VersionAESGCM, VersionXChaCha:
		return Version(v), nil
	}
	return 0, common.NewValidationError("cipher.version", fmt.Sprintf("unsupported version %d", v))
}

func newAEAD(v Version, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, common.NewValidationError("key", fmt.Sprintf("must be %d bytes", KeySize))
	}
	switch v {
	case VersionAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case VersionXChaCha:
		return chacha20poly1305.NewX(key)
	}
	return nil, fmt.Errorf("unsupported cipher version %d", v)
}

// Encrypt seals plaintext under key with DefaultCipherVersion.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	return EncryptWith(DefaultCipherVersion, plaintext, key)
}

// EncryptWith seals plaintext under key using the given construction.
// The result is version || nonce || ciphertext || tag; the nonce is freshly
// random on every call, so sealing the same plaintext twice never yields the
// same blob.
func EncryptWith(v Version, plaintext, key []byte) ([]byte, error) {
	aead, err := newAEAD(v, key)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(aead.NonceSize())

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, byte(v))
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by EncryptWith. Every failure, whether a
// wrong key, a tampered blob or an unknown version, is reported as
// common.ErrDecryption without further detail.
func Decrypt(blob, key []byte) ([]byte, error) {
	if len(blob) < 1 {
		return nil, common.ErrDecryption
	}
	aead, err := newAEAD(Version(blob[0]), key)
	if err != nil {
		return nil, common.ErrDecryption
	}
	body := blob[1:]
	ns := aead.NonceSize()
	if len(body) < ns+aead.Overhead() {
		return nil, common.ErrDecryption
	}
	plaintext, err := aead.Open(nil, body[:ns], body[ns:], nil)
	if err != nil {
		return nil, common.ErrDecryption
	}
	return plaintext, nil
}

// BlobVersion reports the construction a blob was sealed with.
func BlobVersion(blob []byte) (Version, bool) {
	if len(blob) == 0 {
		return 0, false
	}
	v := Version(blob[0])
	return v, v == VersionAESGCM || v == VersionXChaCha
}
