package cryptox

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKDF = KDF{Time: 1, MemoryKiB: 8 * 1024, Threads: 1, KeyLen: KeySize, SaltLen: 16}

func TestDerive_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt-16byt")

	_, key1, err := testKDF.Derive(password, salt)
	require.NoError(t, err)
	_, key2, err := testKDF.Derive(password, salt)
	require.NoError(t, err)

	assert.Equal(t, key1, key2, "same inputs must give the same key")
	assert.Len(t, key1, KeySize)
}

func TestDerive_DifferentInputs(t *testing.T) {
	salt1 := []byte("salt-number-0001")
	salt2 := []byte("salt-number-0002")

	_, a, err := testKDF.Derive([]byte("pw"), salt1)
	require.NoError(t, err)
	_, b, err := testKDF.Derive([]byte("pw"), salt2)
	require.NoError(t, err)
	_, c, err := testKDF.Derive([]byte("pw2"), salt1)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "different salts")
	assert.NotEqual(t, a, c, "different passwords")
}

func TestDerive_GeneratesSalt(t *testing.T) {
	s1, k1, err := testKDF.Derive([]byte("pw"), nil)
	require.NoError(t, err)
	s2, k2, err := testKDF.Derive([]byte("pw"), nil)
	require.NoError(t, err)

	assert.Len(t, s1, testKDF.SaltLen)
	assert.NotEqual(t, s1, s2)
	assert.NotEqual(t, k1, k2)

	_, again, err := testKDF.Derive([]byte("pw"), s1)
	require.NoError(t, err)
	assert.Equal(t, k1, again)
}

func TestDerive_EmptyPassword(t *testing.T) {
	_, _, err := testKDF.Derive(nil, nil)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestDeriveKey_DefaultProfile(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, 16)
	_, k1, err := DeriveKey([]byte("CorrectHorse1!"), salt)
	require.NoError(t, err)
	_, k2, err := DeriveKey([]byte("CorrectHorse1!"), salt)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestKDF_StringRoundTrip(t *testing.T) {
	got, err := ParseKDF(DefaultKDF.String())
	require.NoError(t, err)
	assert.Equal(t, DefaultKDF, got)

	_, err = ParseKDF("scrypt$n=1")
	require.Error(t, err)

	_, err = ParseKDF("argon2id$m=64,t=0,p=1,l=32,s=16")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestVerifier(t *testing.T) {
	_, key, err := testKDF.Derive([]byte("pw"), []byte("0123456789abcdef"))
	require.NoError(t, err)

	v := MakeVerifier(key)
	assert.NotEqual(t, key, v, "verifier must not be the key itself")
	assert.True(t, VerifierMatches(v, MakeVerifier(key)))

	other := common.CloneBytes(key)
	other[0] ^= 0xff
	assert.False(t, VerifierMatches(v, MakeVerifier(other)))
	assert.False(t, VerifierMatches(nil, nil))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	for _, v := range []Version{VersionAESGCM, VersionXChaCha} {
		blob, err := EncryptWith(v, []byte("s3cret"), key)
		require.NoError(t, err)

		got, ok := BlobVersion(blob)
		assert.True(t, ok)
		assert.Equal(t, v, got)
		assert.False(t, bytes.Contains(blob, []byte("s3cret")))

		pt, err := Decrypt(blob, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("s3cret"), pt)
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	a, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	wrong := common.GenerateRandByteArray(KeySize)

	blob, err := Encrypt([]byte("s3cret"), key)
	require.NoError(t, err)

	pt, err := Decrypt(blob, wrong)
	require.ErrorIs(t, err, common.ErrDecryption)
	assert.Nil(t, pt)
}

func TestDecrypt_Tampered(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	blob, err := Encrypt([]byte("s3cret"), key)
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"version only", blob[:1]},
		{"truncated", blob[:len(blob)-1]},
		{"unknown version", append([]byte{9}, blob[1:]...)},
		{"flipped bit", func() []byte {
			b := common.CloneBytes(blob)
			b[len(b)-1] ^= 0x01
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.blob, key)
			require.ErrorIs(t, err, common.ErrDecryption)
		})
	}
}

func TestEncrypt_RejectsShortKey(t *testing.T) {
	_, err := Encrypt([]byte("x"), []byte("short"))
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = Decrypt([]byte{1, 2, 3}, []byte("short"))
	require.ErrorIs(t, err, common.ErrDecryption)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion(2)
	require.NoError(t, err)
	assert.Equal(t, VersionXChaCha, v)

	_, err = ParseVersion(3)
	require.ErrorIs(t, err, common.ErrValidation)
}
