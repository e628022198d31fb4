package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashService()

	code := "493028"
	hash, err := svc.Hash(code)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	// Format check
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v="), "hash should start with $argon2id$v=")

	// Verify correct code
	match, err := svc.Verify(code, hash)
	require.NoError(t, err)
	assert.True(t, match, "correct code should verify")
}

func TestArgon2HashService_VerifyWrongCode(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("111111")
	require.NoError(t, err)

	match, err := svc.Verify("222222", hash)
	require.NoError(t, err)
	assert.False(t, match, "wrong code should not verify")
}

func TestArgon2HashService_UniqueSalts(t *testing.T) {
	svc := NewArgon2HashService()

	hash1, err := svc.Hash("000000")
	require.NoError(t, err)

	hash2, err := svc.Hash("000000")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2, "same code should produce different hashes (different salts)")
}

func TestArgon2HashService_VerifyInvalidFormat(t *testing.T) {
	svc := NewArgon2HashService()

	_, err := svc.Verify("123456", "not-a-valid-hash")
	assert.Error(t, err)
}

func TestArgon2HashService_HashContainsParams(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("123456")
	require.NoError(t, err)

	// Verify it contains expected params
	assert.Contains(t, hash, "m=65536,t=1,p=4", "hash should contain Argon2id params")
}
