package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testArgon2idParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestPasswordHashRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := CreatePasswordHash("s3cret-pass", testArgon2idParams)
	require.NoError(t, err)
	assert.Regexp(t, `^\$argon2id\$v=19\$m=1024,t=1,p=1\$`, hash)

	assert.NoError(t, VerifyPassword(hash, "s3cret-pass"))
	assert.ErrorIs(t, VerifyPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	t.Parallel()

	hasher := HasherWithParams(testArgon2idParams)
	first, err := hasher("same")
	require.NoError(t, err)
	second, err := hasher("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"plain":                                   ErrInvalidPasswordHash,
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA":   ErrInvalidPasswordHash,
		"$argon2id$v=16$m=1,t=1,p=1$c2FsdA$aGFzaA": ErrIncompatiblePasswordVersion,
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA": ErrInvalidPasswordHash,
		"$argon2id$v=19$m=1,t=1,p=1$!!!$aGFzaA":    ErrInvalidPasswordHash,
	}
	for hash, want := range cases {
		assert.ErrorIs(t, VerifyPassword(hash, "pw"), want, hash)
	}
}
