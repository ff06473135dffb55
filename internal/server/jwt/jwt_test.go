package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-unit-tests")

func TestGenerateAndValidate(t *testing.T) {
	token, err := Generate(testSecret, Claims{
		UserID:      "alice",
		DisplayName: "Alice",
		Role:        "editor",
		Admin:       true,
	}, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := Validate(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.Equal(t, "editor", claims.Role)
	assert.True(t, claims.Admin)
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := Generate(testSecret, Claims{UserID: "alice"}, time.Minute)
	require.NoError(t, err)

	_, err = Validate([]byte("another-secret"), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	token, err := Generate(testSecret, Claims{UserID: "alice"}, -time.Minute)
	require.NoError(t, err)

	_, err = Validate(testSecret, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := Validate(testSecret, "not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateMissingUserID(t *testing.T) {
	token, err := Generate(testSecret, Claims{DisplayName: "No ID"}, time.Minute)
	require.NoError(t, err)

	_, err = Validate(testSecret, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
