package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("secret")
	require.NoError(t, err)
	require.NotEmpty(t, h)
	require.NotEqual(t, "secret", h)

	assert.True(t, CheckPassword(h, "secret"))
	assert.False(t, CheckPassword(h, "wrong"))
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("secret")
	require.NoError(t, err)
	h2, err := HashPassword("secret")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	t.Parallel()

	assert.False(t, CheckPassword("", "secret"))
	assert.False(t, CheckPassword("not-a-bcrypt-hash", "secret"))
}
