package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mess-engine/auth"
	"github.com/warp/mess-engine/mess"
)

func TestMintParseRoundTrip(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)

	for _, role := range []mess.Role{mess.RoleStudent, mess.RoleAdmin} {
		raw, err := tokens.Mint("stu-1", role)
		require.NoError(t, err)

		identity, err := tokens.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "stu-1", identity.StudentID)
		assert.Equal(t, role, identity.Role)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	raw, err := auth.NewTokens("secret-a", time.Hour).Mint("stu-1", mess.RoleStudent)
	require.NoError(t, err)

	_, err = auth.NewTokens("secret-b", time.Hour).Parse(raw)
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	tokens := auth.NewTokens("secret", -time.Minute)

	raw, err := tokens.Mint("stu-1", mess.RoleStudent)
	require.NoError(t, err)

	_, err = tokens.Parse(raw)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)

	_, err := tokens.Parse("not-a-token")
	assert.Error(t, err)
}

func TestParseRejectsUnknownRole(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)

	raw, err := tokens.Mint("stu-1", mess.Role("superuser"))
	require.NoError(t, err)

	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
