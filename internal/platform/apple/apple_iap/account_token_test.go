package apple_iap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountToken_RoundTripHex(t *testing.T) {
	for _, userID := range []string{"1234567890", "a1bcdef234"} {
		token, err := AccountToken(userID)
		require.NoError(t, err)
		require.Len(t, token, 36)

		decoded, err := UserIDFromAccountToken(token)
		require.NoError(t, err)
		require.Equal(t, userID, decoded)
	}
}

func TestAccountToken_UUIDUserID(t *testing.T) {
	userID := "4b825dc6-5f3b-4f8e-b9d6-4f4f2d8c1122"
	token, err := AccountToken(userID)
	require.NoError(t, err)
	require.Equal(t, userID, token)

	decoded, err := UserIDFromAccountToken(token)
	require.NoError(t, err)
	require.Equal(t, userID, decoded)
}

func TestAccountToken_Rejects(t *testing.T) {
	_, err := AccountToken("")
	require.Error(t, err)
	_, err = AccountToken("user@example.com")
	require.Error(t, err)
	_, err = AccountToken("0123456789abcdef0123456789abcdef01")
	require.Error(t, err)

	_, err = UserIDFromAccountToken("not-a-token")
	require.Error(t, err)
}

func TestAccountToken_UnencodableUserID(t *testing.T) {
	_, err := AccountToken("user_42")
	require.ErrorIs(t, err, ErrUnencodableUserID)
	_, err = AccountToken("0123456789abcdef0123456789abcdef01")
	require.ErrorIs(t, err, ErrUnencodableUserID)
}

func TestMatchesUser(t *testing.T) {
	token, err := AccountToken("abc123")
	require.NoError(t, err)

	require.True(t, MatchesUser(token, "abc123"))
	require.True(t, MatchesUser(strings.ToUpper(token), "abc123"))
	require.False(t, MatchesUser(token, "def456"))
	require.False(t, MatchesUser(token, "user_42"))
	require.False(t, MatchesUser("", "abc123"))
}
