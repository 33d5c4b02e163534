package apple_iap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrUnencodableUserID means the user id has no account token form.
// Purchases of such users carry no token.
var ErrUnencodableUserID = errors.New("user id cannot be encoded as an account token")

const (
	uuidHexLen      = 32
	maxUserIDHexLen = 30
	padChar         = "a"
)

// AccountToken maps a user id to the appAccountToken attached to App Store
// purchases (and the obfuscated account id of Play purchases), so receipts
// and server notifications can be tied back to the user.
// UUID user ids are used as is; short hex ids use a reversible
// length-prefixed scheme: [2-hex len][hex userID][padding to 32 with 'a'].
func AccountToken(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is empty")
	}
	if u, err := uuid.Parse(userID); err == nil {
		return u.String(), nil
	}

	normalized := strings.ToLower(userID)
	if !isHex(normalized) {
		return "", fmt.Errorf("%w: %q is neither a uuid nor hex", ErrUnencodableUserID, userID)
	}
	if len(normalized) > maxUserIDHexLen {
		return "", fmt.Errorf("%w: hex user id longer than %d", ErrUnencodableUserID, maxUserIDHexLen)
	}

	tokenHex := fmt.Sprintf("%02x", len(normalized)) + normalized
	tokenHex += strings.Repeat(padChar, uuidHexLen-len(tokenHex))
	u, err := uuid.Parse(tokenHex)
	if err != nil {
		return "", fmt.Errorf("failed to format account token: %w", err)
	}
	return u.String(), nil
}

// UserIDFromAccountToken reverses AccountToken.
func UserIDFromAccountToken(token string) (string, error) {
	u, err := uuid.Parse(token)
	if err != nil {
		return "", fmt.Errorf("invalid account token: %w", err)
	}
	clean := strings.ReplaceAll(u.String(), "-", "")

	if n, err := strconv.ParseUint(clean[:2], 16, 8); err == nil {
		size := int(n)
		if size > 0 && size <= maxUserIDHexLen {
			end := 2 + size
			if strings.Trim(clean[end:], padChar) == "" {
				return clean[2:end], nil
			}
		}
	}
	return u.String(), nil
}

// MatchesUser reports whether token is the account token of userID. A user
// id without a token form matches no token.
func MatchesUser(token, userID string) bool {
	want, err := AccountToken(userID)
	if err != nil {
		return false
	}
	return strings.EqualFold(want, token)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if !(('0' <= ch && ch <= '9') || ('a' <= ch && ch <= 'f')) {
			return false
		}
	}
	return true
}
