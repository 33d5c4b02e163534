package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/response"
)

const (
	keyRole = "role"

	RoleAdmin = "admin"
)

var ErrInvalidToken = errors.New("invalid bearer token")

// Claims are the bearer token claims issued by the authentication provider.
// Subject carries the user id.
type Claims struct {
	jwt.StandardClaims
	Role string `json:"role,omitempty"`
}

// ParseToken verifies an HS256 token against cfg and returns its claims.
func ParseToken(cfg config.AuthConfig, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if cfg.Issuer != "" && !claims.VerifyIssuer(cfg.Issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	return claims, nil
}

// AuthMiddleware resolves the caller from the Authorization header. Requests
// without a token continue anonymously; a token that fails verification is
// rejected with 40100.
func AuthMiddleware(cfg config.AuthConfig, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.Next()
			return
		}

		claims, err := ParseToken(cfg, raw)
		if err != nil {
			logctx.FromGin(c, base).Warnw("rejecting bearer token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
			return
		}

		c.Set(logctx.KeyUserID, claims.Subject)
		c.Set(keyRole, claims.Role)
		c.Request = c.Request.WithContext(logctx.WithUserID(c.Request.Context(), claims.Subject))
		setLogger(c, logctx.FromGin(c, base).With("user_id", claims.Subject))

		c.Next()
	}
}

// RequireUser rejects anonymous callers.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "authentication required"))
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers whose token lacks the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "authentication required"))
			return
		}
		if c.GetString(keyRole) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeForbidden, "admin role required"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(logctx.KeyUserID)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
