package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/response"
)

var testAuth = config.AuthConfig{JWTSecret: "test-secret", Issuer: "entitlement-test"}

func signToken(t *testing.T, secret, subject, role string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   subject,
			Issuer:    testAuth.Issuer,
			ExpiresAt: exp.Unix(),
		},
		Role: role,
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newAuthEngine(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(zap.NewNop().Sugar()), AuthMiddleware(testAuth, zap.NewNop().Sugar()))
	handlers := append(extra, func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(gin.H{
			"user_id":     UserID(c),
			"ctx_user_id": logctx.UserID(c.Request.Context()),
			"trace_id":    logctx.TraceID(c.Request.Context()),
		}))
	})
	r.GET("/whoami", handlers...)
	return r
}

func do(r http.Handler, token string) (*httptest.ResponseRecorder, response.APIResponse[map[string]string]) {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set(HeaderRequestID, "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body response.APIResponse[map[string]string]
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAuthMiddleware_Anonymous(t *testing.T) {
	w, body := do(newAuthEngine(), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "", body.Data["user_id"])
	require.Equal(t, "trace-1", body.Data["trace_id"])
	require.Equal(t, "trace-1", w.Header().Get(HeaderRequestID))
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tok := signToken(t, testAuth.JWTSecret, "user-1", "", time.Now().Add(time.Hour))
	w, body := do(newAuthEngine(), tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-1", body.Data["user_id"])
	require.Equal(t, "user-1", body.Data["ctx_user_id"])
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"wrong secret": signToken(t, "other", "user-1", "", time.Now().Add(time.Hour)),
		"expired":      signToken(t, testAuth.JWTSecret, "user-1", "", time.Now().Add(-time.Hour)),
		"no subject":   signToken(t, testAuth.JWTSecret, "", "", time.Now().Add(time.Hour)),
		"garbage":      "not-a-jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			w, body := do(newAuthEngine(), tok)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, response.APIResponseCodeUnauthorized, body.Code)
		})
	}
}

func TestRequireUser(t *testing.T) {
	r := newAuthEngine(RequireUser())

	w, body := do(r, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, response.APIResponseCodeUnauthorized, body.Code)

	w, _ = do(r, signToken(t, testAuth.JWTSecret, "user-1", "", time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	r := newAuthEngine(RequireAdmin())

	w, body := do(r, signToken(t, testAuth.JWTSecret, "user-1", "", time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, response.APIResponseCodeForbidden, body.Code)

	w, _ = do(r, signToken(t, testAuth.JWTSecret, "ops", RoleAdmin, time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("bearer  abc "))
	require.Equal(t, "", bearerToken("Basic abc"))
	require.Equal(t, "", bearerToken(""))
}
