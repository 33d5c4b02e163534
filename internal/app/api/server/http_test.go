package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	mw "github.com/fatflowers/entitlement/internal/app/api/middleware"
	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/gate"
	nh "github.com/fatflowers/entitlement/internal/app/service/notification_handler"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	"github.com/fatflowers/entitlement/internal/app/service/purchase_log"
	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	"github.com/fatflowers/entitlement/internal/app/service/statistics"
	subsvc "github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/app/service/usage"
	"github.com/fatflowers/entitlement/internal/platform/db/dbtest"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/internal/platform/securestore"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/response"
	"github.com/fatflowers/entitlement/pkg/types"
)

var purchasedAt = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

// storeValidator vouches for every receipt of a known product.
type storeValidator struct{}

func (storeValidator) Validate(_ context.Context, p *iap.Purchase) (*receipt.Verification, error) {
	return &receipt.Verification{
		Platform:              p.Platform,
		ProductID:             p.ProductID,
		TransactionID:         p.TransactionID,
		OriginalTransactionID: p.TransactionID,
		PurchaseDate:          purchasedAt,
		AutoRenew:             true,
	}, nil
}

type envelope struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    json.RawMessage          `json:"data"`
}

type testEnv struct {
	t      *testing.T
	engine *gin.Engine
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	keyring.MockInit()

	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	now := func() time.Time { return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) }
	cfg := &config.Config{
		Auth:     config.AuthConfig{JWTSecret: "http-test"},
		Usage:    config.UsageConfig{DefaultDailyLimit: 10, Limits: map[string]int{"speak_tones": 2}},
		Purchase: config.PurchaseConfig{DeliveryTimeout: 5 * time.Second},
	}

	cat := catalog.NewWithPlans(config.DefaultPlans())
	subs := subsvc.NewService(gdb, log, nil).WithClock(now)
	inbox := notify.NewInbox(log, 10)
	eventLog := purchase_log.New(gdb, log)
	t.Cleanup(eventLog.Flush)
	bridge := iap.NewBridge(8)
	ctrl := purchase.NewController(purchase.Params{
		Platform:  bridge,
		Validator: storeValidator{},
		Subs:      subs,
		Catalog:   cat,
		Inbox:     inbox,
		EventLog:  eventLog,
		Log:       log,
	}).WithClock(now)
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, ctrl.Stop(context.Background())) })

	tracker := usage.NewTracker(securestore.NewKeyringStore("test.http"), subs, cfg, log, nil)

	e := newEngine()
	registerRoutes(routeParams{
		Lifecycle:  fxtest.NewLifecycle(t),
		Engine:     e,
		Log:        log,
		Config:     cfg,
		DB:         gdb,
		Catalog:    cat,
		Subs:       subs,
		Tracker:    tracker,
		Gate:       gate.New(subs, tracker, nil),
		Controller: ctrl,
		Bridge:     bridge,
		Inbox:      inbox,
		Notif:      nh.NewNotificationHandler(cfg, subs, cat, eventLog, inbox, nil, log),
		Stats:      statistics.New(gdb),
	})
	return &testEnv{t: t, engine: e, cfg: cfg}
}

func (e *testEnv) token(userID, role string) string {
	e.t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &mw.Claims{
		StandardClaims: jwt.StandardClaims{Subject: userID, ExpiresAt: time.Now().Add(time.Hour).Unix()},
		Role:           role,
	})
	s, err := tok.SignedString([]byte(e.cfg.Auth.JWTSecret))
	require.NoError(e.t, err)
	return s
}

func (e *testEnv) call(method, path, token string, body any) (int, envelope) {
	e.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	var env envelope
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	code, env := e.call(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
}

func TestReadyz(t *testing.T) {
	e := newTestEnv(t)
	code, env := e.call(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
}

func TestProtectedRoutesRequireUser(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/v1/subscription/status", "/api/v1/purchases/attempt", "/api/v1/notifications"} {
		code, env := e.call(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, code, path)
		require.Equal(t, response.APIResponseCodeUnauthorized, env.Code, path)
	}
}

func TestListPlans(t *testing.T) {
	e := newTestEnv(t)
	_, env := e.call(http.MethodGet, "/api/v1/plans", "", nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	plans := decode[[]*types.SubscriptionPlan](t, env)
	require.Len(t, plans, 2)

	_, env = e.call(http.MethodGet, "/api/v1/plans?platform=windows", "", nil)
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestPurchaseFlow(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token("abc123", "")

	_, env := e.call(http.MethodPost, "/api/v1/purchases/request", tok, map[string]string{"platform": "ios", "plan_id": "basic_monthly"})
	require.Equal(t, response.APIResponseCodeOK, env.Code, env.Message)
	req := decode[struct {
		Dispatched bool             `json:"dispatched"`
		Attempt    purchase.Attempt `json:"attempt"`
	}](t, env)
	require.True(t, req.Dispatched)
	require.Equal(t, purchase.AttemptPending, req.Attempt.State)

	_, env = e.call(http.MethodGet, "/api/v1/purchases/pending", tok, nil)
	pending := decode[struct {
		Request *iap.SubscriptionRequest `json:"request"`
	}](t, env)
	require.NotNil(t, pending.Request)
	require.Equal(t, "com.yuyin.premium.monthly", pending.Request.ProductID)
	require.NotEmpty(t, pending.Request.AccountToken)

	_, env = e.call(http.MethodPost, "/api/v1/purchases/events", tok, map[string]any{
		"platform":            "ios",
		"product_id":          "com.yuyin.premium.monthly",
		"transaction_id":      "tx-1",
		"transaction_date":    purchasedAt,
		"transaction_receipt": "receipt",
	})
	require.Equal(t, response.APIResponseCodeOK, env.Code, string(env.Data))
	ev := decode[struct {
		Attempt purchase.Attempt `json:"attempt"`
		Status  *subsvc.Status   `json:"status"`
	}](t, env)
	require.Equal(t, purchase.AttemptCommitted, ev.Attempt.State)
	require.NotNil(t, ev.Status)
	require.True(t, ev.Status.IsPremium)

	_, env = e.call(http.MethodGet, "/api/v1/purchases/finished?platform=ios&transaction_id=tx-1", tok, nil)
	require.True(t, decode[struct {
		Finished bool `json:"finished"`
	}](t, env).Finished)

	_, env = e.call(http.MethodGet, "/api/v1/gate/premium?feature=practice", tok, nil)
	res := decode[gate.Result](t, env)
	require.True(t, res.Allowed)

	_, env = e.call(http.MethodGet, "/api/v1/notifications", tok, nil)
	list := decode[[]*notify.Notification](t, env)
	require.Len(t, list, 1)
	require.Equal(t, "Success", list[0].Title)

	_, env = e.call(http.MethodGet, "/api/v1/notifications", tok, nil)
	require.Empty(t, decode[[]*notify.Notification](t, env))

	_, env = e.call(http.MethodGet, "/api/v1/subscription/status", tok, nil)
	st := decode[subsvc.Status](t, env)
	require.True(t, st.IsPremium)
	require.Equal(t, "basic_monthly", st.Subscription.PlanID)
}

func TestPurchaseRequestUnknownPlan(t *testing.T) {
	e := newTestEnv(t)
	_, env := e.call(http.MethodPost, "/api/v1/purchases/request", e.token("abc123", ""), map[string]string{"platform": "ios", "plan_id": "lifetime"})
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestGateAnonymousAskForLogin(t *testing.T) {
	e := newTestEnv(t)
	_, env := e.call(http.MethodGet, "/api/v1/gate/premium?feature=practice", "", nil)
	res := decode[gate.Result](t, env)
	require.False(t, res.Allowed)
	require.Equal(t, gate.DecisionLoginRequired, res.Decision)

	_, env = e.call(http.MethodGet, "/api/v1/gate/premium", "", nil)
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestUsageLimitOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 2; i++ {
		_, env := e.call(http.MethodPost, "/api/v1/usage/speak_tones/increment", "", nil)
		require.Equal(t, response.APIResponseCodeOK, env.Code, env.Message)
	}
	_, env := e.call(http.MethodGet, "/api/v1/usage/speak_tones", "", nil)
	snap := decode[usage.Snapshot](t, env)
	require.Equal(t, 2, snap.Count)
	require.False(t, snap.CanUse)

	_, env = e.call(http.MethodGet, "/api/v1/gate/usage/speak_tones", "", nil)
	res := decode[gate.UsageResult](t, env)
	require.NotNil(t, res.Prompt)
	require.Equal(t, "Daily Limit Reached", res.Prompt.Title)

	_, env = e.call(http.MethodPost, "/api/v1/admin/users/anonymous/usage/speak_tones/reset", e.token("ops", mw.RoleAdmin), nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code, env.Message)
	snap = decode[usage.Snapshot](t, env)
	require.Equal(t, 0, snap.Count)
	require.True(t, snap.CanUse)

	_, env = e.call(http.MethodGet, "/api/v1/usage/speak_tones", "", nil)
	require.Equal(t, 0, decode[usage.Snapshot](t, env).Count)
}

func TestUsageResetIsAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token("abc123", "")
	_, env := e.call(http.MethodGet, "/api/v1/usage/speak_tones", tok, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	for i := 0; i < 2; i++ {
		_, env = e.call(http.MethodPost, "/api/v1/usage/speak_tones/increment", tok, nil)
		require.Equal(t, response.APIResponseCodeOK, env.Code, env.Message)
	}

	code, env := e.call(http.MethodPost, "/api/v1/admin/users/abc123/usage/speak_tones/reset", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, response.APIResponseCodeUnauthorized, env.Code)

	code, env = e.call(http.MethodPost, "/api/v1/admin/users/abc123/usage/speak_tones/reset", tok, nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, response.APIResponseCodeForbidden, env.Code)

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/usage/speak_tones/reset", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	_, env = e.call(http.MethodGet, "/api/v1/usage/speak_tones", tok, nil)
	require.Equal(t, 2, decode[usage.Snapshot](t, env).Count)

	_, env = e.call(http.MethodPost, "/api/v1/admin/users/abc123/usage/speak_tones/reset", e.token("ops", mw.RoleAdmin), nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code, env.Message)
	_, env = e.call(http.MethodGet, "/api/v1/usage/speak_tones", tok, nil)
	require.Equal(t, 0, decode[usage.Snapshot](t, env).Count)
}

func TestAdminRoutes(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.call(http.MethodPost, "/api/v1/admin/list_user_subscriptions", e.token("abc123", ""), map[string]any{})
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, response.APIResponseCodeForbidden, env.Code)

	admin := e.token("ops", mw.RoleAdmin)
	_, env = e.call(http.MethodPost, "/api/v1/admin/list_user_subscriptions", admin, map[string]any{})
	require.Equal(t, response.APIResponseCodeOK, env.Code, env.Message)
	scan := decode[subsvc.ScanResponse](t, env)
	require.Zero(t, scan.Total)

	_, env = e.call(http.MethodPost, "/api/v1/admin/list_user_subscriptions", admin, map[string]any{"sort_by": "password"})
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)

	_, env = e.call(http.MethodPost, "/api/v1/admin/get_subscription_statistic", admin, map[string]any{
		"data_items": []map[string]string{{"id": "premium_user_count"}},
	})
	require.Equal(t, response.APIResponseCodeOK, env.Code, env.Message)

	_, env = e.call(http.MethodPost, "/api/v1/admin/get_subscription_statistic", admin, map[string]any{
		"data_items": []map[string]string{{"id": "revenue"}},
	})
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestAppleWebhookRejectsBadPayload(t *testing.T) {
	e := newTestEnv(t)
	_, env := e.call(http.MethodPost, "/webhook/apple", "", map[string]any{})
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)

	_, env = e.call(http.MethodPost, "/webhook/apple", "", map[string]string{"signedPayload": "not-a-jws"})
	require.Equal(t, response.APIResponseCodeError, env.Code)
}
