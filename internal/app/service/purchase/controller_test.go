package purchase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase_log"
	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	"github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/models"
	"github.com/fatflowers/entitlement/internal/platform/db/dbtest"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/types"
)

var purchasedAt = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

type verdict struct {
	v   *receipt.Verification
	err error
}

// fakeValidator answers by transaction id.
type fakeValidator struct {
	mu       sync.Mutex
	verdicts map[string]verdict
	calls    int
}

func (f *fakeValidator) set(txID string, v *receipt.Verification, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts[txID] = verdict{v: v, err: err}
}

func (f *fakeValidator) Validate(_ context.Context, p *iap.Purchase) (*receipt.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	vd, ok := f.verdicts[p.TransactionID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction", receipt.ErrReceiptRejected)
	}
	if vd.v == nil {
		return nil, vd.err
	}
	cp := *vd.v
	return &cp, vd.err
}

type harness struct {
	ctrl      *Controller
	bridge    *iap.Bridge
	validator *fakeValidator
	subs      *subscription.Service
	inbox     *notify.Inbox
	db        *gorm.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	now := func() time.Time { return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) }

	eventLog := purchase_log.New(gdb, log)
	t.Cleanup(eventLog.Flush)

	h := &harness{
		bridge:    iap.NewBridge(8),
		validator: &fakeValidator{verdicts: map[string]verdict{}},
		subs:      subscription.NewService(gdb, log, nil).WithClock(now),
		inbox:     notify.NewInbox(log, 10),
		db:        gdb,
	}
	h.ctrl = NewController(Params{
		Platform:  h.bridge,
		Validator: h.validator,
		Subs:      h.subs,
		Catalog:   catalog.NewWithPlans(config.DefaultPlans()),
		Inbox:     h.inbox,
		EventLog:  eventLog,
		Log:       log,
	}).WithClock(now)

	require.NoError(t, h.ctrl.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, h.ctrl.Stop(context.Background())) })
	return h
}

func iosPurchase(userID, txID, productID string) *iap.Purchase {
	return &iap.Purchase{
		UserID:          userID,
		Platform:        types.PlatformIOS,
		ProductID:       productID,
		TransactionID:   txID,
		TransactionDate: purchasedAt,
		Receipt:         "receipt-" + txID,
	}
}

func verified(txID, productID string) *receipt.Verification {
	return &receipt.Verification{
		Platform:              types.PlatformIOS,
		ProductID:             productID,
		TransactionID:         txID,
		OriginalTransactionID: txID,
		PurchaseDate:          purchasedAt,
		AutoRenew:             true,
	}
}

func (h *harness) record(t *testing.T, userID, txID string) *models.UserSubscription {
	t.Helper()
	var rec models.UserSubscription
	require.NoError(t, h.db.Where("user_id = ? AND original_transaction_id = ?", userID, txID).First(&rec).Error)
	return &rec
}

func TestPurchase_EndDateFromBillingPeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		userID, txID, productID, planID string
		wantEnd                         time.Time
	}{
		{"a1", "m-1", "com.yuyin.premium.monthly", "basic_monthly", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
		{"b2", "y-1", "com.yuyin.premium.yearly", "basic_yearly", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		h.validator.set(tc.txID, verified(tc.txID, tc.productID), nil)
		require.NoError(t, h.bridge.Deliver(ctx, iosPurchase(tc.userID, tc.txID, tc.productID)))

		rec := h.record(t, tc.userID, tc.txID)
		require.Equal(t, tc.planID, rec.PlanID)
		require.Equal(t, types.SubscriptionStatusActive, rec.Status)
		require.True(t, rec.StartDate.Equal(purchasedAt))
		require.True(t, rec.EndDate.Equal(tc.wantEnd), "end %s", rec.EndDate)

		require.True(t, h.bridge.Finished(types.PlatformIOS, tc.txID))
		require.True(t, h.subs.IsPremium(tc.userID))
		require.Equal(t, AttemptCommitted, h.ctrl.Attempt(tc.userID).State)

		notes := h.inbox.Drain(tc.userID)
		require.Len(t, notes, 1)
		require.Equal(t, "Subscription activated successfully!", notes[0].Message)
	}
}

func TestPurchase_StoreExpiryWins(t *testing.T) {
	h := newHarness(t)
	v := verified("m-2", "com.yuyin.premium.monthly")
	expires := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	v.ExpiresAt = &expires
	h.validator.set("m-2", v, nil)

	require.NoError(t, h.bridge.Deliver(context.Background(), iosPurchase("a1", "m-2", "com.yuyin.premium.monthly")))
	require.True(t, h.record(t, "a1", "m-2").EndDate.Equal(expires))
}

func TestPurchase_RejectedReceiptNotFinished(t *testing.T) {
	h := newHarness(t)
	h.validator.set("bad", nil, fmt.Errorf("%w: status 21003", receipt.ErrReceiptRejected))

	err := h.bridge.Deliver(context.Background(), iosPurchase("a1", "bad", "com.yuyin.premium.monthly"))
	require.ErrorIs(t, err, receipt.ErrReceiptRejected)
	require.False(t, h.bridge.Finished(types.PlatformIOS, "bad"))
	require.Equal(t, AttemptRejected, h.ctrl.Attempt("a1").State)
	require.False(t, h.subs.IsPremium("a1"))

	var n int64
	require.NoError(t, h.db.Model(&models.UserSubscription{}).Count(&n).Error)
	require.Zero(t, n)

	notes := h.inbox.Drain("a1")
	require.Len(t, notes, 1)
	require.Equal(t, notify.LevelError, notes[0].Level)
}

func TestPurchase_PendingPayment(t *testing.T) {
	h := newHarness(t)
	h.validator.set("p-1", verified("p-1", "com.yuyin.premium.monthly"), receipt.ErrPaymentPending)

	err := h.bridge.Deliver(context.Background(), iosPurchase("a1", "p-1", "com.yuyin.premium.monthly"))
	require.ErrorIs(t, err, receipt.ErrPaymentPending)
	require.Equal(t, types.SubscriptionStatusPending, h.record(t, "a1", "p-1").Status)
	require.False(t, h.bridge.Finished(types.PlatformIOS, "p-1"))
	require.Equal(t, AttemptPending, h.ctrl.Attempt("a1").State)
}

func TestPurchase_UnknownProduct(t *testing.T) {
	h := newHarness(t)
	h.validator.set("x-1", verified("x-1", "com.unknown"), nil)

	err := h.bridge.Deliver(context.Background(), iosPurchase("a1", "x-1", "com.unknown"))
	require.ErrorIs(t, err, ErrProductMapping)
	require.Equal(t, AttemptError, h.ctrl.Attempt("a1").State)
}

func TestPurchaseSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.ctrl.PurchaseSubscription(ctx, "", types.PlatformIOS, "basic_monthly")
	require.False(t, ok)
	require.ErrorIs(t, err, ErrUnauthenticated)

	ok, err = h.ctrl.PurchaseSubscription(ctx, "a1", types.PlatformIOS, "missing")
	require.False(t, ok)
	require.ErrorIs(t, err, catalog.ErrPlanNotFound)
	require.Equal(t, "Purchase Failed", h.inbox.Drain("a1")[0].Title)

	ok, err = h.ctrl.PurchaseSubscription(ctx, "a1", types.PlatformIOS, "basic_yearly")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, AttemptPending, h.ctrl.Attempt("a1").State)

	req, found := h.bridge.PendingRequest("a1")
	require.True(t, found)
	require.Equal(t, "com.yuyin.premium.yearly", req.ProductID)
	require.NotEmpty(t, req.AccountToken)

	require.NoError(t, h.bridge.Fail(ctx, &iap.PurchaseError{UserID: "a1", Code: iap.ErrorCodeUserCancelled, Message: "cancelled"}))
	require.Equal(t, AttemptError, h.ctrl.Attempt("a1").State)
	notes := h.inbox.Drain("a1")
	require.Len(t, notes, 1)
	require.Equal(t, "Purchase Error", notes[0].Title)

	// A failed attempt can be retried.
	ok, err = h.ctrl.PurchaseSubscription(ctx, "a1", types.PlatformAndroid, "basic_monthly")
	require.NoError(t, err)
	require.True(t, ok)
}

// gatedFinish holds FinishTransaction until release is closed.
type gatedFinish struct {
	*iap.Bridge
	entered chan struct{}
	release chan struct{}
}

func (g *gatedFinish) FinishTransaction(ctx context.Context, p *iap.Purchase) error {
	close(g.entered)
	<-g.release
	return g.Bridge.FinishTransaction(ctx, p)
}

func TestPurchaseSubscription_WaitsForPurchaseInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gate := &gatedFinish{Bridge: h.bridge, entered: make(chan struct{}), release: make(chan struct{})}
	h.ctrl.platform = gate
	h.validator.set("m-1", verified("m-1", "com.yuyin.premium.monthly"), nil)

	delivered := make(chan error, 1)
	go func() { delivered <- h.bridge.Deliver(ctx, iosPurchase("a1", "m-1", "com.yuyin.premium.monthly")) }()
	<-gate.entered
	require.Equal(t, AttemptValidated, h.ctrl.Attempt("a1").State)

	requested := make(chan error, 1)
	go func() {
		_, err := h.ctrl.PurchaseSubscription(ctx, "a1", types.PlatformIOS, "basic_yearly")
		requested <- err
	}()
	require.Never(t, func() bool { return len(requested) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	close(gate.release)
	require.NoError(t, <-delivered)
	require.NoError(t, <-requested)
	require.Equal(t, AttemptPending, h.ctrl.Attempt("a1").State)
	req, found := h.bridge.PendingRequest("a1")
	require.True(t, found)
	require.Equal(t, "com.yuyin.premium.yearly", req.ProductID)
}

func TestPurchaseSubscription_UserWithoutAccountToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.ctrl.PurchaseSubscription(ctx, "user_42", types.PlatformIOS, "basic_monthly")
	require.NoError(t, err)
	require.True(t, ok)
	req, found := h.bridge.PendingRequest("user_42")
	require.True(t, found)
	require.Empty(t, req.AccountToken)

	ok, err = h.ctrl.PurchaseSubscription(ctx, "a1", types.PlatformAndroid, "basic_monthly")
	require.NoError(t, err)
	require.True(t, ok)
	req, found = h.bridge.PendingRequest("a1")
	require.True(t, found)
	require.NotEmpty(t, req.AccountToken)
}

func TestPurchase_TransactionHeldByAnotherAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.validator.set("s-1", verified("s-1", "com.yuyin.premium.monthly"), nil)

	require.NoError(t, h.bridge.Deliver(ctx, iosPurchase("a1", "s-1", "com.yuyin.premium.monthly")))
	require.True(t, h.subs.IsPremium("a1"))

	err := h.bridge.Deliver(ctx, iosPurchase("b2", "s-1", "com.yuyin.premium.monthly"))
	require.ErrorIs(t, err, ErrTransactionOwned)
	require.True(t, receipt.IsRejected(err))
	require.Equal(t, AttemptRejected, h.ctrl.Attempt("b2").State)
	require.False(t, h.subs.IsPremium("b2"))

	h.bridge.ReportAvailable("c3", []*iap.Purchase{iosPurchase("", "s-1", "com.yuyin.premium.monthly")})
	res, err := h.ctrl.RestorePurchases(ctx, "c3")
	require.NoError(t, err)
	require.Zero(t, res.Restored)
	require.Equal(t, 1, res.Failed)
	require.False(t, h.subs.IsPremium("c3"))

	h.bridge.ReportAvailable("a1", []*iap.Purchase{iosPurchase("", "s-1", "com.yuyin.premium.monthly")})
	res, err = h.ctrl.RestorePurchases(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Restored)

	var n int64
	require.NoError(t, h.db.Model(&models.UserSubscription{}).Where("original_transaction_id = ?", "s-1").Count(&n).Error)
	require.EqualValues(t, 1, n)
}

func TestPurchaseSubscription_ProductMapping(t *testing.T) {
	h := newHarness(t)
	plans := config.DefaultPlans()
	delete(plans[0].ProductIDs, types.PlatformAndroid)
	h.ctrl.catalog = catalog.NewWithPlans(plans)

	ok, err := h.ctrl.PurchaseSubscription(context.Background(), "a1", types.PlatformAndroid, "basic_monthly")
	require.False(t, ok)
	require.ErrorIs(t, err, ErrProductMapping)
}

func TestRestorePurchases_IdempotentOnRepeat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.validator.set("m-1", verified("m-1", "com.yuyin.premium.monthly"), nil)
	h.validator.set("y-1", verified("y-1", "com.yuyin.premium.yearly"), nil)
	h.bridge.ReportAvailable("a1", []*iap.Purchase{
		iosPurchase("", "m-1", "com.yuyin.premium.monthly"),
		iosPurchase("", "y-1", "com.yuyin.premium.yearly"),
	})

	snapshot := func() map[string]types.SubscriptionStatus {
		var rows []*models.UserSubscription
		require.NoError(t, h.db.Where("user_id = ?", "a1").Find(&rows).Error)
		res := map[string]types.SubscriptionStatus{}
		for _, r := range rows {
			res[r.OriginalTransactionID] = r.Status
		}
		return res
	}

	res, err := h.ctrl.RestorePurchases(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 2, res.Restored)
	require.Zero(t, res.Failed)
	require.NotNil(t, res.Status)
	require.True(t, res.Status.IsPremium)
	require.Equal(t, "basic_yearly", res.Status.Subscription.PlanID)
	first := snapshot()
	require.Equal(t, map[string]types.SubscriptionStatus{
		"m-1": types.SubscriptionStatusCancelled,
		"y-1": types.SubscriptionStatusActive,
	}, first)

	res, err = h.ctrl.RestorePurchases(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 2, res.Restored)
	require.Equal(t, first, snapshot())

	notes := h.inbox.Drain("a1")
	require.Len(t, notes, 2)
	require.Equal(t, "Purchases restored successfully", notes[1].Message)
}

func TestRestorePurchases_Unauthenticated(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.RestorePurchases(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLoadAvailablePlans(t *testing.T) {
	h := newHarness(t)
	h.bridge.ReportProducts([]*iap.Product{{
		ProductID:      "premium_monthly",
		Platform:       types.PlatformAndroid,
		LocalizedPrice: "€9.49",
		Currency:       "EUR",
	}})

	plans, err := h.ctrl.LoadAvailablePlans(context.Background(), types.PlatformAndroid)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, "€9.49", plans[0].Price)
	require.Equal(t, "EUR", plans[0].Currency)
	require.Equal(t, "$59.99", plans[1].Price)
}

func TestCancelSubscription(t *testing.T) {
	h := newHarness(t)
	got := h.ctrl.CancelSubscription(context.Background(), "a1")
	require.Equal(t, "Cancel Subscription", got.Title)
	require.Contains(t, got.Message, "Settings > Apple ID > Subscriptions")
	require.Empty(t, got.ManageURL)

	h.validator.set("m-1", verified("m-1", "com.yuyin.premium.monthly"), nil)
	require.NoError(t, h.bridge.Deliver(context.Background(), iosPurchase("a1", "m-1", "com.yuyin.premium.monthly")))
	got = h.ctrl.CancelSubscription(context.Background(), "a1")
	require.Equal(t, types.PlatformIOS, got.Platform)
	require.Equal(t, manageURLApple, got.ManageURL)
}

func TestAttemptTransitions(t *testing.T) {
	a := newAttempts(func() time.Time { return purchasedAt }, attemptCacheSize)
	require.Equal(t, AttemptIdle, a.get("u").State)
	require.Error(t, a.to("u", AttemptCommitted, nil))
	require.NoError(t, a.begin("u", "p"))
	require.Error(t, a.to("u", AttemptCommitted, nil))
	require.NoError(t, a.to("u", AttemptRejected, fmt.Errorf("bad receipt")))
	require.Equal(t, "bad receipt", a.get("u").Error)
	require.NoError(t, a.begin("u", "p"))
	require.Equal(t, AttemptPending, a.get("u").State)
	require.Empty(t, a.get("u").Error)
}

func TestAttempts_Bounded(t *testing.T) {
	a := newAttempts(func() time.Time { return purchasedAt }, 2)
	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, a.begin(id, "p"))
	}
	require.Equal(t, 2, a.users.Len())
	require.Equal(t, AttemptIdle, a.get("u1").State)
	require.Equal(t, AttemptPending, a.get("u3").State)
	// an evicted user starts over
	require.NoError(t, a.begin("u1", "p"))
	require.Equal(t, AttemptPending, a.get("u1").State)
}
