// Package purchase drives subscription purchases from the store request to
// the committed entitlement.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase_log"
	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	"github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/models"
	"github.com/fatflowers/entitlement/internal/platform/apple/apple_iap"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/metrics"
	"github.com/fatflowers/entitlement/pkg/tool"
	"github.com/fatflowers/entitlement/pkg/types"
)

var (
	ErrUnauthenticated = errors.New("user is not authenticated")
	// ErrProductMapping means a catalog plan has no product on the platform.
	ErrProductMapping = errors.New("plan has no store product for platform")
	ErrNotStarted     = errors.New("purchase controller is not started")
	// ErrTransactionOwned means another account already holds the store
	// transaction. It is a receipt rejection.
	ErrTransactionOwned = fmt.Errorf("%w: transaction is held by another account", receipt.ErrReceiptRejected)
)

// Controller consumes the platform's purchase events on a single goroutine
// and turns validated purchases into entitlement records.
type Controller struct {
	platform  iap.Platform
	validator receipt.Validator
	subs      *subscription.Service
	catalog   *catalog.Service
	inbox     *notify.Inbox
	eventLog  *purchase_log.Service
	metrics   *metrics.Business
	log       *zap.SugaredLogger
	now       tool.Clock

	// procMu serializes purchase handling between the event loop and restores.
	procMu   sync.Mutex
	attempts *attempts

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Params struct {
	Platform  iap.Platform
	Validator receipt.Validator
	Subs      *subscription.Service
	Catalog   *catalog.Service
	Inbox     *notify.Inbox
	EventLog  *purchase_log.Service
	Metrics   *metrics.Business
	Log       *zap.SugaredLogger
}

func NewController(p Params) *Controller {
	c := &Controller{
		platform:  p.Platform,
		validator: p.Validator,
		subs:      p.Subs,
		catalog:   p.Catalog,
		inbox:     p.Inbox,
		eventLog:  p.EventLog,
		metrics:   p.Metrics,
		log:       p.Log,
		now:       tool.UTCNow,
	}
	c.attempts = newAttempts(func() time.Time { return c.now() }, attemptCacheSize)
	return c
}

// WithClock replaces the time source; tests pin "now" with it.
func (c *Controller) WithClock(clock tool.Clock) *Controller {
	c.now = func() time.Time { return clock().UTC() }
	return c
}

// Start opens the billing connection and starts the event loop.
func (c *Controller) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return nil
	}
	if err := c.platform.InitConnection(ctx); err != nil {
		return fmt.Errorf("failed to init billing connection: %w", err)
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(loopCtx, c.platform.Events(), c.done)
	c.log.Info("purchase controller started")
	return nil
}

// Stop ends the event loop and closes the billing connection.
func (c *Controller) Stop(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.cancel, c.done = nil, nil
	if err := c.platform.EndConnection(ctx); err != nil {
		return fmt.Errorf("failed to end billing connection: %w", err)
	}
	c.log.Info("purchase controller stopped")
	return nil
}

func (c *Controller) loop(ctx context.Context, events <-chan *iap.Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *Controller) handleEvent(ctx context.Context, ev *iap.Event) {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	switch ev.Kind {
	case iap.EventPurchaseUpdated:
		_, err := c.handlePurchaseUpdate(ctx, ev.Purchase, types.SubscriptionChangeReasonPurchase)
		ev.Done(err)
	case iap.EventPurchaseError:
		c.handlePurchaseError(ctx, ev.Error)
		ev.Done(nil)
	default:
		ev.Done(fmt.Errorf("unknown purchase event kind %q", ev.Kind))
	}
}

// Attempt returns the state of the user's latest purchase attempt.
func (c *Controller) Attempt(userID string) Attempt {
	return c.attempts.get(userID)
}

// PurchaseSubscription asks the store to start a purchase of planID. It
// returns true once the request is dispatched; the outcome arrives later as
// a purchase event.
func (c *Controller) PurchaseSubscription(ctx context.Context, userID string, platform types.Platform, planID string) (bool, error) {
	log := logctx.FromCtx(ctx, c.log)
	defer c.metrics.ObserveProcess("purchase", "request", time.Now())

	req, err := c.subscriptionRequest(ctx, userID, platform, planID)
	if err == nil {
		// A purchase of the same user may be mid-validation on the event loop.
		c.procMu.Lock()
		if err = c.attempts.begin(userID, req.ProductID); err == nil {
			if err = c.platform.RequestSubscription(ctx, req); err != nil {
				_ = c.attempts.to(userID, AttemptError, err)
			}
		}
		c.procMu.Unlock()
	}
	if err != nil {
		log.Errorw("failed to request subscription", "plan_id", planID, "platform", platform, "error", err)
		c.metrics.PurchaseEvent("request", "failed")
		c.inbox.Error(userID, "Purchase Failed", "Unable to complete subscription purchase")
		return false, err
	}
	c.metrics.PurchaseEvent("request", "dispatched")
	log.Infow("subscription requested", "plan_id", planID, "product_id", req.ProductID, "platform", platform)
	return true, nil
}

func (c *Controller) subscriptionRequest(ctx context.Context, userID string, platform types.Platform, planID string) (*iap.SubscriptionRequest, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if !platform.Valid() {
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
	plan, err := c.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}
	productID := plan.ProductID(platform)
	if productID == "" {
		return nil, fmt.Errorf("%w: plan %s on %s", ErrProductMapping, planID, platform)
	}
	req := &iap.SubscriptionRequest{
		UserID:      userID,
		Platform:    platform,
		ProductID:   productID,
		RequestedAt: c.now(),
	}
	token, err := apple_iap.AccountToken(userID)
	switch {
	case errors.Is(err, apple_iap.ErrUnencodableUserID):
		// The purchase goes ahead unbound; ownership then rests on the
		// transaction records.
		logctx.FromCtx(ctx, c.log).Warnw("purchase requested without account token", "user_id", userID, "error", err)
	case err != nil:
		return nil, fmt.Errorf("failed to derive account token: %w", err)
	default:
		req.AccountToken = token
	}
	return req, nil
}

// handlePurchaseUpdate validates p, commits the entitlement and finishes the
// store transaction. Callers hold procMu.
func (c *Controller) handlePurchaseUpdate(ctx context.Context, p *iap.Purchase, reason types.SubscriptionChangeReason) (*models.UserSubscription, error) {
	if p == nil {
		return nil, iap.ErrNoPurchase
	}
	log := logctx.FromCtx(ctx, c.log).With("user_id", p.UserID, "platform", p.Platform, "transaction_id", p.TransactionID)
	defer c.metrics.ObserveProcess("purchase", string(reason), time.Now())
	c.eventLog.Record(ctx, purchase_log.Entry{
		Source:        string(iap.EventPurchaseUpdated),
		Platform:      string(p.Platform),
		UserID:        p.UserID,
		TransactionID: p.TransactionID,
		Data:          p,
		Status:        models.PurchaseEventLogStatusReceived,
	})

	rec, err := c.applyPurchase(ctx, p, reason)
	status := models.PurchaseEventLogStatusHandled
	switch {
	case errors.Is(err, receipt.ErrPaymentPending):
		log.Infow("purchase awaits payment", "original_transaction_id", rec.OriginalTransactionID)
		c.metrics.PurchaseEvent(string(reason), "pending")
		if reason == types.SubscriptionChangeReasonPurchase {
			c.inbox.Info(p.UserID, "Payment Pending", "Your subscription will be activated once the payment completes.")
		}
	case err != nil:
		status = models.PurchaseEventLogStatusHandleFailed
		log.Errorw("failed to process purchase", "error", err)
		c.metrics.PurchaseEvent(string(reason), "failed")
		if reason == types.SubscriptionChangeReasonPurchase {
			c.inbox.Error(p.UserID, "Error", "Failed to activate subscription")
		}
	default:
		c.metrics.PurchaseEvent(string(reason), "committed")
		if reason == types.SubscriptionChangeReasonPurchase && rec.Status == types.SubscriptionStatusActive {
			c.inbox.Info(p.UserID, "Success", "Subscription activated successfully!")
		}
	}
	c.eventLog.Record(ctx, purchase_log.Entry{
		Source:        string(iap.EventPurchaseUpdated),
		Platform:      string(p.Platform),
		UserID:        p.UserID,
		TransactionID: p.TransactionID,
		Result:        rec,
		Err:           err,
		Status:        status,
	})
	return rec, err
}

func (c *Controller) applyPurchase(ctx context.Context, p *iap.Purchase, reason types.SubscriptionChangeReason) (*models.UserSubscription, error) {
	if p.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if err := c.attempts.begin(p.UserID, p.ProductID); err != nil {
		return nil, err
	}
	fail := func(state AttemptState, err error) (*models.UserSubscription, error) {
		_ = c.attempts.to(p.UserID, state, err)
		return nil, err
	}

	v, err := c.validator.Validate(ctx, p)
	pending := errors.Is(err, receipt.ErrPaymentPending)
	if err != nil && !pending {
		if receipt.IsRejected(err) {
			return fail(AttemptRejected, fmt.Errorf("failed to validate receipt: %w", err))
		}
		return fail(AttemptError, fmt.Errorf("failed to validate receipt: %w", err))
	}
	if v == nil {
		return fail(AttemptError, errors.New("validator returned no verification"))
	}

	plan, err := c.catalog.PlanByProductID(p.Platform, v.ProductID)
	if err != nil {
		return fail(AttemptError, fmt.Errorf("%w: %w", ErrProductMapping, err))
	}
	rec, err := c.record(p, v, plan)
	if err != nil {
		return fail(AttemptError, err)
	}
	if err := c.checkHolder(ctx, rec); err != nil {
		if errors.Is(err, ErrTransactionOwned) {
			return fail(AttemptRejected, err)
		}
		return fail(AttemptError, err)
	}
	if pending {
		// The attempt stays pending until the store reports the payment.
		rec.Status = types.SubscriptionStatusPending
		if err := c.subs.Commit(ctx, rec, reason); err != nil {
			return fail(AttemptError, err)
		}
		return rec, receipt.ErrPaymentPending
	}

	if err := c.attempts.to(p.UserID, AttemptValidated, nil); err != nil {
		return fail(AttemptError, err)
	}
	if err := c.subs.Commit(ctx, rec, reason); err != nil {
		return fail(AttemptError, err)
	}
	if err := c.platform.FinishTransaction(ctx, p); err != nil {
		// Committed already; the store redelivers unfinished transactions and
		// the commit is idempotent.
		logctx.FromCtx(ctx, c.log).Warnw("failed to finish transaction", "transaction_id", p.TransactionID, "error", err)
	}
	_ = c.attempts.to(p.UserID, AttemptCommitted, nil)

	if _, err := c.subs.CheckSubscriptionStatus(ctx, p.UserID); err != nil {
		logctx.FromCtx(ctx, c.log).Warnw("failed to refresh subscription status", "error", err)
	}
	return rec, nil
}

// checkHolder refuses a transaction that is already recorded for another
// user, so one receipt cannot unlock several accounts.
func (c *Controller) checkHolder(ctx context.Context, rec *models.UserSubscription) error {
	held, err := c.subs.FindByTransaction(ctx, rec.Platform, rec.OriginalTransactionID)
	if err != nil {
		return err
	}
	for _, h := range held {
		if h.UserID != rec.UserID {
			return fmt.Errorf("%w: %s", ErrTransactionOwned, rec.OriginalTransactionID)
		}
	}
	return nil
}

// record builds the entitlement of a verified purchase. The end date is the
// store's expiry when it reports one, else one billing period after purchase.
func (c *Controller) record(p *iap.Purchase, v *receipt.Verification, plan *types.SubscriptionPlan) (*models.UserSubscription, error) {
	start := v.PurchaseDate
	if start.IsZero() {
		start = c.now()
	}
	var end time.Time
	if v.ExpiresAt != nil {
		end = *v.ExpiresAt
	} else {
		var err error
		if end, err = plan.Period.AddTo(start); err != nil {
			return nil, err
		}
	}
	otid := v.OriginalTransactionID
	if otid == "" {
		otid = p.TransactionID
	}
	return &models.UserSubscription{
		UserID:                p.UserID,
		PlanID:                plan.ID,
		Status:                types.SubscriptionStatusActive,
		StartDate:             start.UTC(),
		EndDate:               end.UTC(),
		AutoRenew:             v.AutoRenew,
		Platform:              p.Platform,
		OriginalTransactionID: otid,
		ReceiptData:           p.Receipt,
	}, nil
}

func (c *Controller) handlePurchaseError(ctx context.Context, perr *iap.PurchaseError) {
	if perr == nil {
		return
	}
	logctx.FromCtx(ctx, c.log).Warnw("purchase error reported", "user_id", perr.UserID, "code", perr.Code, "message", perr.Message)
	c.metrics.PurchaseEvent(string(iap.EventPurchaseError), perr.Code)
	c.eventLog.Record(ctx, purchase_log.Entry{
		Source: string(iap.EventPurchaseError),
		UserID: perr.UserID,
		Data:   perr,
		Err:    perr,
		Status: models.PurchaseEventLogStatusHandleFailed,
	})
	if perr.UserID == "" {
		return
	}
	if c.attempts.get(perr.UserID).State == AttemptPending {
		_ = c.attempts.to(perr.UserID, AttemptError, perr)
	}
	msg := perr.Message
	if msg == "" {
		msg = "Failed to complete purchase"
	}
	c.inbox.Error(perr.UserID, "Purchase Error", msg)
}
