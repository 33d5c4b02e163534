package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	"github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/types"
)

type RestoreResult struct {
	Restored int                  `json:"restored"`
	Pending  int                  `json:"pending"`
	Failed   int                  `json:"failed"`
	Errors   []string             `json:"errors,omitempty"`
	Status   *subscription.Status `json:"status,omitempty"`
}

// RestorePurchases replays every purchase the store holds for userID
// through the regular purchase path. Replaying twice leaves the same records.
func (c *Controller) RestorePurchases(ctx context.Context, userID string) (*RestoreResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	log := logctx.FromCtx(ctx, c.log)
	purchases, err := c.platform.GetAvailablePurchases(ctx, userID)
	if err != nil {
		log.Errorw("failed to get available purchases", "error", err)
		c.inbox.Error(userID, "Error", "Failed to restore purchases")
		return nil, fmt.Errorf("failed to get available purchases: %w", err)
	}

	res := &RestoreResult{}
	for _, p := range purchases {
		if p.UserID == "" {
			p.UserID = userID
		}
		c.procMu.Lock()
		_, err := c.handlePurchaseUpdate(ctx, p, types.SubscriptionChangeReasonRestore)
		c.procMu.Unlock()
		switch {
		case err == nil:
			res.Restored++
		case errors.Is(err, receipt.ErrPaymentPending):
			res.Pending++
		default:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.TransactionID, err))
		}
	}

	st, err := c.subs.CheckSubscriptionStatus(ctx, userID)
	if err != nil {
		log.Warnw("failed to refresh subscription status after restore", "error", err)
	}
	res.Status = st
	log.Infow("purchases restored", "restored", res.Restored, "pending", res.Pending, "failed", res.Failed)

	if res.Failed > 0 {
		c.inbox.Error(userID, "Error", "Failed to restore purchases")
	} else {
		c.inbox.Info(userID, "Success", "Purchases restored successfully")
	}
	return res, nil
}

const (
	manageURLApple  = "https://apps.apple.com/account/subscriptions"
	manageURLGoogle = "https://play.google.com/store/account/subscriptions"
)

type CancelInstructions struct {
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Platform types.Platform `json:"platform,omitempty"`
	// ManageURL is set when the platform of the active subscription is known.
	ManageURL string `json:"manage_url,omitempty"`
}

// CancelSubscription explains how to cancel in the store. Cancellation
// itself only ever happens on the store side.
func (c *Controller) CancelSubscription(ctx context.Context, userID string) *CancelInstructions {
	res := &CancelInstructions{
		Title:   "Cancel Subscription",
		Message: "To cancel your subscription, please go to your device settings:\n\niOS: Settings > Apple ID > Subscriptions\nAndroid: Play Store > Subscriptions",
	}
	if st, ok := c.subs.Current(userID); ok && st.Subscription != nil {
		res.Platform = st.Subscription.Platform
		switch res.Platform {
		case types.PlatformIOS:
			res.ManageURL = manageURLApple
		case types.PlatformAndroid:
			res.ManageURL = manageURLGoogle
		}
	}
	logctx.FromCtx(ctx, c.log).Infow("cancel instructions requested", "user_id", userID, "platform", res.Platform)
	return res
}

// LoadAvailablePlans refreshes catalog prices from the store products of
// platform. Store failures keep the configured prices.
func (c *Controller) LoadAvailablePlans(ctx context.Context, platform types.Platform) ([]*types.SubscriptionPlan, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
	plans := c.catalog.PlansFor(platform)
	ids := lo.Map(plans, func(p *types.SubscriptionPlan, _ int) string { return p.ProductID(platform) })
	products, err := c.platform.GetSubscriptions(ctx, ids)
	if err != nil {
		logctx.FromCtx(ctx, c.log).Warnw("failed to load store products, serving configured prices", "platform", platform, "error", err)
		return plans, nil
	}
	refreshed := c.catalog.Refresh(platform, products)
	return lo.Filter(refreshed, func(p *types.SubscriptionPlan, _ int) bool { return p.ProductID(platform) != "" }), nil
}
