// Package notification_handler applies App Store server notifications to the
// entitlement store.
package notification_handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase_log"
	"github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/models"
	"github.com/fatflowers/entitlement/internal/platform/apple/apple_notification"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/metrics"
	"github.com/fatflowers/entitlement/pkg/types"
)

var ErrBundleMismatch = errors.New("notification is for another bundle")

// Decoder verifies a signedPayload and decodes it.
type Decoder func(signedPayload string) (*apple_notification.AppStoreServerNotification, error)

const (
	ActionNone         = "none"
	ActionGranted      = "granted"
	ActionExpired      = "expired"
	ActionCancelled    = "cancelled"
	ActionRenewalOn    = "renewal_on"
	ActionRenewalOff   = "renewal_off"
	ActionIgnored      = "ignored"
	sourceAppleWebhook = "apple_notification"
)

// Result describes what a notification changed.
type Result struct {
	NotificationType      string   `json:"notification_type"`
	Subtype               string   `json:"subtype,omitempty"`
	OriginalTransactionID string   `json:"original_transaction_id,omitempty"`
	Action                string   `json:"action"`
	UserIDs               []string `json:"user_ids,omitempty"`
}

type NotificationHandler struct {
	bundleID string
	subs     *subscription.Service
	catalog  *catalog.Service
	eventLog *purchase_log.Service
	inbox    *notify.Inbox
	metrics  *metrics.Business
	log      *zap.SugaredLogger
	decode   Decoder
}

func NewNotificationHandler(
	cfg *config.Config,
	subs *subscription.Service,
	cat *catalog.Service,
	eventLog *purchase_log.Service,
	inbox *notify.Inbox,
	m *metrics.Business,
	log *zap.SugaredLogger,
) *NotificationHandler {
	return &NotificationHandler{
		bundleID: cfg.AppleIAP.BundleID,
		subs:     subs,
		catalog:  cat,
		eventLog: eventLog,
		inbox:    inbox,
		metrics:  m,
		log:      log,
		decode:   apple_notification.New,
	}
}

// WithDecoder replaces the payload verifier; tests sign with their own root.
func (h *NotificationHandler) WithDecoder(d Decoder) *NotificationHandler {
	h.decode = d
	return h
}

// HandleApple verifies an App Store server notification and applies it.
// Notifications about unknown transactions are acknowledged and ignored.
func (h *NotificationHandler) HandleApple(ctx context.Context, signedPayload string) (res *Result, resErr error) {
	parser, err := NewAppleNotificationParser(h.decode, signedPayload, time.Time{})
	if err != nil {
		h.metrics.PurchaseEvent(sourceAppleWebhook, "invalid")
		return nil, err
	}
	typ, subtype := parser.GetNotificationType(ctx)
	res = &Result{NotificationType: typ, Subtype: subtype, OriginalTransactionID: parser.GetTransactionID(ctx)}
	log := logctx.FromCtx(ctx, h.log).With("notification_type", typ, "subtype", subtype, "original_transaction_id", res.OriginalTransactionID)

	var userID string
	if v, e := parser.GetUserID(ctx); e == nil {
		userID = v
	}
	h.eventLog.Record(ctx, purchase_log.Entry{
		Source:        sourceAppleWebhook,
		Platform:      string(parser.GetPlatform(ctx)),
		UserID:        userID,
		TransactionID: res.OriginalTransactionID,
		Data:          parser.GetData(ctx),
		Status:        models.PurchaseEventLogStatusReceived,
	})
	defer func() {
		status := models.PurchaseEventLogStatusHandled
		result := "handled"
		if resErr != nil {
			status = models.PurchaseEventLogStatusHandleFailed
			result = "failed"
			log.Errorw("failed to handle notification", "error", resErr)
		} else {
			log.Infow("notification handled", "action", res.Action, "user_ids", res.UserIDs)
		}
		h.metrics.PurchaseEvent(sourceAppleWebhook, result)
		h.eventLog.Record(ctx, purchase_log.Entry{
			Source:        sourceAppleWebhook,
			Platform:      string(parser.GetPlatform(ctx)),
			UserID:        userID,
			TransactionID: res.OriginalTransactionID,
			Result:        res,
			Err:           resErr,
			Status:        status,
		})
	}()

	n := parser.Notification
	if n.IsTestNotification || n.TransactionInfo == nil {
		res.Action = ActionNone
		return res, nil
	}
	if h.bundleID != "" && n.TransactionInfo.BundleID != "" && n.TransactionInfo.BundleID != h.bundleID {
		return res, fmt.Errorf("%w: %s", ErrBundleMismatch, n.TransactionInfo.BundleID)
	}

	records, err := h.subs.FindByTransaction(ctx, types.PlatformIOS, res.OriginalTransactionID)
	if err != nil {
		return res, err
	}

	switch typ {
	case apple_notification.NotificationTypeSubscribed, apple_notification.NotificationTypeDidRenew:
		err = h.grant(ctx, parser, records, userID, res)
	case apple_notification.NotificationTypeExpired, apple_notification.NotificationTypeGracePeriodExpired:
		err = h.each(records, res, ActionExpired, func(r *models.UserSubscription) error {
			return h.subs.MarkExpired(ctx, r.ID)
		})
	case apple_notification.NotificationTypeDidChangeRenewalStatus:
		on := subtype == apple_notification.SubtypeAutoRenewEnabled
		action := lo.Ternary(on, ActionRenewalOn, ActionRenewalOff)
		err = h.each(records, res, action, func(r *models.UserSubscription) error {
			return h.subs.SetAutoRenew(ctx, r.ID, on)
		})
	case apple_notification.NotificationTypeRefund, apple_notification.NotificationTypeRevoke:
		err = h.each(records, res, ActionCancelled, func(r *models.UserSubscription) error {
			if err := h.subs.MarkCancelled(ctx, r.ID, types.SubscriptionChangeReasonRefund); err != nil {
				return err
			}
			h.inbox.Info(r.UserID, "Subscription Ended", "Your subscription was refunded and premium access has ended.")
			return nil
		})
	default:
		res.Action = ActionIgnored
	}
	if err != nil {
		return res, err
	}

	for _, uid := range res.UserIDs {
		if _, err := h.subs.CheckSubscriptionStatus(ctx, uid); err != nil {
			log.Warnw("failed to refresh subscription status", "user_id", uid, "error", err)
		}
	}
	return res, nil
}

// grant stores the renewed period of the transaction for every account that
// holds it. A first purchase is routed by its appAccountToken.
func (h *NotificationHandler) grant(ctx context.Context, parser *AppleNotificationParser, records []*models.UserSubscription, tokenUserID string, res *Result) error {
	ti := parser.Notification.TransactionInfo
	plan, err := h.catalog.PlanByProductID(types.PlatformIOS, ti.ProductID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		if tokenUserID == "" {
			res.Action = ActionIgnored
			return nil
		}
		records = []*models.UserSubscription{{UserID: tokenUserID}}
	}

	end := millisToTime(ti.ExpiresDate)
	if end.IsZero() {
		if end, err = plan.Period.AddTo(millisToTime(ti.PurchaseDate)); err != nil {
			return err
		}
	}
	for _, existing := range records {
		rec := &models.UserSubscription{
			UserID:                existing.UserID,
			PlanID:                plan.ID,
			Status:                types.SubscriptionStatusActive,
			StartDate:             millisToTime(ti.PurchaseDate),
			EndDate:               end,
			AutoRenew:             parser.AutoRenew(),
			Platform:              types.PlatformIOS,
			OriginalTransactionID: ti.OriginalTransactionID,
			ReceiptData:           existing.ReceiptData,
		}
		if !existing.StartDate.IsZero() {
			rec.StartDate = existing.StartDate
		}
		if err := h.subs.Commit(ctx, rec, types.SubscriptionChangeReasonPurchase); err != nil {
			return err
		}
		res.UserIDs = append(res.UserIDs, rec.UserID)
	}
	res.Action = ActionGranted
	return nil
}

func (h *NotificationHandler) each(records []*models.UserSubscription, res *Result, action string, fn func(*models.UserSubscription) error) error {
	if len(records) == 0 {
		res.Action = ActionIgnored
		return nil
	}
	for _, r := range records {
		if err := fn(r); err != nil {
			return err
		}
		res.UserIDs = append(res.UserIDs, r.UserID)
	}
	res.Action = action
	return nil
}

var Module = fx.Options(
	fx.Provide(NewNotificationHandler),
)
