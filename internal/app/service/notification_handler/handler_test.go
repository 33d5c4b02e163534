package notification_handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase_log"
	"github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/models"
	"github.com/fatflowers/entitlement/internal/platform/apple/apple_iap"
	"github.com/fatflowers/entitlement/internal/platform/apple/apple_notification"
	"github.com/fatflowers/entitlement/internal/platform/apple/apple_notification/appletest"
	"github.com/fatflowers/entitlement/internal/platform/db/dbtest"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/types"
)

const (
	purchaseMS = int64(1705276800000) // 2024-01-15
	expiresMS  = int64(1707955200000) // 2024-02-15
	otid       = "2000000001"
	product    = "com.yuyin.premium.monthly"
)

type harness struct {
	h      *NotificationHandler
	signer *appletest.Signer
	subs   *subscription.Service
	inbox  *notify.Inbox
	db     *gorm.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	eventLog := purchase_log.New(gdb, log)
	t.Cleanup(eventLog.Flush)

	cfg := &config.Config{Plans: config.DefaultPlans()}
	cfg.AppleIAP.BundleID = "com.yuyin.app"
	signer := appletest.NewSigner(t)
	subs := subscription.NewService(gdb, log, nil).WithClock(func() time.Time {
		return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	})
	inbox := notify.NewInbox(log, 10)
	h := NewNotificationHandler(cfg, subs, catalog.New(cfg), eventLog, inbox, nil, log).
		WithDecoder(func(p string) (*apple_notification.AppStoreServerNotification, error) {
			return apple_notification.NewWithRoot(p, signer.RootPEM)
		})
	return &harness{h: h, signer: signer, subs: subs, inbox: inbox, db: gdb}
}

func (x *harness) payload(t *testing.T, typ, subtype, accountToken string, autoRenew int32) string {
	return x.signer.Sign(t, &apple_notification.NotificationPayload{
		NotificationType: typ,
		Subtype:          subtype,
		Data: apple_notification.NotificationData{
			BundleID: "com.yuyin.app",
			SignedTransactionInfo: x.signer.Sign(t, &apple_notification.TransactionInfo{
				AppAccountToken:       accountToken,
				BundleID:              "com.yuyin.app",
				OriginalTransactionID: otid,
				TransactionID:         otid,
				ProductID:             product,
				PurchaseDate:          purchaseMS,
				ExpiresDate:           expiresMS,
			}),
			SignedRenewalInfo: x.signer.Sign(t, &apple_notification.RenewalInfo{
				OriginalTransactionID: otid,
				ProductID:             product,
				AutoRenewStatus:       autoRenew,
			}),
		},
	})
}

func (x *harness) record(t *testing.T) *models.UserSubscription {
	t.Helper()
	var rec models.UserSubscription
	require.NoError(t, x.db.Where("user_id = ? AND original_transaction_id = ?", "a1", otid).First(&rec).Error)
	return &rec
}

func TestHandleApple_Lifecycle(t *testing.T) {
	x := newHarness(t)
	ctx := context.Background()
	token, err := apple_iap.AccountToken("a1")
	require.NoError(t, err)

	res, err := x.h.HandleApple(ctx, x.payload(t, apple_notification.NotificationTypeSubscribed, "", token, 1))
	require.NoError(t, err)
	require.Equal(t, ActionGranted, res.Action)
	require.Equal(t, []string{"a1"}, res.UserIDs)
	rec := x.record(t)
	require.Equal(t, types.SubscriptionStatusActive, rec.Status)
	require.Equal(t, "basic_monthly", rec.PlanID)
	require.True(t, rec.EndDate.Equal(time.UnixMilli(expiresMS)))
	require.True(t, rec.AutoRenew)
	require.True(t, x.subs.IsPremium("a1"))

	res, err = x.h.HandleApple(ctx, x.payload(t, apple_notification.NotificationTypeDidChangeRenewalStatus, apple_notification.SubtypeAutoRenewDisabled, token, 0))
	require.NoError(t, err)
	require.Equal(t, ActionRenewalOff, res.Action)
	require.False(t, x.record(t).AutoRenew)

	res, err = x.h.HandleApple(ctx, x.payload(t, apple_notification.NotificationTypeRefund, "", token, 0))
	require.NoError(t, err)
	require.Equal(t, ActionCancelled, res.Action)
	require.Equal(t, types.SubscriptionStatusCancelled, x.record(t).Status)
	require.False(t, x.subs.IsPremium("a1"))
	require.Equal(t, "Subscription Ended", x.inbox.Drain("a1")[0].Title)
}

func TestHandleApple_ExpiredFoundByTransaction(t *testing.T) {
	x := newHarness(t)
	ctx := context.Background()
	token, err := apple_iap.AccountToken("a1")
	require.NoError(t, err)

	_, err = x.h.HandleApple(ctx, x.payload(t, apple_notification.NotificationTypeSubscribed, "", token, 1))
	require.NoError(t, err)

	// The record is found through its transaction even without a token.
	res, err := x.h.HandleApple(ctx, x.payload(t, apple_notification.NotificationTypeExpired, "", "", 0))
	require.NoError(t, err)
	require.Equal(t, ActionExpired, res.Action)
	require.Equal(t, types.SubscriptionStatusExpired, x.record(t).Status)
}

func TestHandleApple_UnknownTransactionIgnored(t *testing.T) {
	x := newHarness(t)
	res, err := x.h.HandleApple(context.Background(), x.payload(t, apple_notification.NotificationTypeExpired, "", "", 0))
	require.NoError(t, err)
	require.Equal(t, ActionIgnored, res.Action)

	res, err = x.h.HandleApple(context.Background(), x.payload(t, apple_notification.NotificationTypeSubscribed, "", "", 1))
	require.NoError(t, err)
	require.Equal(t, ActionIgnored, res.Action)
}

func TestHandleApple_TestNotification(t *testing.T) {
	x := newHarness(t)
	res, err := x.h.HandleApple(context.Background(), x.signer.Sign(t, &apple_notification.NotificationPayload{
		NotificationType: apple_notification.NotificationTypeTest,
	}))
	require.NoError(t, err)
	require.Equal(t, ActionNone, res.Action)
}

func TestHandleApple_Rejections(t *testing.T) {
	x := newHarness(t)
	other := appletest.NewSigner(t)
	_, err := x.h.HandleApple(context.Background(), other.Sign(t, &apple_notification.NotificationPayload{
		NotificationType: apple_notification.NotificationTypeTest,
	}))
	require.Error(t, err)

	payload := x.signer.Sign(t, &apple_notification.NotificationPayload{
		NotificationType: apple_notification.NotificationTypeSubscribed,
		Data: apple_notification.NotificationData{
			SignedTransactionInfo: x.signer.Sign(t, &apple_notification.TransactionInfo{
				BundleID:              "com.other.app",
				OriginalTransactionID: otid,
				ProductID:             product,
			}),
		},
	})
	_, err = x.h.HandleApple(context.Background(), payload)
	require.ErrorIs(t, err, ErrBundleMismatch)
}

func TestAppleNotificationParser_GetUserID_EmptyToken(t *testing.T) {
	p := &AppleNotificationParser{
		Notification: &apple_notification.AppStoreServerNotification{
			TransactionInfo: &apple_notification.TransactionInfo{},
		},
	}
	_, err := p.GetUserID(context.Background())
	require.ErrorContains(t, err, "app account token is empty")
	require.True(t, p.AutoRenew())
}
