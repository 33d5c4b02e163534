package notification_handler

import (
	"context"
	"fmt"
	"time"

	"github.com/fatflowers/entitlement/internal/platform/apple/apple_iap"
	"github.com/fatflowers/entitlement/internal/platform/apple/apple_notification"
	"github.com/fatflowers/entitlement/pkg/types"
)

type AppleNotificationParser struct {
	NotificationTime time.Time
	Notification     *apple_notification.AppStoreServerNotification
}

func (p *AppleNotificationParser) GetPlatform(ctx context.Context) types.Platform {
	return types.PlatformIOS
}

func (p *AppleNotificationParser) GetNotificationType(ctx context.Context) (string, string) {
	if p.Notification.Payload == nil {
		return "", ""
	}
	return p.Notification.Payload.NotificationType, p.Notification.Payload.Subtype
}

func (p *AppleNotificationParser) GetNotificationTime(ctx context.Context) time.Time {
	if pl := p.Notification.Payload; pl != nil && pl.SignedDate > 0 {
		return time.UnixMilli(pl.SignedDate).UTC()
	}
	return p.NotificationTime
}

// GetUserID decodes the appAccountToken attached at purchase time.
func (p *AppleNotificationParser) GetUserID(ctx context.Context) (string, error) {
	if p.Notification.TransactionInfo == nil || p.Notification.TransactionInfo.AppAccountToken == "" {
		return "", fmt.Errorf("app account token is empty")
	}
	return apple_iap.UserIDFromAccountToken(p.Notification.TransactionInfo.AppAccountToken)
}

func (p *AppleNotificationParser) GetTransactionID(ctx context.Context) string {
	if p.Notification.TransactionInfo == nil {
		return ""
	}
	return p.Notification.TransactionInfo.OriginalTransactionID
}

func (p *AppleNotificationParser) GetProductID(ctx context.Context) string {
	if p.Notification.TransactionInfo == nil {
		return ""
	}
	return p.Notification.TransactionInfo.ProductID
}

func (p *AppleNotificationParser) GetData(ctx context.Context) any {
	return p.Notification
}

// AutoRenew reports the renewal status, true when the notification carries
// no renewal info.
func (p *AppleNotificationParser) AutoRenew() bool {
	if p.Notification.RenewalInfo == nil {
		return true
	}
	// https://developer.apple.com/documentation/appstoreserverapi/autorenewstatus
	return p.Notification.RenewalInfo.AutoRenewStatus == 1
}

func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// NewAppleNotificationParser verifies and decodes signedPayload.
func NewAppleNotificationParser(decode Decoder, signedPayload string, notificationTime time.Time) (*AppleNotificationParser, error) {
	if notificationTime.IsZero() {
		notificationTime = time.Now().UTC()
	}
	notification, err := decode(signedPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to verify notification: %w", err)
	}
	return &AppleNotificationParser{
		NotificationTime: notificationTime,
		Notification:     notification,
	}, nil
}
