package notification_handler

import (
	"context"
	"time"

	"github.com/fatflowers/entitlement/pkg/types"
)

// NotificationParser exposes the fields of a store server notification the
// handler needs, independent of the store.
type NotificationParser interface {
	GetPlatform(ctx context.Context) types.Platform
	GetNotificationType(ctx context.Context) (string, string)
	GetNotificationTime(ctx context.Context) time.Time
	GetUserID(ctx context.Context) (string, error)
	GetTransactionID(ctx context.Context) string
	GetProductID(ctx context.Context) string
	GetData(ctx context.Context) any
}
