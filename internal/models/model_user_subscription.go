package models

import (
	"errors"
	"time"

	"github.com/fatflowers/entitlement/pkg/types"
)

var ErrInvalidWindow = errors.New("subscription end_date must be after start_date")

// UserSubscription is the entitlement record of one purchase.
// (user_id, original_transaction_id) is the upsert key; at most one row per
// user may be active, enforced by a partial unique index.
type UserSubscription struct {
	ID                    string                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID                string                   `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:uniq_user_transaction,priority:1;uniqueIndex:uniq_user_active,where:status = 'active'" json:"user_id"`
	PlanID                string                   `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	Status                types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	StartDate             time.Time                `gorm:"column:start_date;not null" json:"start_date"`
	EndDate               time.Time                `gorm:"column:end_date;not null" json:"end_date"`
	AutoRenew             bool                     `gorm:"column:auto_renew;not null;default:false" json:"auto_renew"`
	Platform              types.Platform           `gorm:"column:platform;type:varchar(16);not null" json:"platform"`
	OriginalTransactionID string                   `gorm:"column:original_transaction_id;type:varchar(128);not null;uniqueIndex:uniq_user_transaction,priority:2" json:"original_transaction_id"`
	// ReceiptData is the opaque store receipt (iOS) or purchase token (Android).
	ReceiptData string    `gorm:"column:receipt_data;type:text" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (UserSubscription) TableName() string {
	return "user_subscriptions"
}

func (s *UserSubscription) Validate() error {
	if s == nil {
		return errors.New("nil subscription")
	}
	if s.UserID == "" || s.OriginalTransactionID == "" {
		return errors.New("subscription requires user_id and original_transaction_id")
	}
	if !s.Status.Valid() {
		return errors.New("invalid subscription status: " + string(s.Status))
	}
	if !s.EndDate.After(s.StartDate) {
		return ErrInvalidWindow
	}
	return nil
}

// ActiveAt reports whether the record grants entitlement at t.
func (s *UserSubscription) ActiveAt(t time.Time) bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		s.EndDate.After(t)
}
