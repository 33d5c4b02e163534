package models

import (
	"time"

	"github.com/fatflowers/entitlement/pkg/types"

	"gorm.io/datatypes"
)

// SubscriptionLog records every status change of a UserSubscription.
// Use case: troubleshooting and support.
type SubscriptionLog struct {
	ID             string                         `gorm:"column:id;type:uuid;primaryKey"`
	UserID         string                         `gorm:"column:user_id;type:varchar(64);index:idx_subscription_log_user,priority:1;not null"`
	SubscriptionID string                         `gorm:"column:subscription_id;type:uuid;index"`
	Reason         types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// Before and After hold the record around the change; Before is null on creation.
	Before    datatypes.JSONType[*UserSubscription] `gorm:"column:before;type:jsonb;default:'null'"`
	After     datatypes.JSONType[*UserSubscription] `gorm:"column:after;type:jsonb;default:'null'"`
	Extra     datatypes.JSONMap                     `gorm:"column:extra;type:jsonb;default:'{}'"`
	CreatedAt time.Time                             `gorm:"index:idx_subscription_log_user,priority:2"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
