package models

import (
	"time"

	"gorm.io/datatypes"
)

type PurchaseEventLogStatus string

const (
	PurchaseEventLogStatusReceived     PurchaseEventLogStatus = "received"
	PurchaseEventLogStatusHandled      PurchaseEventLogStatus = "handled"
	PurchaseEventLogStatusHandleFailed PurchaseEventLogStatus = "handle_failed"
)

// PurchaseEventLog keeps the raw purchase events and store notifications the
// engine saw, with their outcome.
type PurchaseEventLog struct {
	ID            string                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Source        string                 `gorm:"column:source;type:varchar(64);not null" json:"source"`
	Platform      string                 `gorm:"column:platform;type:varchar(16)" json:"platform"`
	UserID        *string                `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	TraceID       string                 `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	TransactionID string                 `gorm:"column:transaction_id;type:varchar(128);index" json:"transaction_id"`
	EventTime     time.Time              `gorm:"column:event_time" json:"event_time"`
	Data          datatypes.JSON         `gorm:"column:data;type:jsonb" json:"data"`
	Result        *datatypes.JSON        `gorm:"column:result;type:jsonb" json:"result"`
	Status        PurchaseEventLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func (PurchaseEventLog) TableName() string { return "purchase_event_log" }
