package types

import (
	"fmt"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPending   SubscriptionStatus = "pending"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusExpired, SubscriptionStatusCancelled, SubscriptionStatusPending:
		return true
	}
	return false
}

// Platform is the store a purchase originated from.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonPurchase   SubscriptionChangeReason = "purchase"
	SubscriptionChangeReasonRestore    SubscriptionChangeReason = "restore"
	SubscriptionChangeReasonExpire     SubscriptionChangeReason = "expire"
	SubscriptionChangeReasonCancel     SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonSupersede  SubscriptionChangeReason = "supersede"
	SubscriptionChangeReasonRefund     SubscriptionChangeReason = "refund"
	SubscriptionChangeReasonRenewalOff SubscriptionChangeReason = "renewal_off"
)

// BillingPeriod is the renewal cadence of a plan.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// AddTo returns t advanced by one billing period in calendar terms.
// Day overflow normalizes the same way time.AddDate does (Jan 31 + 1 month = Mar 2/3).
func (p BillingPeriod) AddTo(t time.Time) (time.Time, error) {
	switch p {
	case BillingPeriodMonthly:
		return t.AddDate(0, 1, 0), nil
	case BillingPeriodYearly:
		return t.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported billing period: %q", p)
	}
}
