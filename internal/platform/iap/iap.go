// Package iap is the boundary to the platform store billing API. The purchase
// controller consumes purchase events from Platform.Events and never talks to
// a store directly.
package iap

import (
	"context"
	"time"

	"github.com/fatflowers/entitlement/pkg/types"
)

type Product struct {
	ProductID      string         `json:"product_id"`
	Platform       types.Platform `json:"platform"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	LocalizedPrice string         `json:"localized_price"`
	Currency       string         `json:"currency"`
}

type SubscriptionRequest struct {
	UserID    string         `json:"user_id"`
	Platform  types.Platform `json:"platform"`
	ProductID string         `json:"product_id"`
	// AccountToken is the appAccountToken of iOS purchases and the obfuscated
	// account id of Play purchases. Empty when the user id has no token form.
	AccountToken string    `json:"account_token,omitempty"`
	OfferToken   string    `json:"offer_token,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

// Purchase is a store transaction as reported by the device.
// TransactionID is the original transaction id on iOS and the purchase
// token's order id on Android; Receipt is the App Store receipt or the Play
// purchase token.
type Purchase struct {
	UserID          string         `json:"user_id"`
	Platform        types.Platform `json:"platform"`
	ProductID       string         `json:"product_id" binding:"required"`
	TransactionID   string         `json:"transaction_id" binding:"required"`
	TransactionDate time.Time      `json:"transaction_date"`
	Receipt         string         `json:"transaction_receipt"`
}

const (
	ErrorCodeUserCancelled = "user_cancelled"
	ErrorCodeNetwork       = "network_error"
	ErrorCodeUnknown       = "unknown"
)

type PurchaseError struct {
	UserID    string `json:"user_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"product_id,omitempty"`
}

func (e *PurchaseError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

type EventKind string

const (
	EventPurchaseUpdated EventKind = "purchase_updated"
	EventPurchaseError   EventKind = "purchase_error"
)

// Event is one notification from the billing API. Consumers call Done exactly
// once with the handling outcome.
type Event struct {
	Kind     EventKind
	Purchase *Purchase
	Error    *PurchaseError
	reply    chan error
}

func NewEvent(kind EventKind, p *Purchase, perr *PurchaseError) *Event {
	return &Event{Kind: kind, Purchase: p, Error: perr, reply: make(chan error, 1)}
}

func (e *Event) Done(err error) {
	if e.reply == nil {
		return
	}
	select {
	case e.reply <- err:
	default:
	}
}

// Wait blocks until Done is called or ctx ends.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case err := <-e.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Platform interface {
	InitConnection(ctx context.Context) error
	EndConnection(ctx context.Context) error
	GetSubscriptions(ctx context.Context, productIDs []string) ([]*Product, error)
	RequestSubscription(ctx context.Context, req *SubscriptionRequest) error
	GetAvailablePurchases(ctx context.Context, userID string) ([]*Purchase, error)
	FinishTransaction(ctx context.Context, p *Purchase) error
	Events() <-chan *Event
}
