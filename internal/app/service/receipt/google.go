package receipt

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/androidpublisher/v3"

	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/types"
)

// Play payment states that mean the money has not arrived yet.
const (
	playPaymentPending         = 0
	playPaymentPendingDeferred = 3
)

type PlaySubscriptionVerifier interface {
	VerifySubscription(ctx context.Context, productID, purchaseToken string) (*androidpublisher.SubscriptionPurchase, error)
}

type GoogleValidator struct {
	client PlaySubscriptionVerifier
}

func NewGoogleValidator(c PlaySubscriptionVerifier) *GoogleValidator {
	return &GoogleValidator{client: c}
}

// Validate looks the purchase token up with the Play Developer API. The
// receipt of an Android purchase is its purchase token.
func (g *GoogleValidator) Validate(ctx context.Context, p *iap.Purchase) (*Verification, error) {
	if p.Receipt == "" {
		return nil, fmt.Errorf("%w: %w", ErrReceiptRejected, ErrEmptyReceipt)
	}
	sp, err := g.client.VerifySubscription(ctx, p.ProductID, p.Receipt)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, fmt.Errorf("%w: empty subscription purchase", ErrReceiptRejected)
	}

	if err := checkOwner(sp.ObfuscatedExternalAccountId, p.UserID, sp.OrderId); err != nil {
		return nil, err
	}

	v := &Verification{
		Platform:              types.PlatformAndroid,
		ProductID:             p.ProductID,
		TransactionID:         sp.OrderId,
		OriginalTransactionID: baseOrderID(sp.OrderId),
		ExpiresAt:             millis(sp.ExpiryTimeMillis),
		AutoRenew:             sp.AutoRenewing,
	}
	if t := millis(sp.StartTimeMillis); t != nil {
		v.PurchaseDate = *t
	} else {
		v.PurchaseDate = p.TransactionDate.UTC()
	}
	if v.OriginalTransactionID == "" {
		v.OriginalTransactionID = p.TransactionID
	}
	if v.ExpiresAt != nil && !v.ExpiresAt.After(v.PurchaseDate) {
		return nil, fmt.Errorf("%w: subscription %s has no paid period", ErrReceiptRejected, v.OriginalTransactionID)
	}
	if sp.PaymentState != nil && (*sp.PaymentState == playPaymentPending || *sp.PaymentState == playPaymentPendingDeferred) {
		v.Pending = true
		return v, ErrPaymentPending
	}
	return v, nil
}

// baseOrderID strips the renewal suffix: GPA.1234-5678..2 becomes GPA.1234-5678.
func baseOrderID(orderID string) string {
	if i := strings.Index(orderID, ".."); i > 0 {
		return orderID[:i]
	}
	return orderID
}
