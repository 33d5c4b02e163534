package receipt

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/fatflowers/entitlement/internal/platform/apple/apple_iap"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/types"
)

type AppleReceiptVerifier interface {
	VerifyReceipt(ctx context.Context, receiptData string) (*apple_iap.ReceiptResponse, error)
}

type AppleValidator struct {
	client AppleReceiptVerifier
	// bundleID is the app the receipt must belong to. Empty accepts any app.
	bundleID string
}

func NewAppleValidator(c AppleReceiptVerifier, bundleID string) *AppleValidator {
	return &AppleValidator{client: c, bundleID: bundleID}
}

// Validate verifies the receipt with the App Store and picks the latest
// transaction of the purchased product.
func (a *AppleValidator) Validate(ctx context.Context, p *iap.Purchase) (*Verification, error) {
	if p.Receipt == "" {
		return nil, fmt.Errorf("%w: %w", ErrReceiptRejected, ErrEmptyReceipt)
	}
	resp, err := a.client.VerifyReceipt(ctx, p.Receipt)
	if err != nil {
		if resp != nil {
			// The App Store answered with a non-zero status.
			return nil, fmt.Errorf("%w: %w", ErrReceiptRejected, err)
		}
		return nil, err
	}
	if a.bundleID != "" && resp.Receipt.BundleID != a.bundleID {
		return nil, fmt.Errorf("%w: receipt was issued to bundle %q", ErrReceiptRejected, resp.Receipt.BundleID)
	}

	infos := resp.LatestReceiptInfo
	if len(infos) == 0 {
		infos = resp.Receipt.InApp
	}
	var (
		latest   *apple_iap.ReceiptInfo
		latestMS int64
	)
	for _, info := range infos {
		if info == nil || info.ProductID != p.ProductID {
			continue
		}
		ms, _ := strconv.ParseInt(info.ExpiresDateMS, 10, 64)
		if latest == nil || ms > latestMS {
			latest, latestMS = info, ms
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: product %s not found in receipt", ErrReceiptRejected, p.ProductID)
	}
	if latest.CancellationDateMS != "" {
		return nil, fmt.Errorf("%w: transaction %s was refunded", ErrReceiptRejected, latest.TransactionID)
	}
	if err := checkOwner(latest.AppAccountToken, p.UserID, latest.TransactionID); err != nil {
		return nil, err
	}

	purchasedMS, _ := strconv.ParseInt(latest.PurchaseDateMS, 10, 64)
	v := &Verification{
		Platform:              types.PlatformIOS,
		ProductID:             latest.ProductID,
		TransactionID:         latest.TransactionID,
		OriginalTransactionID: latest.OriginalTransactionID,
		ExpiresAt:             millis(latestMS),
	}
	if t := millis(purchasedMS); t != nil {
		v.PurchaseDate = *t
	} else {
		v.PurchaseDate = p.TransactionDate.UTC()
	}
	if v.OriginalTransactionID == "" {
		v.OriginalTransactionID = p.TransactionID
	}
	for _, pending := range resp.PendingRenewalInfo {
		if pending != nil && pending.OriginalTransactionID == v.OriginalTransactionID {
			v.AutoRenew = pending.AutoRenewStatus == "1"
			break
		}
	}
	return v, nil
}

// IsRejected reports whether err is a definitive store rejection rather
// than a transient failure.
func IsRejected(err error) bool { return errors.Is(err, ErrReceiptRejected) }
