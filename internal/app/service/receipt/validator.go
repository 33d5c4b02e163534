// Package receipt validates store receipts before an entitlement is granted.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/internal/platform/apple/apple_iap"
	"github.com/fatflowers/entitlement/internal/platform/google/play"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/types"
)

var (
	// ErrReceiptRejected means the store does not vouch for the purchase.
	ErrReceiptRejected = errors.New("receipt rejected")
	ErrEmptyReceipt    = errors.New("receipt is empty")
	// ErrPaymentPending is returned with a Verification whose Pending is set.
	ErrPaymentPending = errors.New("payment pending")
)

// Verification is what the store confirmed about a purchase.
type Verification struct {
	Platform              types.Platform `json:"platform"`
	ProductID             string         `json:"product_id"`
	TransactionID         string         `json:"transaction_id"`
	OriginalTransactionID string         `json:"original_transaction_id"`
	PurchaseDate          time.Time      `json:"purchase_date"`
	// ExpiresAt is nil when the store did not report an expiry.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	AutoRenew bool       `json:"auto_renew"`
	Pending   bool       `json:"pending"`
}

type Validator interface {
	Validate(ctx context.Context, p *iap.Purchase) (*Verification, error)
}

// Service routes a purchase to the validator of its platform.
type Service struct {
	validators map[types.Platform]Validator
}

func New(validators map[types.Platform]Validator) *Service {
	return &Service{validators: validators}
}

func (s *Service) Validate(ctx context.Context, p *iap.Purchase) (*Verification, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: purchase is nil", ErrReceiptRejected)
	}
	if p.Receipt == "" {
		return nil, fmt.Errorf("%w: %w", ErrReceiptRejected, ErrEmptyReceipt)
	}
	v, ok := s.validators[p.Platform]
	if !ok || v == nil {
		return nil, fmt.Errorf("receipt validation is not configured for platform %q", p.Platform)
	}
	return v.Validate(ctx, p)
}

func millis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// checkOwner rejects a purchase whose store-side account token belongs to
// someone other than userID. Purchases made without a token pass; the
// purchase flow refuses transactions already held by another account.
func checkOwner(token, userID, transactionID string) error {
	if token == "" || userID == "" {
		return nil
	}
	if !apple_iap.MatchesUser(token, userID) {
		return fmt.Errorf("%w: transaction %s belongs to another account", ErrReceiptRejected, transactionID)
	}
	return nil
}

func newService(cfg *config.Config, log *zap.SugaredLogger) (*Service, error) {
	validators := map[types.Platform]Validator{}

	if cfg.AppleIAP.KeyContent != "" {
		serverClient, err := apple_iap.NewServerClient(&apple_iap.ServerOptions{
			KeyID:      cfg.AppleIAP.KeyID,
			KeyContent: cfg.AppleIAP.KeyContent,
			BundleID:   cfg.AppleIAP.BundleID,
			Issuer:     cfg.AppleIAP.Issuer,
			Sandbox:    !cfg.AppleIAP.IsProd,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init App Store Server API client: %w", err)
		}
		validators[types.PlatformIOS] = NewAppleServerValidator(serverClient, cfg.AppleIAP.IsProd)
	} else {
		appleClient, err := apple_iap.NewClient(&apple_iap.Options{
			SharedSecret: cfg.AppleIAP.SharedSecret,
			Sandbox:      !cfg.AppleIAP.IsProd,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init Apple IAP client: %w", err)
		}
		if cfg.AppleIAP.BundleID == "" {
			log.Warn("apple_iap.bundle_id is empty, receipts from any app will be accepted")
		}
		validators[types.PlatformIOS] = NewAppleValidator(appleClient, cfg.AppleIAP.BundleID)
	}

	if cfg.GooglePlay.ServiceAccountJSON == "" {
		log.Warn("google_play.service_account_json is empty, android receipts cannot be validated")
	} else {
		playClient, err := play.NewClient(cfg.GooglePlay.PackageName, []byte(cfg.GooglePlay.ServiceAccountJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to init Google Play client: %w", err)
		}
		validators[types.PlatformAndroid] = NewGoogleValidator(playClient)
	}
	return New(validators), nil
}

var Module = fx.Options(
	fx.Provide(newService),
)
