package receipt

import (
	"context"
	"fmt"
	"net/url"

	"github.com/awa/go-iap/appstore/api"

	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/types"
)

// AppleTransactionAPI is the part of api.StoreClient used here.
type AppleTransactionAPI interface {
	GetTransactionInfo(ctx context.Context, transactionID string) (*api.TransactionInfoResponse, error)
	ParseSignedTransaction(transaction string) (*api.JWSTransaction, error)
	GetALLSubscriptionStatuses(ctx context.Context, originalTransactionID string, query *url.Values) (*api.StatusResponse, error)
	ParseJWSEncodeString(jwsEncode string) (interface{}, error)
}

// AppleServerValidator looks the transaction up with the App Store Server
// API instead of trusting the receipt the device sent.
type AppleServerValidator struct {
	client AppleTransactionAPI
	isProd bool
}

func NewAppleServerValidator(c AppleTransactionAPI, isProd bool) *AppleServerValidator {
	return &AppleServerValidator{client: c, isProd: isProd}
}

func (a *AppleServerValidator) Validate(ctx context.Context, p *iap.Purchase) (*Verification, error) {
	if p.Receipt == "" {
		return nil, fmt.Errorf("%w: %w", ErrReceiptRejected, ErrEmptyReceipt)
	}
	info, err := a.client.GetTransactionInfo(ctx, p.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction info: %w", err)
	}
	tx, err := a.client.ParseSignedTransaction(info.SignedTransactionInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse signed transaction: %w", ErrReceiptRejected, err)
	}

	if a.isProd && tx.Environment != api.Production {
		return nil, fmt.Errorf("%w: transaction %s is not in the production environment", ErrReceiptRejected, tx.TransactionID)
	}
	if tx.Type != api.AutoRenewable {
		return nil, fmt.Errorf("%w: unsupported transaction type %s", ErrReceiptRejected, tx.Type)
	}
	if tx.RevocationDate > 0 {
		return nil, fmt.Errorf("%w: transaction %s was revoked", ErrReceiptRejected, tx.TransactionID)
	}
	if tx.ExpiresDate <= 0 {
		return nil, fmt.Errorf("%w: transaction %s has no expiry", ErrReceiptRejected, tx.TransactionID)
	}
	if err := checkOwner(tx.AppAccountToken, p.UserID, tx.TransactionID); err != nil {
		return nil, err
	}

	v := &Verification{
		Platform:              types.PlatformIOS,
		ProductID:             tx.ProductID,
		TransactionID:         tx.TransactionID,
		OriginalTransactionID: tx.OriginalTransactionId,
		ExpiresAt:             millis(int64(tx.ExpiresDate)),
	}
	if t := millis(int64(tx.PurchaseDate)); t != nil {
		v.PurchaseDate = *t
	} else {
		v.PurchaseDate = p.TransactionDate.UTC()
	}
	if v.OriginalTransactionID == "" {
		v.OriginalTransactionID = tx.TransactionID
	}

	autoRenew, err := a.autoRenew(ctx, tx)
	if err != nil {
		return nil, err
	}
	v.AutoRenew = autoRenew
	return v, nil
}

// autoRenew reads the renewal info of the transaction's subscription group.
func (a *AppleServerValidator) autoRenew(ctx context.Context, tx *api.JWSTransaction) (bool, error) {
	statuses, err := a.client.GetALLSubscriptionStatuses(ctx, tx.TransactionID, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get subscription status: %w", err)
	}
	for _, group := range statuses.Data {
		if group.SubscriptionGroupIdentifier != tx.SubscriptionGroupIdentifier {
			continue
		}
		for _, last := range group.LastTransactions {
			value, err := a.client.ParseJWSEncodeString(last.SignedRenewalInfo)
			if err != nil {
				return false, fmt.Errorf("failed to parse signed renewal info: %w", err)
			}
			renewal, ok := value.(*api.JWSRenewalInfoDecodedPayload)
			if !ok {
				continue
			}
			if renewal.ProductId == tx.ProductID && renewal.AutoRenewStatus == api.AutoRenewStatusOn {
				return true, nil
			}
		}
	}
	return false, nil
}
