package apple_iap

import (
	"context"
	"errors"
	"fmt"

	"github.com/awa/go-iap/appstore"
)

type Options struct {
	SharedSecret string
	Sandbox      bool
}

// ReceiptVerifier is the part of appstore.Client used here.
type ReceiptVerifier interface {
	Verify(ctx context.Context, reqBody appstore.IAPRequest, result interface{}) error
}

// ReceiptInfo is one transaction of a verifyReceipt response. Dates are
// milliseconds since the epoch, as strings.
type ReceiptInfo struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDateMS        string `json:"purchase_date_ms"`
	ExpiresDateMS         string `json:"expires_date_ms"`
	CancellationDateMS    string `json:"cancellation_date_ms,omitempty"`
	AppAccountToken       string `json:"app_account_token,omitempty"`
	InAppOwnershipType    string `json:"in_app_ownership_type,omitempty"`
}

type PendingRenewalInfo struct {
	ProductID             string `json:"product_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	AutoRenewStatus       string `json:"auto_renew_status"`
}

type Receipt struct {
	BundleID string         `json:"bundle_id"`
	InApp    []*ReceiptInfo `json:"in_app"`
}

// ReceiptResponse is the verifyReceipt body, limited to what entitlement
// checks read.
type ReceiptResponse struct {
	Status             int                   `json:"status"`
	Environment        string                `json:"environment"`
	Receipt            Receipt               `json:"receipt"`
	LatestReceiptInfo  []*ReceiptInfo        `json:"latest_receipt_info"`
	PendingRenewalInfo []*PendingRenewalInfo `json:"pending_renewal_info"`
}

// Client verifies App Store receipts through the verifyReceipt endpoint.
type Client struct {
	verifier     ReceiptVerifier
	sharedSecret string
}

func NewClient(opts *Options) (*Client, error) {
	if opts == nil {
		return nil, errors.New("opts is nil")
	}
	client := appstore.New()
	if opts.Sandbox {
		client.ProductionURL = client.SandboxURL
	}
	return NewClientWithVerifier(client, opts.SharedSecret), nil
}

func NewClientWithVerifier(v ReceiptVerifier, sharedSecret string) *Client {
	return &Client{verifier: v, sharedSecret: sharedSecret}
}

// VerifyReceipt returns the decoded receipt. A non-zero App Store status is
// returned together with the response, as an error wrapping
// appstore.HandleError.
func (c *Client) VerifyReceipt(ctx context.Context, receiptData string) (*ReceiptResponse, error) {
	var result ReceiptResponse
	err := c.verifier.Verify(ctx, appstore.IAPRequest{
		ReceiptData:            receiptData,
		Password:               c.sharedSecret,
		ExcludeOldTransactions: true,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to verify receipt: %w", err)
	}
	if err := appstore.HandleError(result.Status); err != nil {
		return &result, fmt.Errorf("receipt status %d: %w", result.Status, err)
	}
	return &result, nil
}
