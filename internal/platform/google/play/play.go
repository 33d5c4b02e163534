// Package play verifies Google Play subscription purchase tokens.
package play

import (
	"context"
	"errors"
	"fmt"

	"github.com/awa/go-iap/playstore"
	"google.golang.org/api/androidpublisher/v3"
)

// SubscriptionVerifier is the part of playstore.Client used here.
type SubscriptionVerifier interface {
	VerifySubscription(ctx context.Context, packageName string, subscriptionID string, token string) (*androidpublisher.SubscriptionPurchase, error)
}

type Client struct {
	verifier    SubscriptionVerifier
	packageName string
}

// NewClient builds a client from a service account key with the
// androidpublisher scope.
func NewClient(packageName string, serviceAccountJSON []byte) (*Client, error) {
	if packageName == "" {
		return nil, errors.New("google play package name is empty")
	}
	c, err := playstore.New(serviceAccountJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create play store client: %w", err)
	}
	return NewClientWithVerifier(c, packageName), nil
}

func NewClientWithVerifier(v SubscriptionVerifier, packageName string) *Client {
	return &Client{verifier: v, packageName: packageName}
}

func (c *Client) PackageName() string { return c.packageName }

func (c *Client) VerifySubscription(ctx context.Context, productID, purchaseToken string) (*androidpublisher.SubscriptionPurchase, error) {
	sp, err := c.verifier.VerifySubscription(ctx, c.packageName, productID, purchaseToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify subscription %s: %w", productID, err)
	}
	return sp, nil
}
