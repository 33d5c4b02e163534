package apple_iap

import (
	"errors"

	"github.com/awa/go-iap/appstore/api"
)

// ServerOptions configure the App Store Server API client, which signs its
// requests with an in-app purchase key.
type ServerOptions struct {
	KeyID      string
	KeyContent string
	BundleID   string
	Issuer     string
	Sandbox    bool
}

func NewServerClient(opts *ServerOptions) (*api.StoreClient, error) {
	if opts == nil {
		return nil, errors.New("opts is nil")
	}
	if opts.KeyContent == "" || opts.KeyID == "" || opts.Issuer == "" {
		return nil, errors.New("key_id, key_content and issuer are required")
	}
	return api.NewStoreClient(&api.StoreConfig{
		KeyContent: []byte(opts.KeyContent),
		KeyID:      opts.KeyID,
		BundleID:   opts.BundleID,
		Issuer:     opts.Issuer,
		Sandbox:    opts.Sandbox,
	}), nil
}
