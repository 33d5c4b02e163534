// Package appletest signs App Store style JWS payloads with a throwaway
// certificate chain.
package appletest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
)

type Signer struct {
	// RootPEM is the trust anchor to hand to apple_notification.NewWithRoot.
	RootPEM string
	leafKey *ecdsa.PrivateKey
	x5c     []string
}

func NewSigner(t testing.TB) *Signer {
	t.Helper()
	now := time.Now()

	newCert := func(serial int64, name string, isCA bool, parent *x509.Certificate, parentKey *ecdsa.PrivateKey) (*x509.Certificate, *ecdsa.PrivateKey, []byte) {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		tmpl := &x509.Certificate{
			SerialNumber:          big.NewInt(serial),
			Subject:               pkix.Name{CommonName: name},
			NotBefore:             now.Add(-time.Hour),
			NotAfter:              now.Add(24 * time.Hour),
			BasicConstraintsValid: true,
			IsCA:                  isCA,
			KeyUsage:              x509.KeyUsageDigitalSignature,
		}
		if isCA {
			tmpl.KeyUsage |= x509.KeyUsageCertSign
		}
		if parent == nil {
			parent, parentKey = tmpl, key
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, parentKey)
		require.NoError(t, err)
		cert, err := x509.ParseCertificate(der)
		require.NoError(t, err)
		return cert, key, der
	}

	root, rootKey, rootDER := newCert(1, "Test Root CA", true, nil, nil)
	inter, interKey, interDER := newCert(2, "Test Intermediate", true, root, rootKey)
	_, leafKey, leafDER := newCert(3, "Test Signing", false, inter, interKey)

	return &Signer{
		RootPEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER})),
		leafKey: leafKey,
		x5c: []string{
			base64.StdEncoding.EncodeToString(leafDER),
			base64.StdEncoding.EncodeToString(interDER),
			base64.StdEncoding.EncodeToString(rootDER),
		},
	}
}

// Sign returns claims as an ES256 JWS carrying the x5c chain.
func (s *Signer) Sign(t testing.TB, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["x5c"] = s.x5c
	signed, err := tok.SignedString(s.leafKey)
	require.NoError(t, err)
	return signed
}
