package apple_notification

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt"
)

const appleRootCAG3RootPem = `-----BEGIN CERTIFICATE-----
MIICQzCCAcmgAwIBAgIILcX8iNLFS5UwCgYIKoZIzj0EAwMwZzEbMBkGA1UEAwwS
QXBwbGUgUm9vdCBDQSAtIEczMSYwJAYDVQQLDB1BcHBsZSBDZXJ0aWZpY2F0aW9u
IEF1dGhvcml0eTETMBEGA1UECgwKQXBwbGUgSW5jLjELMAkGA1UEBhMCVVMwHhcN
MTQwNDMwMTgxOTA2WhcNMzkwNDMwMTgxOTA2WjBnMRswGQYDVQQDDBJBcHBsZSBS
b290IENBIC0gRzMxJjAkBgNVBAsMHUFwcGxlIENlcnRpZmljYXRpb24gQXV0aG9y
aXR5MRMwEQYDVQQKDApBcHBsZSBJbmMuMQswCQYDVQQGEwJVUzB2MBAGByqGSM49
AgEGBSuBBAAiA2IABJjpLz1AcqTtkyJygRMc3RCV8cWjTnHcFBbZDuWmBSp3ZHtf
TjjTuxxEtX/1H7YyYl3J6YRbTzBPEVoA/VhYDKX1DyxNB0cTddqXl5dvMVztK517
IDvYuVTZXpmkOlEKMaNCMEAwHQYDVR0OBBYEFLuw3qFYM4iapIqZ3r6966/ayySr
MA8GA1UdEwEB/wQFMAMBAf8wDgYDVR0PAQH/BAQDAgEGMAoGCCqGSM49BAMDA2gA
MGUCMQCD6cHEFl4aXTQY2e3v9GwOAEZLuN+yRhHFD/3meoyhpmvOwgPUnPWTxnS4
at+qIxUCMG1mihDK1A3UT82NQz60imOlM27jbdoXt2QfyFMm+YhidDkLF1vLUagM
6BgD56KyKA==
-----END CERTIFICATE-----`

// New verifies a signedPayload against the Apple Root CA G3 and decodes the
// nested transaction and renewal info.
func New(payload string) (*AppStoreServerNotification, error) {
	return NewWithRoot(payload, appleRootCAG3RootPem)
}

// NewWithRoot is New with a caller supplied root certificate (PEM).
func NewWithRoot(payload, rootPEM string) (*AppStoreServerNotification, error) {
	asn := &AppStoreServerNotification{appleRootCert: rootPEM}
	if err := asn.parseJwtSignedPayload(payload); err != nil {
		return nil, err
	}
	return asn, nil
}

func extractCertificates(payload string) ([]*x509.Certificate, error) {
	parts := strings.Split(payload, ".")
	if len(parts) != 3 {
		return nil, errors.New("signed payload is not a JWS")
	}
	headerByte, err := jwt.DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode jws header: %w", err)
	}
	var header NotificationHeader
	if err := json.Unmarshal(headerByte, &header); err != nil {
		return nil, fmt.Errorf("failed to unmarshal jws header: %w", err)
	}
	if len(header.X5c) < 2 {
		return nil, errors.New("x5c header must carry the leaf and intermediate certificates")
	}
	certs := make([]*x509.Certificate, 0, len(header.X5c))
	for i, raw := range header.X5c {
		der, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("x5c[%d]: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("x5c[%d]: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// verifiedPublicKey checks that the x5c leaf chains to the trusted root
// through the intermediate and returns the leaf's key.
func (asn *AppStoreServerNotification) verifiedPublicKey(payload string) (*ecdsa.PublicKey, error) {
	certs, err := extractCertificates(payload)
	if err != nil {
		return nil, err
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM([]byte(asn.appleRootCert)) {
		return nil, errors.New("root certificate couldn't be parsed")
	}
	intermediates := x509.NewCertPool()
	intermediates.AddCert(certs[1])

	leaf := certs[0]
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("certificate chain rejected: %w", err)
	}
	pk, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("appstore public key must be of type ecdsa.PublicKey")
	}
	return pk, nil
}

func (asn *AppStoreServerNotification) parseSigned(payload string, claims jwt.Claims) error {
	key, err := asn.verifiedPublicKey(payload)
	if err != nil {
		return err
	}
	_, err = jwt.ParseWithClaims(payload, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	return err
}

func (asn *AppStoreServerNotification) parseJwtSignedPayload(payload string) error {
	notificationPayload := &NotificationPayload{}
	if err := asn.parseSigned(payload, notificationPayload); err != nil {
		return fmt.Errorf("signed payload: %w", err)
	}
	asn.Payload = notificationPayload
	asn.IsTestNotification = notificationPayload.NotificationType == NotificationTypeTest
	asn.IsSandbox = notificationPayload.Data.Environment == EnvironmentSandbox

	if asn.IsTestNotification {
		asn.IsValid = true
		return nil
	}

	transactionInfo := &TransactionInfo{}
	if err := asn.parseSigned(notificationPayload.Data.SignedTransactionInfo, transactionInfo); err != nil {
		return fmt.Errorf("signed transaction info: %w", err)
	}
	asn.TransactionInfo = transactionInfo

	if notificationPayload.Data.SignedRenewalInfo != "" {
		renewalInfo := &RenewalInfo{}
		if err := asn.parseSigned(notificationPayload.Data.SignedRenewalInfo, renewalInfo); err != nil {
			return fmt.Errorf("signed renewal info: %w", err)
		}
		asn.RenewalInfo = renewalInfo
	}

	asn.IsValid = true
	return nil
}
