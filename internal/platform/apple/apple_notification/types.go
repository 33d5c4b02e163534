package apple_notification

// AppStoreServerRequest is the body Apple POSTs to the notification URL.
type AppStoreServerRequest struct {
	SignedPayload string `json:"signedPayload" binding:"required"`
}

type NotificationHeader struct {
	Alg string   `json:"alg"`
	X5c []string `json:"x5c"`
}

// Notification types handled by the entitlement engine.
// https://developer.apple.com/documentation/appstoreservernotifications/notificationtype
const (
	NotificationTypeTest                   = "TEST"
	NotificationTypeSubscribed             = "SUBSCRIBED"
	NotificationTypeDidRenew               = "DID_RENEW"
	NotificationTypeExpired                = "EXPIRED"
	NotificationTypeDidChangeRenewalStatus = "DID_CHANGE_RENEWAL_STATUS"
	NotificationTypeRefund                 = "REFUND"
	NotificationTypeRevoke                 = "REVOKE"
	NotificationTypeGracePeriodExpired     = "GRACE_PERIOD_EXPIRED"
	SubtypeAutoRenewDisabled               = "AUTO_RENEW_DISABLED"
	SubtypeAutoRenewEnabled                = "AUTO_RENEW_ENABLED"
	EnvironmentSandbox                     = "Sandbox"
)

type NotificationData struct {
	AppAppleID            int64  `json:"appAppleId"`
	BundleID              string `json:"bundleId"`
	BundleVersion         string `json:"bundleVersion"`
	Environment           string `json:"environment"`
	SignedTransactionInfo string `json:"signedTransactionInfo"`
	SignedRenewalInfo     string `json:"signedRenewalInfo"`
	Status                int32  `json:"status"`
}

type NotificationPayload struct {
	NotificationType string           `json:"notificationType"`
	Subtype          string           `json:"subtype"`
	NotificationUUID string           `json:"notificationUUID"`
	Version          string           `json:"version"`
	SignedDate       int64            `json:"signedDate"`
	Data             NotificationData `json:"data"`
}

// Valid satisfies jwt.Claims; the payload carries no registered claims.
func (NotificationPayload) Valid() error { return nil }

// TransactionInfo is the decoded signedTransactionInfo. Dates are unix millis.
type TransactionInfo struct {
	AppAccountToken       string  `json:"appAccountToken"`
	BundleID              string  `json:"bundleId"`
	Currency              string  `json:"currency"`
	Environment           string  `json:"environment"`
	ExpiresDate           int64   `json:"expiresDate"`
	OriginalPurchaseDate  int64   `json:"originalPurchaseDate"`
	OriginalTransactionID string  `json:"originalTransactionId"`
	Price                 float64 `json:"price"`
	ProductID             string  `json:"productId"`
	PurchaseDate          int64   `json:"purchaseDate"`
	RevocationDate        int64   `json:"revocationDate"`
	RevocationReason      *int32  `json:"revocationReason"`
	SignedDate            int64   `json:"signedDate"`
	TransactionID         string  `json:"transactionId"`
	Type                  string  `json:"type"`
}

func (TransactionInfo) Valid() error { return nil }

// RenewalInfo is the decoded signedRenewalInfo.
type RenewalInfo struct {
	AutoRenewProductID    string `json:"autoRenewProductId"`
	AutoRenewStatus       int32  `json:"autoRenewStatus"`
	ExpirationIntent      int32  `json:"expirationIntent"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	RenewalDate           int64  `json:"renewalDate"`
	SignedDate            int64  `json:"signedDate"`
}

func (RenewalInfo) Valid() error { return nil }

// AppStoreServerNotification is a verified, decoded notification.
type AppStoreServerNotification struct {
	appleRootCert      string
	Payload            *NotificationPayload
	TransactionInfo    *TransactionInfo
	RenewalInfo        *RenewalInfo
	IsValid            bool
	IsTestNotification bool
	IsSandbox          bool
}
