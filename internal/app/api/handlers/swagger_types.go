package handlers

import (
	"github.com/fatflowers/entitlement/internal/app/service/gate"
	nh "github.com/fatflowers/entitlement/internal/app/service/notification_handler"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	"github.com/fatflowers/entitlement/internal/app/service/statistics"
	subsvc "github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/app/service/usage"
	"github.com/fatflowers/entitlement/internal/models"
	"github.com/fatflowers/entitlement/pkg/response"
	"github.com/fatflowers/entitlement/pkg/types"
)

// Envelope types below exist only for swagger documentation; handlers
// build the same shape with response.OKT.

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespPlans struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    []*types.SubscriptionPlan `json:"data"`
}

type RespStatus struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    subsvc.Status            `json:"data"`
}

type RespSubscriptions struct {
	Code    response.APIResponseCode   `json:"code"`
	Message string                     `json:"message"`
	Data    []*models.UserSubscription `json:"data"`
}

type RespScanSubscriptions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    subsvc.ScanResponse      `json:"data"`
}

type RespCancel struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    purchase.CancelInstructions `json:"data"`
}

type RespPurchaseRequest struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PurchaseRequestResponse  `json:"data"`
}

type RespPendingRequest struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PendingRequestResponse   `json:"data"`
}

type RespAttempt struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    purchase.Attempt         `json:"data"`
}

type RespPurchaseEvent struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PurchaseEventResponse    `json:"data"`
}

type RespRestore struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    purchase.RestoreResult   `json:"data"`
}

type RespFinished struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    FinishedResponse         `json:"data"`
}

type RespUsage struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    usage.Snapshot           `json:"data"`
}

type RespGate struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    gate.Result              `json:"data"`
}

type RespUsageGate struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    gate.UsageResult         `json:"data"`
}

type RespNotifications struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []*notify.Notification   `json:"data"`
}

type RespStatistics struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Response      `json:"data"`
}

type RespWebhook struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    nh.Result                `json:"data"`
}
