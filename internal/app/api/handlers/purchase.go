package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/entitlement/internal/app/api/middleware"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	subsvc "github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/response"
	"github.com/fatflowers/entitlement/pkg/types"
)

const defaultDeliveryTimeout = 30 * time.Second

type PurchaseRequest struct {
	Platform types.Platform `json:"platform" binding:"required"`
	PlanID   string         `json:"plan_id" binding:"required"`
}

type PurchaseRequestResponse struct {
	Dispatched bool             `json:"dispatched"`
	Attempt    purchase.Attempt `json:"attempt"`
}

type PurchaseEventResponse struct {
	Attempt purchase.Attempt `json:"attempt"`
	Status  *subsvc.Status   `json:"status,omitempty"`
}

type ReportProductsRequest struct {
	Products []*iap.Product `json:"products" binding:"required"`
}

type ReportAvailableRequest struct {
	Purchases []*iap.Purchase `json:"purchases"`
}

type PendingRequestResponse struct {
	Request *iap.SubscriptionRequest `json:"request"`
}

type FinishedResponse struct {
	Finished bool `json:"finished"`
}

// PurchaseDeps groups what the purchase endpoints talk to.
type PurchaseDeps struct {
	Controller *purchase.Controller
	Bridge     *iap.Bridge
	Subs       *subsvc.Service
	Config     *config.Config
	Log        *zap.SugaredLogger
}

func (d PurchaseDeps) deliveryContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := defaultDeliveryTimeout
	if d.Config != nil && d.Config.Purchase.DeliveryTimeout > 0 {
		timeout = d.Config.Purchase.DeliveryTimeout
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

// @Summary      Request a subscription purchase
// @Description  Starts a purchase of the plan on the caller's store. The device picks the queued request up from /purchases/pending.
// @Tags         Purchase
// @Accept       json
// @Produce      json
// @Param        request body handlers.PurchaseRequest true "plan to purchase"
// @Success      200  {object}  handlers.RespPurchaseRequest
// @Router       /api/v1/purchases/request [post]
func ApiRequestPurchase(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		userID := mw.UserID(c)
		ok, err := d.Controller.PurchaseSubscription(c.Request.Context(), userID, req.Platform, req.PlanID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(PurchaseRequestResponse{Dispatched: ok, Attempt: d.Controller.Attempt(userID)}))
	}
}

// @Summary      Pending store request
// @Description  Returns and clears the caller's queued subscription request.
// @Tags         Purchase
// @Produce      json
// @Success      200  {object}  handlers.RespPendingRequest
// @Router       /api/v1/purchases/pending [get]
func ApiPendingRequest(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, _ := d.Bridge.PendingRequest(mw.UserID(c))
		c.JSON(http.StatusOK, response.OKT(PendingRequestResponse{Request: req}))
	}
}

// @Summary      Purchase attempt
// @Description  Returns the state of the caller's latest purchase attempt.
// @Tags         Purchase
// @Produce      json
// @Success      200  {object}  handlers.RespAttempt
// @Router       /api/v1/purchases/attempt [get]
func ApiPurchaseAttempt(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(d.Controller.Attempt(mw.UserID(c))))
	}
}

// @Summary      Deliver a purchase update
// @Description  Hands a store transaction to the purchase flow and waits until it is validated and committed.
// @Tags         Purchase
// @Accept       json
// @Produce      json
// @Param        purchase body iap.Purchase true "store transaction"
// @Success      200  {object}  handlers.RespPurchaseEvent
// @Router       /api/v1/purchases/events [post]
func ApiDeliverPurchase(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p iap.Purchase
		if err := c.ShouldBindJSON(&p); err != nil {
			badRequest(c, err.Error())
			return
		}
		if !p.Platform.Valid() {
			badRequest(c, "unsupported platform: "+string(p.Platform))
			return
		}
		userID := mw.UserID(c)
		p.UserID = userID

		ctx, cancel := d.deliveryContext(c)
		defer cancel()
		// A pending payment is a valid outcome; the attempt reports it.
		if err := d.Bridge.Deliver(ctx, &p); err != nil && !errors.Is(err, receipt.ErrPaymentPending) {
			logctx.FromGin(c, d.Log).Warnw("purchase delivery failed", "transaction_id", p.TransactionID, "error", err)
			writeError(c, err)
			return
		}
		res := PurchaseEventResponse{Attempt: d.Controller.Attempt(userID)}
		if st, ok := d.Subs.Current(userID); ok {
			res.Status = st
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Report a purchase error
// @Description  Reports a store-side purchase failure, such as a user cancellation.
// @Tags         Purchase
// @Accept       json
// @Produce      json
// @Param        error body iap.PurchaseError true "store error"
// @Success      200  {object}  handlers.RespAttempt
// @Router       /api/v1/purchases/errors [post]
func ApiReportPurchaseError(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var perr iap.PurchaseError
		if err := c.ShouldBindJSON(&perr); err != nil {
			badRequest(c, err.Error())
			return
		}
		userID := mw.UserID(c)
		perr.UserID = userID
		if perr.Code == "" {
			perr.Code = iap.ErrorCodeUnknown
		}

		ctx, cancel := d.deliveryContext(c)
		defer cancel()
		if err := d.Bridge.Fail(ctx, &perr); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(d.Controller.Attempt(userID)))
	}
}

// @Summary      Report store products
// @Description  Reports the products the store returned, with localized prices.
// @Tags         Purchase
// @Accept       json
// @Produce      json
// @Param        products body handlers.ReportProductsRequest true "store products"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/purchases/products [post]
func ApiReportProducts(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReportProductsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		d.Bridge.ReportProducts(req.Products)
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Report available purchases
// @Description  Replaces the purchases the store currently holds for the caller; used by restore.
// @Tags         Purchase
// @Accept       json
// @Produce      json
// @Param        purchases body handlers.ReportAvailableRequest true "store purchases"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/purchases/available [post]
func ApiReportAvailable(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReportAvailableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		d.Bridge.ReportAvailable(mw.UserID(c), req.Purchases)
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Restore purchases
// @Description  Re-validates every purchase the store holds for the caller and commits the valid ones.
// @Tags         Purchase
// @Produce      json
// @Success      200  {object}  handlers.RespRestore
// @Router       /api/v1/purchases/restore [post]
func ApiRestorePurchases(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := d.Controller.RestorePurchases(c.Request.Context(), mw.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Transaction finished
// @Description  Reports whether the store transaction was acknowledged.
// @Tags         Purchase
// @Produce      json
// @Param        platform query string true "ios or android"
// @Param        transaction_id query string true "store transaction id"
// @Success      200  {object}  handlers.RespFinished
// @Router       /api/v1/purchases/finished [get]
func ApiTransactionFinished(d PurchaseDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		platform := types.Platform(c.Query("platform"))
		txID := c.Query("transaction_id")
		if !platform.Valid() || txID == "" {
			badRequest(c, "platform and transaction_id are required")
			return
		}
		c.JSON(http.StatusOK, response.OKT(FinishedResponse{Finished: d.Bridge.Finished(platform, txID)}))
	}
}

func RegisterPurchaseRoutes(r gin.IRouter, d PurchaseDeps) {
	r.POST("/request", ApiRequestPurchase(d))
	r.GET("/pending", ApiPendingRequest(d))
	r.GET("/attempt", ApiPurchaseAttempt(d))
	r.POST("/events", ApiDeliverPurchase(d))
	r.POST("/errors", ApiReportPurchaseError(d))
	r.POST("/products", ApiReportProducts(d))
	r.POST("/available", ApiReportAvailable(d))
	r.POST("/restore", ApiRestorePurchases(d))
	r.GET("/finished", ApiTransactionFinished(d))
}
