package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/entitlement/internal/app/api/middleware"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	subsvc "github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/pkg/response"
)

// @Summary      Subscription status
// @Description  Re-reads the caller's active subscription and refreshes the cached premium flag.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespStatus
// @Router       /api/v1/subscription/status [get]
func ApiSubscriptionStatus(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := subs.CheckSubscriptionStatus(c.Request.Context(), mw.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

// @Summary      Subscription history
// @Description  Lists every subscription record of the caller, latest end date first.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscriptions
// @Router       /api/v1/subscription/history [get]
func ApiSubscriptionHistory(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := subs.ListByUser(c.Request.Context(), mw.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(list))
	}
}

// @Summary      Cancel subscription
// @Description  Returns instructions for cancelling in the store; nothing is changed server side.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespCancel
// @Router       /api/v1/subscription/cancel [post]
func ApiCancelSubscription(ctrl *purchase.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(ctrl.CancelSubscription(c.Request.Context(), mw.UserID(c))))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, subs *subsvc.Service, ctrl *purchase.Controller) {
	r.GET("/status", ApiSubscriptionStatus(subs))
	r.GET("/history", ApiSubscriptionHistory(subs))
	r.POST("/cancel", ApiCancelSubscription(ctrl))
}
