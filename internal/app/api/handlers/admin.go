package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/entitlement/internal/app/service/statistics"
	subsvc "github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/app/service/usage"
	"github.com/fatflowers/entitlement/pkg/response"
	"github.com/fatflowers/entitlement/pkg/types"
)

// @Summary      List Subscriptions (Admin)
// @Description  Retrieves a paginated and filterable list of subscription records.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body types.ScanRequest true "Scan request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespScanSubscriptions
// @Router       /api/v1/admin/list_user_subscriptions [post]
func ApiListSubscriptions(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := sub.Scan(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Subscription Statistics (Admin)
// @Description  Computes the requested subscription and purchase event statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.Request true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistics
// @Router       /api/v1/admin/get_subscription_statistic [post]
func ApiGetSubscriptionStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.GetStatistics(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      User Subscription Status (Admin)
// @Description  Re-reads the entitlement of any user.
// @Tags         Admin
// @Produce      json
// @Param        user_id path string true "user id"
// @Success      200  {object}  handlers.RespStatus
// @Router       /api/v1/admin/users/{user_id}/status [get]
func ApiAdminUserStatus(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := sub.CheckSubscriptionStatus(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

func RegisterAdminRoutes(r gin.IRouter, stats *statistics.Service, sub *subsvc.Service, t *usage.Tracker) {
	r.POST("/list_user_subscriptions", ApiListSubscriptions(sub))
	r.POST("/get_subscription_statistic", ApiGetSubscriptionStatistic(stats))
	r.GET("/users/:user_id/status", ApiAdminUserStatus(sub))
	r.POST("/users/:user_id/usage/:feature/reset", ApiResetUsage(t))
}
