package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	"github.com/fatflowers/entitlement/pkg/response"
	"github.com/fatflowers/entitlement/pkg/types"
)

// @Summary      List subscription plans
// @Description  Returns the configured plans. With a platform, prices are refreshed from the store products reported for it.
// @Tags         Subscription
// @Produce      json
// @Param        platform query string false "ios or android"
// @Success      200  {object}  handlers.RespPlans
// @Router       /api/v1/plans [get]
func ApiListPlans(cat *catalog.Service, ctrl *purchase.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		platform := types.Platform(c.Query("platform"))
		if platform == "" {
			c.JSON(http.StatusOK, response.OKT(cat.Plans()))
			return
		}
		plans, err := ctrl.LoadAvailablePlans(c.Request.Context(), platform)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

func RegisterPlanRoutes(r gin.IRouter, cat *catalog.Service, ctrl *purchase.Controller) {
	r.GET("/plans", ApiListPlans(cat, ctrl))
}
