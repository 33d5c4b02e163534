package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/entitlement/internal/app/api/middleware"
	"github.com/fatflowers/entitlement/internal/app/service/gate"
	"github.com/fatflowers/entitlement/internal/app/service/usage"
	"github.com/fatflowers/entitlement/pkg/response"
)

// @Summary      Daily usage
// @Description  Loads today's counter of a metered feature. Signed-out callers share the anonymous counter.
// @Tags         Usage
// @Produce      json
// @Param        feature path string true "feature name"
// @Success      200  {object}  handlers.RespUsage
// @Router       /api/v1/usage/{feature} [get]
func ApiGetUsage(t *usage.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, feature := mw.UserID(c), c.Param("feature")
		t.Load(c.Request.Context(), userID, feature)
		c.JSON(http.StatusOK, response.OKT(t.Snapshot(userID, feature, t.Limit(feature))))
	}
}

// @Summary      Record a use
// @Description  Adds one use of a metered feature to today's counter.
// @Tags         Usage
// @Produce      json
// @Param        feature path string true "feature name"
// @Success      200  {object}  handlers.RespUsage
// @Router       /api/v1/usage/{feature}/increment [post]
func ApiIncrementUsage(t *usage.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID, feature := mw.UserID(c), c.Param("feature")
		t.Load(ctx, userID, feature)
		if err := t.IncrementUsage(ctx, userID, feature); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(t.Snapshot(userID, feature, t.Limit(feature))))
	}
}

// @Summary      Reset usage (Admin)
// @Description  Sets today's counter of a metered feature back to zero for any user. The user id "anonymous" names the counter shared by signed-out callers.
// @Tags         Admin
// @Produce      json
// @Param        user_id path string true "user id"
// @Param        feature path string true "feature name"
// @Success      200  {object}  handlers.RespUsage
// @Router       /api/v1/admin/users/{user_id}/usage/{feature}/reset [post]
func ApiResetUsage(t *usage.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, feature := c.Param("user_id"), c.Param("feature")
		if err := t.ResetUsage(c.Request.Context(), userID, feature); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(t.Snapshot(userID, feature, t.Limit(feature))))
	}
}

func RegisterUsageRoutes(r gin.IRouter, t *usage.Tracker) {
	r.GET("/:feature", ApiGetUsage(t))
	r.POST("/:feature/increment", ApiIncrementUsage(t))
}

// @Summary      Premium gate
// @Description  Decides premium access from the cached entitlement; call /subscription/status first to refresh it.
// @Tags         Gate
// @Produce      json
// @Param        feature query string true "feature name"
// @Param        hide_prompt query bool false "suppress the prompt of a denied decision"
// @Param        no_redirect query bool false "drop the subscription route from the upgrade prompt"
// @Success      200  {object}  handlers.RespGate
// @Router       /api/v1/gate/premium [get]
func ApiCheckPremium(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		feature := c.Query("feature")
		if feature == "" {
			badRequest(c, "feature is required")
			return
		}
		hide, _ := strconv.ParseBool(c.Query("hide_prompt"))
		noRedirect, _ := strconv.ParseBool(c.Query("no_redirect"))
		res := g.CheckPremiumAccess(mw.UserID(c), feature, gate.Options{HidePrompt: hide, NoRedirect: noRedirect})
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Usage gate
// @Description  Decides whether a metered feature may be used once more today.
// @Tags         Gate
// @Produce      json
// @Param        feature path string true "feature name"
// @Success      200  {object}  handlers.RespUsageGate
// @Router       /api/v1/gate/usage/{feature} [get]
func ApiCheckUsage(g *gate.Gate, t *usage.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, feature := mw.UserID(c), c.Param("feature")
		t.Load(c.Request.Context(), userID, feature)
		c.JSON(http.StatusOK, response.OKT(g.CheckUsage(userID, feature, t.Limit(feature))))
	}
}

func RegisterGateRoutes(r gin.IRouter, g *gate.Gate, t *usage.Tracker) {
	r.GET("/premium", ApiCheckPremium(g))
	r.GET("/usage/:feature", ApiCheckUsage(g, t))
}
