package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	nh "github.com/fatflowers/entitlement/internal/app/service/notification_handler"
	"github.com/fatflowers/entitlement/internal/platform/apple/apple_notification"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/response"
)

// @Summary      Apple Webhook
// @Description  Handles App Store Server Notifications V2. The request body carries the signed JWS payload.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body apple_notification.AppStoreServerRequest true "App Store Server Notification V2 request"
// @Success      200  {object}  handlers.RespWebhook
// @Router       /webhook/apple [post]
func ApiAppleWebhook(h *nh.NotificationHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)
		var req apple_notification.AppStoreServerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		lg.Infow("webhook_apple_received")

		res, err := h.HandleApple(c.Request.Context(), req.SignedPayload)
		if err != nil {
			lg.Errorw("webhook_apple_handle_error", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		lg.Infow("webhook_apple_handled", "notification_type", res.NotificationType, "action", res.Action)
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, h *nh.NotificationHandler, log *zap.SugaredLogger) {
	r.POST("/apple", ApiAppleWebhook(h, log))
}
