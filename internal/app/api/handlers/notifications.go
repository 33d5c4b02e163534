package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/entitlement/internal/app/api/middleware"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/pkg/response"
)

// @Summary      Drain notifications
// @Description  Returns and clears the alerts queued for the caller, oldest first.
// @Tags         Notification
// @Produce      json
// @Success      200  {object}  handlers.RespNotifications
// @Router       /api/v1/notifications [get]
func ApiDrainNotifications(inbox *notify.Inbox) gin.HandlerFunc {
	return func(c *gin.Context) {
		list := inbox.Drain(mw.UserID(c))
		if list == nil {
			list = []*notify.Notification{}
		}
		c.JSON(http.StatusOK, response.OKT(list))
	}
}

func RegisterNotificationRoutes(r gin.IRouter, inbox *notify.Inbox) {
	r.GET("/notifications", ApiDrainNotifications(inbox))
}
