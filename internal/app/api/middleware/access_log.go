package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/pkg/logctx"
)

// AccessLogMiddleware writes one line per request with the request-scoped
// logger. Server errors are logged at warn level together with gin errors.
func AccessLogMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		lg := logctx.FromGin(c, base)
		if c.Writer.Status() >= http.StatusInternalServerError || len(c.Errors) > 0 {
			lg.Warnw("http_access", append(fields, "errors", c.Errors.String())...)
			return
		}
		lg.Infow("http_access", fields...)
	}
}
