package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/entitlement/docs"
	"github.com/fatflowers/entitlement/internal/app/api/handlers"
	mw "github.com/fatflowers/entitlement/internal/app/api/middleware"
	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/gate"
	nh "github.com/fatflowers/entitlement/internal/app/service/notification_handler"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	"github.com/fatflowers/entitlement/internal/app/service/statistics"
	subsvc "github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/app/service/usage"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	cfgpkg "github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger, access log and auth are attached per group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	return r
}

type routeParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Engine     *gin.Engine
	Log        *zap.SugaredLogger
	Config     *cfgpkg.Config
	DB         *gorm.DB
	Catalog    *catalog.Service
	Subs       *subsvc.Service
	Tracker    *usage.Tracker
	Gate       *gate.Gate
	Controller *purchase.Controller
	Bridge     *iap.Bridge
	Inbox      *notify.Inbox
	Notif      *nh.NotificationHandler
	Stats      *statistics.Service
}

func registerRoutes(p routeParams) {
	r, log, cfg := p.Engine, p.Log, p.Config

	if cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			Subsystem: "entitlement",
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		prom.UseWithListener(r, cfg.MetricsAddr)
		p.Lifecycle.Append(fx.Hook{OnStop: prom.Shutdown})
		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, p.DB)
	handlers.RegisterPaymentWebhookRoutes(pub.Group("/webhook"), p.Notif, log)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API group resolves the caller; anonymous callers reach plans, usage and gates.
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log), mw.AuthMiddleware(cfg.Auth, log))
	handlers.RegisterPlanRoutes(apiV1, p.Catalog, p.Controller)
	handlers.RegisterUsageRoutes(apiV1.Group("/usage"), p.Tracker)
	handlers.RegisterGateRoutes(apiV1.Group("/gate"), p.Gate, p.Tracker)

	user := apiV1.Group("", mw.RequireUser())
	handlers.RegisterSubscriptionRoutes(user.Group("/subscription"), p.Subs, p.Controller)
	handlers.RegisterPurchaseRoutes(user.Group("/purchases"), handlers.PurchaseDeps{
		Controller: p.Controller,
		Bridge:     p.Bridge,
		Subs:       p.Subs,
		Config:     cfg,
		Log:        log,
	})
	handlers.RegisterNotificationRoutes(user, p.Inbox)

	handlers.RegisterAdminRoutes(apiV1.Group("/admin", mw.RequireAdmin()), p.Stats, p.Subs, p.Tracker)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
