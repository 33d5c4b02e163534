package purchase

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase_log"
	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	"github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/metrics"
)

type controllerParams struct {
	fx.In

	Platform  iap.Platform
	Validator *receipt.Service
	Subs      *subscription.Service
	Catalog   *catalog.Service
	Inbox     *notify.Inbox
	EventLog  *purchase_log.Service
	Metrics   *metrics.Business
	Log       *zap.SugaredLogger
}

func newController(p controllerParams) *Controller {
	return NewController(Params{
		Platform:  p.Platform,
		Validator: p.Validator,
		Subs:      p.Subs,
		Catalog:   p.Catalog,
		Inbox:     p.Inbox,
		EventLog:  p.EventLog,
		Metrics:   p.Metrics,
		Log:       p.Log,
	})
}

func registerLifecycle(lc fx.Lifecycle, c *Controller) {
	lc.Append(fx.Hook{OnStart: c.Start, OnStop: c.Stop})
}

var Module = fx.Options(
	fx.Provide(newController),
	fx.Invoke(registerLifecycle),
)
