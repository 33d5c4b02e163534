package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/entitlement/internal/app/api/server"
	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/gate"
	notificationhandler "github.com/fatflowers/entitlement/internal/app/service/notification_handler"
	"github.com/fatflowers/entitlement/internal/app/service/notify"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	"github.com/fatflowers/entitlement/internal/app/service/purchase_log"
	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	"github.com/fatflowers/entitlement/internal/app/service/statistics"
	"github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/app/service/usage"
	"github.com/fatflowers/entitlement/internal/platform/db"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/internal/platform/securestore"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/logger"
	"github.com/fatflowers/entitlement/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// premiumSource lets the usage tracker read the cached entitlement.
func premiumSource(s *subscription.Service) usage.PremiumSource { return s }

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	securestore.Module,
	iap.Module,
	catalog.Module,
	receipt.Module,
	subscription.Module,
	fx.Provide(premiumSource),
	usage.Module,
	gate.Module,
	notify.Module,
	purchase_log.Module,
	purchase.Module,
	notificationhandler.Module,
	statistics.Module,
	server.Module,
)
