package main

// @title           Entitlement Backend API
// @version         1.0
// @description     Subscription entitlement backend: purchase flow, receipt validation, premium gating and usage limits.
// @termsOfService  http://example.com/terms/

// @contact.name   API Support
// @contact.url    http://www.example.com/support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8888
// @BasePath  /

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	a := fx.New(
		app.Module,
		fx.WithLogger(func(log *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Desugar()}
		}),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		// The app logger may not exist yet.
		zap.NewExample().Sugar().Errorf("failed to start app: %v", err)
		return 1
	}

	sig := <-a.Done()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to stop app after %s: %v", sig, err)
		return 1
	}
	return 0
}
