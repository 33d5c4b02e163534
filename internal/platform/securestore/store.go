// Package securestore persists small string values keyed by name. Usage
// counters live here rather than in the entitlement database.
package securestore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/pkg/config"
)

var ErrNotFound = errors.New("securestore: key not found")

type Store interface {
	// Get returns ErrNotFound when key was never set or was deleted.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Counter is implemented by stores that increment an integer value in
// place, so writers on different instances never lose an update.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// New picks the backend configured in usage.backend.
func New(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (Store, error) {
	switch cfg.Usage.Backend {
	case "", config.UsageBackendKeyring:
		log.Infow("usage store: keyring", "service", cfg.Usage.KeyringService)
		return NewKeyringStore(cfg.Usage.KeyringService), nil
	case config.UsageBackendRedis:
		s := NewRedisStore(cfg.Redis)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := s.Ping(ctx); err != nil {
					return err
				}
				log.Infow("usage store: redis", "addr", cfg.Redis.Addr)
				return nil
			},
			OnStop: func(context.Context) error { return s.Close() },
		})
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported usage backend: %q", cfg.Usage.Backend)
	}
}

var Module = fx.Options(
	fx.Provide(New),
)
