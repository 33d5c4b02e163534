package subscription

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/entitlement/pkg/metrics"
	"github.com/fatflowers/entitlement/pkg/tool"
)

// ErrDuplicateActive means more than one active record exists for a user,
// which the commit path and the partial unique index should make impossible.
var ErrDuplicateActive = errors.New("more than one active subscription for user")

// Service is the entitlement store and the status query service on top of it.
type Service struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	metrics *metrics.Business
	now     tool.Clock

	cache *statusCache
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, m *metrics.Business) *Service {
	return &Service{
		db:      db,
		log:     log,
		metrics: m,
		now:     tool.UTCNow,
		cache:   newStatusCache(statusCacheSize),
	}
}

// WithClock replaces the time source; tests pin "now" with it.
func (s *Service) WithClock(c tool.Clock) *Service {
	s.now = func() time.Time { return c().UTC() }
	return s
}
