package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"

	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/types"
)

var ErrPlanNotFound = errors.New("subscription plan not found")

// Service serves the plan catalog. Plans are replaced wholesale on Refresh,
// so callers may keep the slices they got.
type Service struct {
	mu    sync.RWMutex
	plans []*types.SubscriptionPlan
}

func New(cfg *config.Config) *Service {
	return NewWithPlans(cfg.Plans)
}

func NewWithPlans(plans []*types.SubscriptionPlan) *Service {
	return &Service{plans: lo.Map(plans, func(p *types.SubscriptionPlan, _ int) *types.SubscriptionPlan { return p.Clone() })}
}

func (s *Service) Plans() []*types.SubscriptionPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plans
}

// PlansFor returns the plans sold on platform.
func (s *Service) PlansFor(platform types.Platform) []*types.SubscriptionPlan {
	return lo.Filter(s.Plans(), func(p *types.SubscriptionPlan, _ int) bool {
		return p.ProductID(platform) != ""
	})
}

func (s *Service) Plan(id string) (*types.SubscriptionPlan, error) {
	p, ok := lo.Find(s.Plans(), func(p *types.SubscriptionPlan) bool { return p.ID == id })
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p, nil
}

func (s *Service) PlanByProductID(platform types.Platform, productID string) (*types.SubscriptionPlan, error) {
	p, ok := lo.Find(s.Plans(), func(p *types.SubscriptionPlan) bool {
		return productID != "" && p.ProductID(platform) == productID
	})
	if !ok {
		return nil, fmt.Errorf("%w: product %s on %s", ErrPlanNotFound, productID, platform)
	}
	return p, nil
}

// Refresh overwrites display price and currency with the live store values
// of platform. Plans without a matching product keep their configured price.
func (s *Service) Refresh(platform types.Platform, products []*iap.Product) []*types.SubscriptionPlan {
	byID := lo.SliceToMap(products, func(p *iap.Product) (string, *iap.Product) { return p.ProductID, p })

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*types.SubscriptionPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		prod, ok := byID[plan.ProductID(platform)]
		if !ok || prod.LocalizedPrice == "" {
			next = append(next, plan)
			continue
		}
		cp := plan.Clone()
		cp.Price = prod.LocalizedPrice
		if prod.Currency != "" {
			cp.Currency = prod.Currency
		}
		next = append(next, cp)
	}
	s.plans = next
	return next
}

var Module = fx.Options(
	fx.Provide(New),
)
