package statistics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/entitlement/internal/models"
	"github.com/fatflowers/entitlement/pkg/tool"
	"github.com/fatflowers/entitlement/pkg/types"
)

var ErrUnknownStatistic = errors.New("unknown statistic")

type StatisticType string

const (
	StatisticTypeCountByStatus    StatisticType = "count_by_status"
	StatisticTypeActiveByPlan     StatisticType = "active_by_plan"
	StatisticTypeActiveByPlatform StatisticType = "active_by_platform"
	StatisticTypePremiumUsers     StatisticType = "premium_user_count"
	StatisticTypeDailyNew         StatisticType = "daily_new_subscription_count"
	StatisticTypeDailyEventCount  StatisticType = "daily_purchase_event_count"
)

// FilterFields are the subscription columns statistics may filter on. The
// purchase event statistic ignores filters.
var FilterFields = map[string]bool{
	"plan_id": true, "platform": true, "status": true, "auto_renew": true, "created_at": true,
}

type DataItem struct {
	ID StatisticType `json:"id"`
}

type Request struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*DataItem           `json:"data_items"`
}

type ResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type Response struct {
	DataItems map[StatisticType][]ResponseDataItem `json:"data_items"`
}

// Service computes admin statistics over subscriptions and purchase events.
type Service struct {
	db  *gorm.DB
	now tool.Clock
}

func New(db *gorm.DB) *Service { return &Service{db: db, now: tool.UTCNow} }

// WithClock replaces the time source; tests pin "now" with it.
func (s *Service) WithClock(c tool.Clock) *Service {
	s.now = c
	return s
}

func (s *Service) subscriptions(ctx context.Context, req *Request) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.UserSubscription{})
	if len(req.Filters) > 0 {
		q = q.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
	}
	return q
}

func (s *Service) countBy(ctx context.Context, req *Request, column string, activeOnly bool) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.subscriptions(ctx, req).Select(column + " as label, count(*) as value")
	if activeOnly {
		q = q.Where("status = ? AND end_date > ?", types.SubscriptionStatusActive, s.now())
	}
	if err := q.Group(column).Order(column).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getPremiumUsers(ctx context.Context, req *Request) ([]ResponseDataItem, error) {
	var n int64
	err := s.subscriptions(ctx, req).
		Where("status = ? AND end_date > ?", types.SubscriptionStatusActive, s.now()).
		Distinct("user_id").
		Count(&n).Error
	if err != nil {
		return nil, err
	}
	return []ResponseDataItem{{Value: n}}, nil
}

// Daily buckets are computed from UTC timestamps in Go, so the query stays
// portable across postgres and sqlite.
func (s *Service) getDailyNew(ctx context.Context, req *Request) ([]ResponseDataItem, error) {
	var rows []*models.UserSubscription
	if err := s.subscriptions(ctx, req).Select("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	counts := lo.CountValuesBy(rows, func(r *models.UserSubscription) string {
		return r.CreatedAt.UTC().Format(time.DateOnly)
	})
	res := lo.MapToSlice(counts, func(date string, n int) ResponseDataItem {
		return ResponseDataItem{Date: date, Value: int64(n)}
	})
	sort.Slice(res, func(i, j int) bool { return res[i].Date > res[j].Date })
	return res, nil
}

func (s *Service) getDailyEventCount(ctx context.Context, _ *Request) ([]ResponseDataItem, error) {
	var rows []*models.PurchaseEventLog
	if err := s.db.WithContext(ctx).Model(&models.PurchaseEventLog{}).Select("event_time", "status").Find(&rows).Error; err != nil {
		return nil, err
	}
	type key struct{ date, status string }
	counts := lo.CountValuesBy(rows, func(r *models.PurchaseEventLog) key {
		return key{r.EventTime.UTC().Format(time.DateOnly), string(r.Status)}
	})
	res := lo.MapToSlice(counts, func(k key, n int) ResponseDataItem {
		return ResponseDataItem{Date: k.date, Label: k.status, Value: int64(n)}
	})
	sort.Slice(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date > res[j].Date
		}
		return res[i].Label < res[j].Label
	})
	return res, nil
}

func (s *Service) getStatistic(ctx context.Context, req *Request, item *DataItem) ([]ResponseDataItem, error) {
	switch item.ID {
	case StatisticTypeCountByStatus:
		return s.countBy(ctx, req, "status", false)
	case StatisticTypeActiveByPlan:
		return s.countBy(ctx, req, "plan_id", true)
	case StatisticTypeActiveByPlatform:
		return s.countBy(ctx, req, "platform", true)
	case StatisticTypePremiumUsers:
		return s.getPremiumUsers(ctx, req)
	case StatisticTypeDailyNew:
		return s.getDailyNew(ctx, req)
	case StatisticTypeDailyEventCount:
		return s.getDailyEventCount(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatistic, item.ID)
	}
}

// GetStatistics computes every requested data item concurrently.
func (s *Service) GetStatistics(ctx context.Context, req *Request) (*Response, error) {
	for _, f := range req.Filters {
		if f == nil {
			return nil, fmt.Errorf("%w: nil filter", types.ErrInvalidFilter)
		}
		if err := f.Normalize(FilterFields); err != nil {
			return nil, err
		}
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(req.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []ResponseDataItem], len(req.DataItems))
	for _, item := range req.DataItems {
		wg.Add(1)
		go func(di *DataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, req, di)
			if err != nil {
				errChan <- fmt.Errorf("statistic %s: %w", di.ID, err)
				return
			}
			resChan <- &lo.Entry[StatisticType, []ResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}
	wg.Wait()
	close(errChan)
	close(resChan)
	if err := <-errChan; err != nil {
		return nil, err
	}

	results := make(map[StatisticType][]ResponseDataItem, len(req.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &Response{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
