package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/entitlement/internal/models"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/tool"
	"github.com/fatflowers/entitlement/pkg/types"
)

var upsertKey = []clause.Column{{Name: "user_id"}, {Name: "original_transaction_id"}}

var upsertColumns = []string{
	"plan_id", "status", "start_date", "end_date", "auto_renew", "platform", "receipt_data", "updated_at",
}

// Upsert writes rec keyed by (user_id, original_transaction_id). Replaying
// the same purchase overwrites the stored row; rec is reloaded from the
// database afterwards.
func (s *Service) Upsert(ctx context.Context, rec *models.UserSubscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := s.upsert(ctx, tx, rec)
		if err != nil {
			return err
		}
		return s.writeLog(ctx, tx, before, rec, types.SubscriptionChangeReasonPurchase)
	})
}

// Commit stores a validated purchase. Inside one transaction it keeps at most
// one active record per user: of two active records the one ending later
// stays active, the other is expired (already ended) or cancelled. A record
// whose end date has passed is stored expired.
func (s *Service) Commit(ctx context.Context, rec *models.UserSubscription, reason types.SubscriptionChangeReason) error {
	now := s.now()
	normalizeTimes(rec)
	if rec.Status == types.SubscriptionStatusActive && !rec.EndDate.After(now) {
		rec.Status = types.SubscriptionStatusExpired
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.Status == types.SubscriptionStatusActive {
			if err := s.supersede(ctx, tx, rec, now); err != nil {
				return err
			}
		}
		before, err := s.upsert(ctx, tx, rec)
		if err != nil {
			return err
		}
		return s.writeLog(ctx, tx, before, rec, reason)
	})
	if err != nil {
		return fmt.Errorf("failed to commit subscription: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription committed",
		"user_id", rec.UserID, "plan_id", rec.PlanID, "status", rec.Status,
		"original_transaction_id", rec.OriginalTransactionID, "end_date", rec.EndDate, "reason", reason)
	return nil
}

// supersede resolves the conflict between rec and the user's other active
// records. When an existing record outlives rec, rec is demoted instead.
func (s *Service) supersede(ctx context.Context, tx *gorm.DB, rec *models.UserSubscription, now time.Time) error {
	var others []*models.UserSubscription
	if err := tx.Where("user_id = ? AND status = ? AND original_transaction_id <> ?",
		rec.UserID, types.SubscriptionStatusActive, rec.OriginalTransactionID).
		Find(&others).Error; err != nil {
		return fmt.Errorf("failed to load active subscriptions: %w", err)
	}
	for _, o := range others {
		if o.EndDate.After(rec.EndDate) {
			rec.Status = loserStatus(rec, now)
			return nil
		}
	}
	for _, o := range others {
		if err := s.transition(ctx, tx, o, loserStatus(o, now), types.SubscriptionChangeReasonSupersede); err != nil {
			return err
		}
	}
	return nil
}

func loserStatus(rec *models.UserSubscription, now time.Time) types.SubscriptionStatus {
	if rec.EndDate.After(now) {
		return types.SubscriptionStatusCancelled
	}
	return types.SubscriptionStatusExpired
}

func (s *Service) upsert(ctx context.Context, tx *gorm.DB, rec *models.UserSubscription) (*models.UserSubscription, error) {
	normalizeTimes(rec)
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	before, err := s.findByKey(tx, rec.UserID, rec.OriginalTransactionID)
	if err != nil {
		return nil, err
	}
	// a pending replay never downgrades an already granted record
	if before != nil && before.Status == types.SubscriptionStatusActive && rec.Status == types.SubscriptionStatusPending {
		rec.Status = types.SubscriptionStatusActive
	}

	now := s.now()
	if rec.ID == "" {
		rec.ID = tool.GenerateUUIDV7()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if err := tx.Clauses(clause.OnConflict{
		Columns:   upsertKey,
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	stored, err := s.findByKey(tx, rec.UserID, rec.OriginalTransactionID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("subscription %s/%s vanished after upsert", rec.UserID, rec.OriginalTransactionID)
	}
	*rec = *stored
	return before, nil
}

func (s *Service) findByKey(tx *gorm.DB, userID, originalTransactionID string) (*models.UserSubscription, error) {
	var m models.UserSubscription
	err := tx.Where("user_id = ? AND original_transaction_id = ?", userID, originalTransactionID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &m, nil
}

// transition moves rec to status and logs the change. It is a no-op when rec
// is already there.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, rec *models.UserSubscription, status types.SubscriptionStatus, reason types.SubscriptionChangeReason) error {
	if rec.Status == status {
		return nil
	}
	before := *rec
	res := tx.Model(&models.UserSubscription{}).
		Where("id = ? AND status = ?", rec.ID, rec.Status).
		Updates(map[string]any{"status": status, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update subscription %s: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// lost a race with another writer; nothing to log
		return nil
	}
	rec.Status = status
	return s.writeLog(ctx, tx, &before, rec, reason)
}

func (s *Service) writeLog(ctx context.Context, tx *gorm.DB, before, after *models.UserSubscription, reason types.SubscriptionChangeReason) error {
	var afterCopy *models.UserSubscription
	if after != nil {
		cp := *after
		afterCopy = &cp
	}
	row := &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		UserID:         after.UserID,
		SubscriptionID: after.ID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(afterCopy),
		Extra:          datatypes.JSONMap{"trace_id": logctx.TraceID(ctx)},
	}
	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("failed to save subscription log: %w", err)
	}
	return nil
}

// QueryActive returns the user's active record, or nil when there is none.
// Two active records are an invariant violation and yield ErrDuplicateActive.
func (s *Service) QueryActive(ctx context.Context, userID string) (*models.UserSubscription, error) {
	var rows []*models.UserSubscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.SubscriptionStatusActive).
		Order("end_date desc").
		Limit(2).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query active subscription: %w", err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		logctx.FromCtx(ctx, s.log).Errorw("duplicate active subscriptions", "user_id", userID,
			"ids", []string{rows[0].ID, rows[1].ID})
		return nil, fmt.Errorf("%w: %s", ErrDuplicateActive, userID)
	}
}

// MarkExpired moves an active record to expired. Calling it on a record that
// is no longer active does nothing.
func (s *Service) MarkExpired(ctx context.Context, id string) error {
	return s.markStatus(ctx, id, types.SubscriptionStatusExpired, types.SubscriptionChangeReasonExpire,
		types.SubscriptionStatusActive)
}

// MarkCancelled revokes an active or pending record, e.g. after a refund.
func (s *Service) MarkCancelled(ctx context.Context, id string, reason types.SubscriptionChangeReason) error {
	return s.markStatus(ctx, id, types.SubscriptionStatusCancelled, reason,
		types.SubscriptionStatusActive, types.SubscriptionStatusPending)
}

func (s *Service) markStatus(ctx context.Context, id string, to types.SubscriptionStatus, reason types.SubscriptionChangeReason, from ...types.SubscriptionStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.UserSubscription
		err := tx.Where("id = ?", id).Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load subscription %s: %w", id, err)
		}
		for _, st := range from {
			if m.Status == st {
				return s.transition(ctx, tx, &m, to, reason)
			}
		}
		return nil
	})
}

// SetAutoRenew records the store's renewal preference.
func (s *Service) SetAutoRenew(ctx context.Context, id string, autoRenew bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.UserSubscription
		err := tx.Where("id = ?", id).Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load subscription %s: %w", id, err)
		}
		if m.AutoRenew == autoRenew {
			return nil
		}
		before := m
		if err := tx.Model(&m).Updates(map[string]any{"auto_renew": autoRenew, "updated_at": s.now()}).Error; err != nil {
			return fmt.Errorf("failed to update auto renew: %w", err)
		}
		m.AutoRenew = autoRenew
		if autoRenew {
			return nil
		}
		return s.writeLog(ctx, tx, &before, &m, types.SubscriptionChangeReasonRenewalOff)
	})
}

// FindByTransaction returns the records of a store transaction, most recently
// updated first. A transaction restored into several accounts has one row
// per account.
func (s *Service) FindByTransaction(ctx context.Context, platform types.Platform, originalTransactionID string) ([]*models.UserSubscription, error) {
	var rows []*models.UserSubscription
	if err := s.db.WithContext(ctx).
		Where("platform = ? AND original_transaction_id = ?", platform, originalTransactionID).
		Order("updated_at desc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find subscriptions by transaction: %w", err)
	}
	return rows, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.UserSubscription, error) {
	var rows []*models.UserSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("end_date desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return rows, nil
}

// ScanFields are the columns admin scans may filter and sort on.
var ScanFields = map[string]bool{
	"id": true, "user_id": true, "plan_id": true, "status": true, "platform": true,
	"start_date": true, "end_date": true, "auto_renew": true, "original_transaction_id": true,
	"created_at": true, "updated_at": true,
}

type ScanResponse struct {
	Items []*models.UserSubscription `json:"items"`
	Total int64                      `json:"total"`
}

// Scan implements paginated admin listing with filters.
func (s *Service) Scan(ctx context.Context, req *types.ScanRequest) (*ScanResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if err := req.Normalize(ScanFields); err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Model(&models.UserSubscription{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
	}
	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	q := tx.Limit(req.Size).Offset(req.From)
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "updated_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.UserSubscription
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return &ScanResponse{Items: rows, Total: total}, nil
}

func normalizeTimes(rec *models.UserSubscription) {
	rec.StartDate = rec.StartDate.UTC()
	rec.EndDate = rec.EndDate.UTC()
}
