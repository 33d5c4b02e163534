package purchase_log

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fatflowers/entitlement/internal/models"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/tool"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Entry describes one event for Record.
type Entry struct {
	Source        string
	Platform      string
	UserID        string
	TransactionID string
	Data          any
	Result        any
	Err           error
	Status        models.PurchaseEventLogStatus
}

// Record builds a log row from e, enriching it with the trace id of ctx, and
// persists it asynchronously. A nil Service is a no-op.
func (s *Service) Record(ctx context.Context, e Entry) {
	if s == nil {
		return
	}
	row := &models.PurchaseEventLog{
		Source:        e.Source,
		Platform:      e.Platform,
		TraceID:       logctx.TraceID(ctx),
		TransactionID: e.TransactionID,
		EventTime:     time.Now(),
		Status:        e.Status,
	}
	if e.UserID != "" {
		uid := e.UserID
		row.UserID = &uid
	}
	if e.Data != nil {
		b, _ := json.Marshal(e.Data)
		row.Data = datatypes.JSON(b)
	}
	if e.Result != nil || e.Err != nil {
		res := map[string]any{"result": e.Result}
		if e.Err != nil {
			res["error"] = e.Err.Error()
		}
		b, _ := json.Marshal(res)
		j := datatypes.JSON(b)
		row.Result = &j
	}
	s.Save(ctx, row)
}

// Save asynchronously persists a purchase event log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, row *models.PurchaseEventLog) {
	if s == nil || row == nil {
		return
	}
	if row.ID == "" {
		row.ID = tool.GenerateUUIDV7()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.db.WithContext(context.WithoutCancel(ctx)).Save(row).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save purchase event log: %v", err)
		}
	}()
}

// Flush blocks until pending writes finish.
func (s *Service) Flush() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func registerFlush(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.StopHook(s.Flush))
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerFlush),
)
