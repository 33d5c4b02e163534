package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/internal/platform/securestore"
	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/logctx"
	"github.com/fatflowers/entitlement/pkg/metrics"
	"github.com/fatflowers/entitlement/pkg/tool"
)

var ErrStorage = errors.New("usage storage failure")

const (
	anonymousUser = "anonymous"
	dateLayout    = "2006-01-02"
	// loadedCacheSize bounds the counters held in memory. An evicted counter
	// reads as unloaded until the next Load.
	loadedCacheSize = 100_000
)

// DailyUsage is the persisted counter of one feature for one user.
// Date is the UTC calendar day the count belongs to.
type DailyUsage struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// PremiumSource answers from cached entitlement state, without I/O.
type PremiumSource interface {
	IsPremium(userID string) bool
}

type Snapshot struct {
	Feature   string `json:"feature"`
	Date      string `json:"date"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	CanUse    bool   `json:"can_use"`
	Loaded    bool   `json:"loaded"`
	IsPremium bool   `json:"is_premium"`
}

// Tracker counts per-day uses of metered features. Storage failures never
// block a user: loads fall back to a fresh zero count.
//
// A store that implements securestore.Counter keeps one integer per day
// under "<StorageKey>:<date>" and increments it in place, so instances
// sharing the store see every use. Other stores hold a DailyUsage record.
type Tracker struct {
	store   securestore.Store
	counter securestore.Counter
	premium PremiumSource
	cfg     config.UsageConfig
	log     *zap.SugaredLogger
	metrics *metrics.Business
	now     tool.Clock

	mu     sync.Mutex
	loaded *lru.Cache[string, *DailyUsage]
}

func NewTracker(store securestore.Store, premium PremiumSource, cfg *config.Config, log *zap.SugaredLogger, m *metrics.Business) *Tracker {
	return newSizedTracker(store, premium, cfg, log, m, loadedCacheSize)
}

func newSizedTracker(store securestore.Store, premium PremiumSource, cfg *config.Config, log *zap.SugaredLogger, m *metrics.Business, size int) *Tracker {
	loaded, err := lru.New[string, *DailyUsage](size)
	if err != nil {
		panic(fmt.Sprintf("usage cache: %v", err))
	}
	counter, _ := store.(securestore.Counter)
	return &Tracker{
		store:   store,
		counter: counter,
		premium: premium,
		cfg:     cfg.Usage,
		log:     log,
		metrics: m,
		now:     tool.UTCNow,
		loaded:  loaded,
	}
}

// WithClock replaces the time source; tests pin "now" with it.
func (t *Tracker) WithClock(c tool.Clock) *Tracker {
	t.now = c
	return t
}

// StorageKey is daily_usage_<feature>_<user>, with "anonymous" standing in
// for a signed-out user.
func StorageKey(feature, userID string) string {
	if userID == "" {
		userID = anonymousUser
	}
	return "daily_usage_" + feature + "_" + userID
}

func dailyKey(key, date string) string {
	return key + ":" + date
}

// Limit is the configured daily cap of feature.
func (t *Tracker) Limit(feature string) int {
	return t.cfg.LimitFor(feature)
}

func (t *Tracker) today() string {
	return t.now().UTC().Format(dateLayout)
}

// Load reads the stored counter, replacing a record from an earlier day
// with a zero count for today.
func (t *Tracker) Load(ctx context.Context, userID, feature string) *DailyUsage {
	key := StorageKey(feature, userID)
	today := t.today()
	lg := logctx.FromCtx(ctx, t.log).With("key", key)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.counter != nil {
		return t.loadCount(ctx, key, today, lg)
	}

	raw, err := t.store.Get(ctx, key)
	switch {
	case err == nil:
		var u DailyUsage
		if jerr := json.Unmarshal([]byte(raw), &u); jerr != nil {
			lg.Warnw("failed to decode daily usage, starting from zero", "err", jerr)
			return t.cache(key, &DailyUsage{Date: today})
		}
		if u.Date == today {
			return t.cache(key, &u)
		}
	case errors.Is(err, securestore.ErrNotFound):
	default:
		lg.Warnw("failed to load daily usage, starting from zero", "err", err)
		return t.cache(key, &DailyUsage{Date: today})
	}

	fresh := &DailyUsage{Date: today}
	if err := t.persist(ctx, key, fresh); err != nil {
		lg.Warnw("failed to save daily usage", "err", err)
	}
	return t.cache(key, fresh)
}

func (t *Tracker) loadCount(ctx context.Context, key, today string, lg *zap.SugaredLogger) *DailyUsage {
	u := &DailyUsage{Date: today}
	raw, err := t.store.Get(ctx, dailyKey(key, today))
	switch {
	case err == nil:
		n, cerr := strconv.Atoi(raw)
		if cerr != nil {
			lg.Warnw("failed to decode daily usage, starting from zero", "err", cerr)
			break
		}
		u.Count = n
	case errors.Is(err, securestore.ErrNotFound):
	default:
		lg.Warnw("failed to load daily usage, starting from zero", "err", err)
	}
	return t.cache(key, u)
}

func (t *Tracker) cache(key string, u *DailyUsage) *DailyUsage {
	t.loaded.Add(key, u)
	cp := *u
	return &cp
}

// count is today's count of key, 0 when unloaded or from an earlier day.
func (t *Tracker) count(key string) (int, bool) {
	u, ok := t.loaded.Get(key)
	if !ok {
		return 0, false
	}
	if u.Date != t.today() {
		return 0, true
	}
	return u.Count, true
}

// CanUse reports whether the user may use feature once more today. Premium
// users are never capped.
func (t *Tracker) CanUse(userID, feature string, dailyLimit int) bool {
	if userID != "" && t.premium != nil && t.premium.IsPremium(userID) {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.count(StorageKey(feature, userID))
	return n < dailyLimit
}

func (t *Tracker) Snapshot(userID, feature string, dailyLimit int) *Snapshot {
	premium := userID != "" && t.premium != nil && t.premium.IsPremium(userID)
	t.mu.Lock()
	defer t.mu.Unlock()
	n, loaded := t.count(StorageKey(feature, userID))
	return &Snapshot{
		Feature:   feature,
		Date:      t.today(),
		Count:     n,
		Limit:     dailyLimit,
		Remaining: max(0, dailyLimit-n),
		CanUse:    premium || n < dailyLimit,
		Loaded:    loaded,
		IsPremium: premium,
	}
}

// IncrementUsage adds one use and persists it before returning. It does
// nothing for a counter that was never loaded. On a storage failure the
// in-memory count is kept and the error wraps ErrStorage.
func (t *Tracker) IncrementUsage(ctx context.Context, userID, feature string) error {
	key := StorageKey(feature, userID)
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.loaded.Get(key)
	if !ok {
		t.metrics.UsageIncrement(feature, "not_loaded")
		return nil
	}
	if today := t.today(); u.Date != today {
		u = &DailyUsage{Date: today}
		t.loaded.Add(key, u)
	}
	u.Count++

	var err error
	if t.counter != nil {
		var n int64
		if n, err = t.counter.Incr(ctx, dailyKey(key, u.Date)); err == nil {
			u.Count = int(n)
		} else {
			err = fmt.Errorf("%w: %w", ErrStorage, err)
		}
	} else {
		err = t.persist(ctx, key, u)
	}
	if err != nil {
		logctx.FromCtx(ctx, t.log).Errorw("failed to save daily usage", "key", key, "err", err)
		t.metrics.UsageIncrement(feature, "storage_error")
		return err
	}
	t.metrics.UsageIncrement(feature, "ok")
	return nil
}

// ResetUsage sets today's count back to zero.
func (t *Tracker) ResetUsage(ctx context.Context, userID, feature string) error {
	key := StorageKey(feature, userID)
	t.mu.Lock()
	defer t.mu.Unlock()

	u := &DailyUsage{Date: t.today()}
	t.loaded.Add(key, u)
	var err error
	if t.counter != nil {
		if err = t.store.Set(ctx, dailyKey(key, u.Date), "0"); err != nil {
			err = fmt.Errorf("%w: %w", ErrStorage, err)
		}
	} else {
		err = t.persist(ctx, key, u)
	}
	if err != nil {
		logctx.FromCtx(ctx, t.log).Errorw("failed to reset daily usage", "key", key, "err", err)
		return err
	}
	return nil
}

func (t *Tracker) persist(ctx context.Context, key string, u *DailyUsage) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := t.store.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewTracker),
)
