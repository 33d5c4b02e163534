package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fatflowers/entitlement/internal/models"
)

// statusCacheSize bounds the users whose status is held in memory. The
// least recently used entry is dropped first; IsPremium then reads false
// until the next check.
const statusCacheSize = 100_000

// Status is the derived entitlement of a user at CheckedAt.
type Status struct {
	UserID       string                   `json:"user_id"`
	IsPremium    bool                     `json:"is_premium"`
	Subscription *models.UserSubscription `json:"subscription"`
	CheckedAt    time.Time                `json:"checked_at"`
}

// CheckSubscriptionStatus re-derives the user's status from the store and
// caches it. An expired active record is moved to expired on the way; when
// that write fails the error is returned and nothing is cached.
// The result is cached only while ctx is live and no later check for the
// same user has been applied first; a cancelled check returns ctx.Err().
func (s *Service) CheckSubscriptionStatus(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return &Status{CheckedAt: s.now()}, nil
	}
	seq := s.cache.begin()
	start := time.Now()
	defer s.metrics.ObserveProcess("status", "check", start)

	rec, err := s.QueryActive(ctx, userID)
	if err != nil {
		s.metrics.StatusCheck("error")
		return nil, err
	}

	now := s.now()
	st := &Status{UserID: userID, CheckedAt: now}
	switch {
	case rec == nil:
	case rec.EndDate.After(now):
		st.IsPremium = true
		st.Subscription = rec
	default:
		if err := s.MarkExpired(ctx, rec.ID); err != nil {
			s.metrics.StatusCheck("error")
			return nil, fmt.Errorf("failed to mark subscription %s expired: %w", rec.ID, err)
		}
	}

	if err := ctx.Err(); err != nil {
		s.metrics.StatusCheck("discarded")
		return nil, err
	}
	if !s.cache.apply(seq, st) {
		s.metrics.StatusCheck("discarded")
		return st, nil
	}
	if st.IsPremium {
		s.metrics.StatusCheck("premium")
	} else {
		s.metrics.StatusCheck("free")
	}
	return st, nil
}

// IsPremium reads the cached status only. It can lag the store until the
// next CheckSubscriptionStatus for the user.
func (s *Service) IsPremium(userID string) bool {
	st, ok := s.cache.get(userID)
	return ok && st.IsPremium && st.Subscription.ActiveAt(s.now())
}

// Current returns the cached status and whether the user was ever checked.
func (s *Service) Current(userID string) (*Status, bool) {
	return s.cache.get(userID)
}

// Subscribe registers an observer of status changes. Notifications are
// dropped for a subscriber whose buffer is full. Call the returned func to
// unsubscribe.
func (s *Service) Subscribe(buffer int) (<-chan *Status, func()) {
	return s.cache.subscribe(buffer)
}

type cachedStatus struct {
	status  *Status
	applied uint64
}

// statusCache keeps the latest applied status per user. Sequence numbers are
// global, so a check that began before a newer one never overwrites it.
type statusCache struct {
	mu      sync.Mutex
	seq     uint64
	entries *lru.Cache[string, *cachedStatus]
	subs    map[int]chan *Status
	nextSub int
}

func newStatusCache(size int) *statusCache {
	entries, err := lru.New[string, *cachedStatus](size)
	if err != nil {
		panic(fmt.Sprintf("status cache: %v", err))
	}
	return &statusCache{
		entries: entries,
		subs:    map[int]chan *Status{},
	}
}

func (c *statusCache) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *statusCache) apply(seq uint64, st *Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, seen := c.entries.Get(st.UserID)
	if seen && seq <= prev.applied {
		return false
	}
	c.entries.Add(st.UserID, &cachedStatus{status: st, applied: seq})
	if seen && !changed(prev.status, st) {
		return true
	}
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
		}
	}
	return true
}

func changed(a, b *Status) bool {
	if a.IsPremium != b.IsPremium {
		return true
	}
	if (a.Subscription == nil) != (b.Subscription == nil) {
		return true
	}
	return a.Subscription != nil &&
		(a.Subscription.ID != b.Subscription.ID || !a.Subscription.EndDate.Equal(b.Subscription.EndDate))
}

func (c *statusCache) get(userID string) (*Status, bool) {
	e, ok := c.entries.Get(userID)
	if !ok {
		return nil, false
	}
	return e.status, true
}

func (c *statusCache) size() int { return c.entries.Len() }

func (c *statusCache) subscribe(buffer int) (<-chan *Status, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Status, buffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}
