package iap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/fx"

	"github.com/fatflowers/entitlement/pkg/config"
	"github.com/fatflowers/entitlement/pkg/types"
)

var (
	ErrNotConnected = errors.New("billing connection is not initialized")
	ErrNoPurchase   = errors.New("event carries no purchase")
)

const defaultQueueSize = 64

// bridgeLimits bound what the bridge remembers. The least recently used
// entry goes first; an evicted finished transaction reads as unfinished and
// its redelivery commits idempotently.
type bridgeLimits struct {
	products int
	users    int
	finished int
}

var defaultLimits = bridgeLimits{products: 1024, users: 100_000, finished: 100_000}

// Bridge implements Platform for a server whose billing API lives on the
// device. The device reports products, purchases and errors over HTTP; the
// bridge turns them into events and keeps the requests and finished
// transactions the device polls for.
type Bridge struct {
	events chan *Event

	mu        sync.Mutex
	connected bool
	products  *lru.Cache[string, *Product]
	available *lru.Cache[string, []*Purchase]
	requests  *lru.Cache[string, *SubscriptionRequest]
	finished  *lru.Cache[string, struct{}]
}

func NewBridge(queueSize int) *Bridge {
	return newLimitedBridge(queueSize, defaultLimits)
}

func newLimitedBridge(queueSize int, limits bridgeLimits) *Bridge {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bridge{
		events:    make(chan *Event, queueSize),
		products:  mustLRU[*Product](limits.products),
		available: mustLRU[[]*Purchase](limits.users),
		requests:  mustLRU[*SubscriptionRequest](limits.users),
		finished:  mustLRU[struct{}](limits.finished),
	}
}

func mustLRU[V any](size int) *lru.Cache[string, V] {
	c, err := lru.New[string, V](size)
	if err != nil {
		panic(fmt.Sprintf("bridge cache: %v", err))
	}
	return c
}

func (b *Bridge) InitConnection(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *Bridge) EndConnection(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Bridge) Events() <-chan *Event { return b.events }

// ReportProducts records the store products the device fetched.
func (b *Bridge) ReportProducts(products []*Product) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range products {
		if p != nil && p.ProductID != "" {
			cp := *p
			b.products.Add(p.ProductID, &cp)
		}
	}
}

// GetSubscriptions returns the reported products among productIDs, in
// productIDs order. Unknown ids are skipped.
func (b *Bridge) GetSubscriptions(_ context.Context, productIDs []string) ([]*Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := make([]*Product, 0, len(productIDs))
	for _, id := range productIDs {
		if p, ok := b.products.Get(id); ok {
			cp := *p
			res = append(res, &cp)
		}
	}
	return res, nil
}

// RequestSubscription queues req for the device to launch the store sheet.
// A newer request for the same user replaces the older one.
func (b *Bridge) RequestSubscription(_ context.Context, req *SubscriptionRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	cp := *req
	b.requests.Add(req.UserID, &cp)
	return nil
}

// PendingRequest returns and clears the user's queued request.
func (b *Bridge) PendingRequest(userID string) (*SubscriptionRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests.Get(userID)
	b.requests.Remove(userID)
	return req, ok
}

// ReportAvailable replaces the purchases the store holds for userID.
func (b *Bridge) ReportAvailable(userID string, purchases []*Purchase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := make([]*Purchase, 0, len(purchases))
	for _, p := range purchases {
		if p == nil {
			continue
		}
		cp := *p
		cp.UserID = userID
		list = append(list, &cp)
	}
	b.available.Add(userID, list)
}

func (b *Bridge) GetAvailablePurchases(_ context.Context, userID string) ([]*Purchase, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, ErrNotConnected
	}
	src, _ := b.available.Get(userID)
	res := make([]*Purchase, 0, len(src))
	for _, p := range src {
		cp := *p
		res = append(res, &cp)
	}
	return res, nil
}

// FinishTransaction marks the transaction acknowledged. Repeated calls are
// no-ops.
func (b *Bridge) FinishTransaction(_ context.Context, p *Purchase) error {
	if p == nil {
		return ErrNoPurchase
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished.Add(finishKey(p.Platform, p.TransactionID), struct{}{})
	return nil
}

func (b *Bridge) Finished(platform types.Platform, transactionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished.Contains(finishKey(platform, transactionID))
}

func finishKey(platform types.Platform, transactionID string) string {
	return string(platform) + ":" + transactionID
}

// Deliver enqueues a purchase update and waits for the consumer's outcome.
func (b *Bridge) Deliver(ctx context.Context, p *Purchase) error {
	if p == nil {
		return ErrNoPurchase
	}
	cp := *p
	return b.send(ctx, NewEvent(EventPurchaseUpdated, &cp, nil))
}

// Fail enqueues a purchase error and waits until it is handled.
func (b *Bridge) Fail(ctx context.Context, perr *PurchaseError) error {
	return b.send(ctx, NewEvent(EventPurchaseError, nil, perr))
}

func (b *Bridge) send(ctx context.Context, ev *Event) error {
	if !b.Connected() {
		return ErrNotConnected
	}
	select {
	case b.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	return ev.Wait(ctx)
}

func newBridge(cfg *config.Config) *Bridge {
	return NewBridge(cfg.Purchase.EventQueueSize)
}

var Module = fx.Options(
	fx.Provide(newBridge),
	fx.Provide(func(b *Bridge) Platform { return b }),
)
