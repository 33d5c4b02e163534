package purchase

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// attemptCacheSize bounds the users whose latest attempt is remembered. An
// evicted user reads as idle.
const attemptCacheSize = 100_000

type AttemptState string

const (
	AttemptIdle      AttemptState = "idle"
	AttemptPending   AttemptState = "pending"
	AttemptValidated AttemptState = "validated"
	AttemptCommitted AttemptState = "committed"
	AttemptRejected  AttemptState = "rejected"
	AttemptError     AttemptState = "error"
)

var attemptTransitions = map[AttemptState][]AttemptState{
	AttemptIdle:      {AttemptPending},
	AttemptPending:   {AttemptPending, AttemptValidated, AttemptRejected, AttemptError},
	AttemptValidated: {AttemptCommitted, AttemptError},
	AttemptCommitted: {AttemptIdle, AttemptPending},
	AttemptRejected:  {AttemptIdle},
	AttemptError:     {AttemptIdle},
}

// Attempt is the progress of the latest purchase of a user.
type Attempt struct {
	UserID    string       `json:"user_id"`
	State     AttemptState `json:"state"`
	ProductID string       `json:"product_id,omitempty"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type attempts struct {
	mu    sync.Mutex
	now   func() time.Time
	users *lru.Cache[string, *Attempt]
}

func newAttempts(now func() time.Time, size int) *attempts {
	users, err := lru.New[string, *Attempt](size)
	if err != nil {
		panic(fmt.Sprintf("attempt cache: %v", err))
	}
	return &attempts{now: now, users: users}
}

func (a *attempts) get(userID string) Attempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	if at, ok := a.users.Get(userID); ok {
		return *at
	}
	return Attempt{UserID: userID, State: AttemptIdle}
}

// begin starts a new attempt. A finished rejected or failed attempt is reset
// to idle first.
func (a *attempts) begin(userID, productID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	at := a.load(userID)
	if at.State == AttemptRejected || at.State == AttemptError {
		if err := a.move(at, AttemptIdle, ""); err != nil {
			return err
		}
	}
	at.ProductID = productID
	return a.move(at, AttemptPending, "")
}

func (a *attempts) to(userID string, next AttemptState, cause error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return a.move(a.load(userID), next, msg)
}

func (a *attempts) load(userID string) *Attempt {
	at, ok := a.users.Get(userID)
	if !ok {
		at = &Attempt{UserID: userID, State: AttemptIdle}
		a.users.Add(userID, at)
	}
	return at
}

func (a *attempts) move(at *Attempt, next AttemptState, msg string) error {
	for _, allowed := range attemptTransitions[at.State] {
		if allowed == next {
			at.State = next
			at.Error = msg
			at.UpdatedAt = a.now()
			return nil
		}
	}
	return fmt.Errorf("invalid purchase attempt transition %s -> %s", at.State, next)
}
