package notify

import (
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/entitlement/pkg/tool"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

const defaultCapacity = 20

// Notification is a user-visible alert, the server-side form of a client
// alert dialog.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Inbox keeps the most recent notifications per user until the client drains
// them. Notify never blocks; the oldest entry is dropped when a box is full.
type Inbox struct {
	log      *zap.SugaredLogger
	capacity int
	now      tool.Clock

	mu    sync.Mutex
	boxes map[string][]*Notification
}

func NewInbox(log *zap.SugaredLogger, capacity int) *Inbox {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Inbox{log: log, capacity: capacity, now: tool.UTCNow, boxes: map[string][]*Notification{}}
}

func (b *Inbox) Info(userID, title, message string) {
	b.Notify(userID, &Notification{Level: LevelInfo, Title: title, Message: message})
}

func (b *Inbox) Error(userID, title, message string) {
	b.Notify(userID, &Notification{Level: LevelError, Title: title, Message: message})
}

// Notify queues n for userID. Anonymous users have no inbox; their
// notifications are only logged.
func (b *Inbox) Notify(userID string, n *Notification) {
	if b == nil || n == nil {
		return
	}
	if n.ID == "" {
		n.ID = tool.GenerateUUIDV7()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = b.now()
	}
	if userID == "" {
		b.log.Infow("notification for anonymous user", "title", n.Title, "message", n.Message)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	box := append(b.boxes[userID], n)
	if over := len(box) - b.capacity; over > 0 {
		b.log.Debugw("notification inbox full, dropping oldest", "user_id", userID, "dropped", over)
		box = append([]*Notification(nil), box[over:]...)
	}
	b.boxes[userID] = box
}

// Drain returns the queued notifications of userID oldest first and empties
// the box.
func (b *Inbox) Drain(userID string) []*Notification {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	box := b.boxes[userID]
	delete(b.boxes, userID)
	return box
}

// Pending reports how many notifications are queued for userID.
func (b *Inbox) Pending(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.boxes[userID])
}

func newInbox(log *zap.SugaredLogger) *Inbox { return NewInbox(log, defaultCapacity) }

var Module = fx.Options(
	fx.Provide(newInbox),
)
