package tool

import (
	"time"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock returns the current time. Services hold one so tests can pin "now".
type Clock func() time.Time

// UTCNow is the production Clock.
func UTCNow() time.Time { return time.Now().UTC() }
