package pending

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no pending content is stored for the user.
var ErrNotFound = errors.New("no pending content")

// Store keeps the content a user asked about before paying, so it can be
// delivered automatically once the subscription activates. Entries expire;
// a stale request must not resurface days later.
type Store interface {
	Put(ctx context.Context, telegramID int64, content string, ttl time.Duration) error
	Pop(ctx context.Context, telegramID int64) (string, error)
}
