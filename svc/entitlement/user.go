package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/svc/plan"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
)

// User is a subscriber. `IsActive && SubscriptionEnd > now` is the single
// source of truth for access; only the Activator and the Canceller mutate it.
type User struct {
	ID                uuid.UUID
	TelegramID        int64
	IsActive          bool
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	SubscriptionType  plan.SubscriptionType
}

// HasAccess reports whether the user's entitlement window covers now.
func (u *User) HasAccess(now time.Time) bool {
	return u.IsActive && u.SubscriptionEnd != nil && u.SubscriptionEnd.After(now)
}

// UserRepository resolves and persists subscribers.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
}
