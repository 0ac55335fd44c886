package paylink

import (
	"time"

	"github.com/google/uuid"
)

// PayClaims is the signed payload a pay link carries. The amount is kept
// in minor units so the checkout redirect cannot be tampered into a
// cheaper price.
type PayClaims struct {
	Provider  string    `json:"p"`
	PlanID    string    `json:"pl"`
	UserID    uuid.UUID `json:"u"`
	Amount    int64     `json:"a"`
	ExpiresAt int64     `json:"exp,omitempty"`
}

// Expired reports whether the link has a deadline in the past. Zero means
// the link never expires.
func (c PayClaims) Expired(now time.Time) bool {
	return c.ExpiresAt != 0 && now.Unix() > c.ExpiresAt
}

// cancelScope tags cancel tokens so a signed pay token cannot be replayed
// into the cancellation flow.
const cancelScope = "cancel"

// CancelClaims identifies the user behind a cancellation link.
type CancelClaims struct {
	UserID uuid.UUID `json:"u"`
	Scope  string    `json:"s"`
}
