package cards

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/svc/ledger"
)

// State is the saved card lifecycle. Providers require explicit remote
// revocation before local deletion is safe, so cards are never hard-deleted:
// a revoked row keeps its identity and may be reactivated when the user
// verifies the same physical card again.
type State string

const (
	StateActive      State = "active"
	StateRevoked     State = "revoked"
	StateReactivated State = "reactivated"
)

// SavedCard is a provider-issued reusable charge handle bound to one chat
// identity. At most one card per (telegram id, provider) pair.
type SavedCard struct {
	ID         uuid.UUID
	TelegramID int64
	Provider   ledger.Provider
	Token      string // opaque provider charge token
	PANHash    string // SHA-256 of the raw card number, for revive-on-same-card
	MaskedPAN  string
	State      State
	VerifiedAt time.Time
	RevokedAt  *time.Time
}

// Usable reports whether the card can be charged.
func (c *SavedCard) Usable() bool {
	return c.State == StateActive || c.State == StateReactivated
}

// Revoke moves the card out of service, keeping the row for audit and
// possible reactivation. Idempotent.
func (c *SavedCard) Revoke(now time.Time) {
	if c.State == StateRevoked {
		return
	}
	c.State = StateRevoked
	c.RevokedAt = &now
}

// Reactivate revives a revoked card with a fresh provider token.
func (c *SavedCard) Reactivate(token string, now time.Time) {
	c.Token = token
	c.State = StateReactivated
	c.VerifiedAt = now
	c.RevokedAt = nil
}
