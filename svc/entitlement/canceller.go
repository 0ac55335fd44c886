package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/svc/cards"
	"github.com/dmitrymomot/subpay/svc/ledger"
)

// TokenRevoker revokes a saved card token at the provider. Implementations
// live in the provider modules and must enforce their own request timeouts.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, card cards.SavedCard) error
}

// Canceller is the only path that removes access. Remote token revocation is
// attempted per card but never blocks the local teardown; the whole
// operation is idempotent.
type Canceller struct {
	users    UserRepository
	subs     SubscriptionRepository
	cards    cards.Repository
	revokers map[ledger.Provider]TokenRevoker
	log      *slog.Logger
	now      func() time.Time
}

func NewCanceller(users UserRepository, subs SubscriptionRepository, cardRepo cards.Repository, revokers map[ledger.Provider]TokenRevoker, log *slog.Logger) *Canceller {
	if log == nil {
		log = logger.Discard()
	}
	return &Canceller{
		users:    users,
		subs:     subs,
		cards:    cardRepo,
		revokers: revokers,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Cancel tears down a user's subscription: revokes every usable saved card
// remotely (failures are logged, never fatal), soft-revokes the cards
// locally, cancels all active subscription records and flips the user off.
func (c *Canceller) Cancel(ctx context.Context, userID uuid.UUID) error {
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	now := c.now()

	saved, err := c.cards.ListUsable(ctx, user.TelegramID)
	if err != nil {
		return fmt.Errorf("list saved cards: %w", err)
	}
	for _, card := range saved {
		if revoker, ok := c.revokers[card.Provider]; ok {
			if err := revoker.RevokeToken(ctx, card); err != nil {
				c.log.ErrorContext(ctx, "remote token revocation failed",
					logger.Error(err), logger.Provider(string(card.Provider)), logger.UserID(userID))
			}
		}
		card.Revoke(now)
		if err := c.cards.Update(ctx, &card); err != nil {
			return fmt.Errorf("revoke card locally: %w", err)
		}
	}

	if _, err := c.subs.DeactivateActive(ctx, user.ID, StatusCancelled, now); err != nil {
		return fmt.Errorf("deactivate records: %w", err)
	}

	user.IsActive = false
	user.SubscriptionEnd = &now
	if err := c.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	return nil
}
