package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subpay/pkg/logger"
)

// Sweeper is the interface surface for the external periodic collaborator
// that expires and renews subscriptions. The scheduler itself lives outside
// this service; it only calls CheckExpiring and HandleExpired.
type Sweeper struct {
	users UserRepository
	subs  SubscriptionRepository
	log   *slog.Logger
	now   func() time.Time

	// NoticeWindow is how far ahead CheckExpiring looks.
	NoticeWindow time.Duration
}

func NewSweeper(users UserRepository, subs SubscriptionRepository, log *slog.Logger) *Sweeper {
	if log == nil {
		log = logger.Discard()
	}
	return &Sweeper{
		users:        users,
		subs:         subs,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		NoticeWindow: 24 * time.Hour,
	}
}

// CheckExpiring lists active records that end within the notice window,
// so the caller can attempt token-based renewal or warn the user.
func (s *Sweeper) CheckExpiring(ctx context.Context) ([]SubscriptionRecord, error) {
	return s.subs.ListExpiring(ctx, s.now().Add(s.NoticeWindow))
}

// HandleExpired deactivates records whose window has closed and flips the
// owning users off. Safe to call repeatedly.
func (s *Sweeper) HandleExpired(ctx context.Context) error {
	now := s.now()

	expired, err := s.subs.ListExpiring(ctx, now)
	if err != nil {
		return fmt.Errorf("list expired: %w", err)
	}

	for _, rec := range expired {
		if _, err := s.subs.DeactivateActive(ctx, rec.UserID, StatusExpired, now); err != nil {
			return fmt.Errorf("expire records for user %s: %w", rec.UserID, err)
		}

		user, err := s.users.GetByID(ctx, rec.UserID)
		if err != nil {
			s.log.ErrorContext(ctx, "expired record for unknown user",
				logger.Error(err), logger.UserID(rec.UserID))
			continue
		}
		user.IsActive = false
		if err := s.users.Update(ctx, user); err != nil {
			return fmt.Errorf("deactivate user %s: %w", rec.UserID, err)
		}
	}

	return nil
}
