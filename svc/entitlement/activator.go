package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

// Activator grants entitlement for paid transactions. It must be called
// inside the same unit of work that transitions the transaction to PAID:
// the user, subscription record and ledger writes commit or roll back
// together. Only the payment audit row is best-effort.
type Activator struct {
	users    UserRepository
	subs     SubscriptionRepository
	payments PaymentRepository
	log      *slog.Logger
	now      func() time.Time
}

func NewActivator(users UserRepository, subs SubscriptionRepository, payments PaymentRepository, log *slog.Logger) *Activator {
	if log == nil {
		log = logger.Discard()
	}
	return &Activator{
		users:    users,
		subs:     subs,
		payments: payments,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Activate extends the user's entitlement window for a paid transaction.
func (a *Activator) Activate(ctx context.Context, tx *ledger.Transaction, p plan.Plan) error {
	user, err := a.users.GetByID(ctx, tx.UserID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	now := a.now()
	end := p.ExpiryFrom(now)

	// Exactly one active record per user: close out any prior period first.
	if _, err := a.subs.DeactivateActive(ctx, user.ID, StatusCancelled, now); err != nil {
		return fmt.Errorf("deactivate prior records: %w", err)
	}

	rec := &SubscriptionRecord{
		ID:            uuid.New(),
		UserID:        user.ID,
		PlanID:        p.ID,
		TransactionID: &tx.ID,
		StartDate:     now,
		EndDate:       end,
		IsActive:      true,
		AutoRenew:     p.Type == plan.TypeSubscription,
		Status:        StatusActive,
		PaidAmount:    tx.Amount,
		CreatedAt:     now,
	}
	if err := a.subs.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert subscription record: %w", err)
	}

	user.IsActive = true
	user.SubscriptionStart = &now
	user.SubscriptionEnd = &end
	user.SubscriptionType = p.Type
	if err := a.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	// Audit trail is best-effort: a failed append must not unwind the grant.
	payment := &Payment{
		ID:       uuid.New(),
		UserID:   user.ID,
		Provider: string(tx.Provider),
		TransID:  tx.TransID,
		PlanID:   p.ID,
		Amount:   tx.Amount,
		PaidAt:   now,
	}
	if err := a.payments.Append(ctx, payment); err != nil {
		a.log.ErrorContext(ctx, "payment audit append failed",
			logger.Error(err), logger.UserID(user.ID), logger.TransID(tx.TransID))
	}

	return nil
}

// GrantTrial opens a trial entitlement window without a ledger transaction.
// Used once per provider when a user first verifies a card.
func (a *Activator) GrantTrial(ctx context.Context, userID uuid.UUID, p plan.Plan, days int) error {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if days <= 0 {
		return nil
	}

	now := a.now()
	end := now.AddDate(0, 0, days)

	if _, err := a.subs.DeactivateActive(ctx, user.ID, StatusCancelled, now); err != nil {
		return fmt.Errorf("deactivate prior records: %w", err)
	}

	rec := &SubscriptionRecord{
		ID:        uuid.New(),
		UserID:    user.ID,
		PlanID:    p.ID,
		StartDate: now,
		EndDate:   end,
		IsActive:  true,
		AutoRenew: true,
		Status:    StatusActive,
		CreatedAt: now,
	}
	if err := a.subs.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert trial record: %w", err)
	}

	user.IsActive = true
	user.SubscriptionStart = &now
	user.SubscriptionEnd = &end
	user.SubscriptionType = plan.TypeSubscription
	if err := a.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	return nil
}
