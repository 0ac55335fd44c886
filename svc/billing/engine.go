package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

// TxRunner executes a function inside one atomic unit of work.
// pg.PoolRunner satisfies it in production; NopRunner serves in-memory tests.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopRunner runs the unit of work without transactional guarantees.
type NopRunner struct{}

func (NopRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Notifier delivers chat messages after ledger commits. Implementations must
// enforce their own timeouts; the engine never awaits them inside a database
// transaction.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, user *entitlement.User, p plan.Plan) error
	SubscriptionRevoked(ctx context.Context, user *entitlement.User) error
}

// Engine owns the provider-agnostic payment state machine. Provider modules
// verify authenticity and decode their wire formats, then drive the engine
// through Prepare, Complete, Cancel and Check.
type Engine struct {
	txs       ledger.Repository
	users     entitlement.UserRepository
	plans     plan.Source
	activator *entitlement.Activator
	runner    TxRunner
	notifier  Notifier
	log       *slog.Logger
	now       func() time.Time
}

// Option configures optional engine collaborators.
type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(txs ledger.Repository, users entitlement.UserRepository, plans plan.Source, activator *entitlement.Activator, runner TxRunner, opts ...Option) *Engine {
	e := &Engine{
		txs:       txs,
		users:     users,
		plans:     plans,
		activator: activator,
		runner:    runner,
		log:       logger.Discard(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks whether a payment for the given account could be accepted,
// without touching the ledger. RPC providers probe this before creating a
// transaction.
func (e *Engine) Validate(ctx context.Context, userID uuid.UUID, planID string, amount Amount) error {
	p, err := plan.Find(ctx, e.plans, planID)
	if err != nil {
		return err
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasAccess(e.now()) {
		return ErrAlreadySubscribed
	}
	if int64(amount) != p.Price {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidAmount, amount, p.Price)
	}
	return nil
}

// PrepareRequest is the normalized first-contact call for a payment attempt.
// The adapter has already verified the caller's signature and parsed the
// amount before the engine sees it.
type PrepareRequest struct {
	Provider ledger.Provider
	TransID  string
	UserID   uuid.UUID
	PlanID   string
	Amount   Amount

	// PendingTimeout bounds how long a pending row stays valid.
	// Zero disables expiry (the callback provider relies on its own retries).
	PendingTimeout time.Duration

	// ReuseOpenOrder returns the existing unexpired pending row for the same
	// (user, plan) even when the external id differs. Callback providers can
	// do this because completion references the prepare id; RPC providers
	// must not, since they replay by their own transaction id.
	ReuseOpenOrder bool
}

// Prepare records a payment attempt and returns the ledger row whose id the
// provider presents again at completion. Safe to retry: the same external id
// always resolves to the same row.
func (e *Engine) Prepare(ctx context.Context, req PrepareRequest) (*ledger.Transaction, error) {
	now := e.now()

	p, err := plan.Find(ctx, e.plans, req.PlanID)
	if err != nil {
		return nil, err
	}

	user, err := e.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.HasAccess(now) {
		return nil, ErrAlreadySubscribed
	}

	if int64(req.Amount) != p.Price {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidAmount, req.Amount, p.Price)
	}

	// Same external id again is an idempotent retry of this very call.
	if existing, err := e.txs.GetByTransID(ctx, req.Provider, req.TransID); err == nil {
		switch {
		case existing.IsPaid():
			return nil, ErrAlreadyPaid
		case existing.IsCanceled():
			return nil, ErrAlreadyCanceled
		case existing.ExpiredAt(now, req.PendingTimeout):
			if err := e.cancelTx(ctx, existing, ledger.ReasonTimeout, now); err != nil {
				return nil, err
			}
			return nil, ErrExpired
		default:
			return existing, nil
		}
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	// A different external id while an order is still open: time out the
	// stale row if possible, otherwise refuse the competing create.
	if pending, err := e.txs.FindPending(ctx, req.Provider, req.UserID, req.PlanID); err == nil {
		if !pending.ExpiredAt(now, req.PendingTimeout) {
			if req.ReuseOpenOrder {
				return pending, nil
			}
			return nil, ErrPendingExists
		}
		if err := e.cancelTx(ctx, pending, ledger.ReasonTimeout, now); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	tx := ledger.New(req.Provider, req.TransID, req.UserID, req.PlanID, int64(req.Amount), now)
	if err := e.txs.Create(ctx, tx); err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransID) {
			// Lost the concurrent race: return the winner's row.
			return e.txs.GetByTransID(ctx, req.Provider, req.TransID)
		}
		return nil, err
	}

	e.log.InfoContext(ctx, "transaction prepared",
		logger.Provider(string(req.Provider)), logger.TransID(req.TransID),
		logger.PlanID(req.PlanID), logger.Amount(int64(req.Amount)))

	return tx, nil
}

// CompleteRequest is the second-contact call confirming or failing a
// prepared transaction. Either TransID or PrepareID identifies the row.
type CompleteRequest struct {
	Provider  ledger.Provider
	TransID   string
	PrepareID uuid.UUID

	// FailureReason, when non-nil, records an upstream-reported failure:
	// the ledger row moves to FAILED with this reason and the provider
	// still receives a success-shaped acknowledgment.
	FailureReason *int32

	PendingTimeout time.Duration
}

// Complete drives a pending transaction to its terminal state. Repeated
// calls for an already-paid row return the original result and run no side
// effects.
func (e *Engine) Complete(ctx context.Context, req CompleteRequest) (*ledger.Transaction, error) {
	now := e.now()

	tx, err := e.lookup(ctx, req.Provider, req.TransID, req.PrepareID)
	if err != nil {
		return nil, err
	}

	if tx.IsCanceled() {
		return nil, ErrAlreadyCanceled
	}
	if tx.IsPaid() {
		return tx, nil
	}

	if req.FailureReason != nil {
		if err := e.failTx(ctx, tx, *req.FailureReason, now); err != nil {
			return nil, err
		}
		e.log.InfoContext(ctx, "transaction failed upstream",
			logger.Provider(string(tx.Provider)), logger.TransID(tx.TransID),
			slog.Int("reason", int(*req.FailureReason)))
		return tx, nil
	}

	if tx.ExpiredAt(now, req.PendingTimeout) {
		if err := e.cancelTx(ctx, tx, ledger.ReasonTimeout, now); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	p, err := plan.Find(ctx, e.plans, tx.PlanID)
	if err != nil {
		return nil, err
	}

	// The paid transition and the entitlement grant commit or roll back as
	// one unit; a crash here leaves the row PENDING so the provider's retry
	// is safe.
	err = e.runner.WithinTx(ctx, func(ctx context.Context) error {
		if err := tx.MarkPaid(now); err != nil {
			return err
		}
		if err := e.txs.Update(ctx, tx); err != nil {
			return err
		}
		return e.activator.Activate(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "transaction performed",
		logger.Provider(string(tx.Provider)), logger.TransID(tx.TransID),
		logger.Amount(tx.Amount))

	e.notifyActivated(ctx, tx.UserID, p)

	return tx, nil
}

// CancelRequest is an explicit provider-side cancellation.
type CancelRequest struct {
	Provider ledger.Provider
	TransID  string
	Reason   int32
}

// Cancel moves a transaction to CANCELED. PAID rows are accepted as refund
// acknowledgments; the entitlement already granted is left untouched, only
// the Canceller removes access.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (*ledger.Transaction, error) {
	tx, err := e.txs.GetByTransID(ctx, req.Provider, req.TransID)
	if err != nil {
		return nil, err
	}

	if tx.IsCanceled() {
		return tx, nil
	}

	if err := e.cancelTx(ctx, tx, req.Reason, e.now()); err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "transaction canceled",
		logger.Provider(string(tx.Provider)), logger.TransID(tx.TransID),
		slog.Int("reason", int(req.Reason)))

	return tx, nil
}

// Check answers a provider's read-only state query from persisted fields,
// with no side effects.
func (e *Engine) Check(ctx context.Context, provider ledger.Provider, transID string) (*ledger.Transaction, error) {
	return e.txs.GetByTransID(ctx, provider, transID)
}

// Statement lists paid transactions in a time window.
func (e *Engine) Statement(ctx context.Context, provider ledger.Provider, from, to time.Time) ([]ledger.Transaction, error) {
	return e.txs.ListPaidBetween(ctx, provider, from, to)
}

func (e *Engine) lookup(ctx context.Context, provider ledger.Provider, transID string, prepareID uuid.UUID) (*ledger.Transaction, error) {
	if prepareID != uuid.Nil {
		tx, err := e.txs.GetByID(ctx, prepareID)
		if err != nil {
			return nil, err
		}
		if tx.Provider != provider {
			return nil, ledger.ErrNotFound
		}
		return tx, nil
	}
	return e.txs.GetByTransID(ctx, provider, transID)
}

func (e *Engine) cancelTx(ctx context.Context, tx *ledger.Transaction, reason int32, now time.Time) error {
	return e.runner.WithinTx(ctx, func(ctx context.Context) error {
		if err := tx.Cancel(reason, now); err != nil {
			return err
		}
		return e.txs.Update(ctx, tx)
	})
}

func (e *Engine) failTx(ctx context.Context, tx *ledger.Transaction, reason int32, now time.Time) error {
	return e.runner.WithinTx(ctx, func(ctx context.Context) error {
		if err := tx.Fail(reason, now); err != nil {
			return err
		}
		return e.txs.Update(ctx, tx)
	})
}

// notifyActivated runs strictly after the ledger commit; delivery failures
// are logged and never surface to the provider.
func (e *Engine) notifyActivated(ctx context.Context, userID uuid.UUID, p plan.Plan) {
	if e.notifier == nil {
		return
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		e.log.ErrorContext(ctx, "activated user lookup failed", logger.Error(err), logger.UserID(userID))
		return
	}
	if err := e.notifier.SubscriptionActivated(ctx, user, p); err != nil {
		e.log.ErrorContext(ctx, "activation notification failed", logger.Error(err), logger.UserID(userID))
	}
}
