package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subpay/svc/billing"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

type engineFixture struct {
	txs      *ledger.MemoryRepository
	users    *entitlement.MemoryUserRepository
	subs     *entitlement.MemorySubscriptionRepository
	payments *entitlement.MemoryPaymentRepository
	notifier *recordingNotifier
	engine   *billing.Engine
	user     *entitlement.User

	clock *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu        sync.Mutex
	activated []uuid.UUID
	revoked   []uuid.UUID
}

func (n *recordingNotifier) SubscriptionActivated(ctx context.Context, user *entitlement.User, p plan.Plan) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activated = append(n.activated, user.ID)
	return nil
}

func (n *recordingNotifier) SubscriptionRevoked(ctx context.Context, user *entitlement.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revoked = append(n.revoked, user.ID)
	return nil
}

func (n *recordingNotifier) activatedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.activated)
}

var testPlans = plan.NewInMemSource(
	plan.Plan{ID: "premium", Name: "Premium", Price: 999900, DurationDays: 30, Type: plan.TypeSubscription},
	plan.Plan{ID: "lifetime", Name: "Lifetime", Price: 999900, Type: plan.TypeOnetime},
)

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		txs:      ledger.NewMemoryRepository(),
		users:    entitlement.NewMemoryUserRepository(),
		subs:     entitlement.NewMemorySubscriptionRepository(),
		payments: entitlement.NewMemoryPaymentRepository(),
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	activator := entitlement.NewActivator(f.users, f.subs, f.payments, nil)
	f.engine = billing.NewEngine(f.txs, f.users, testPlans, activator, billing.NopRunner{},
		billing.WithNotifier(f.notifier), billing.WithClock(f.clock.Now))

	f.user = &entitlement.User{ID: uuid.New(), TelegramID: 100500}
	require.NoError(t, f.users.Create(context.Background(), f.user))
	return f
}

func (f *engineFixture) prepare(t *testing.T, transID string) *ledger.Transaction {
	t.Helper()
	tx, err := f.engine.Prepare(context.Background(), billing.PrepareRequest{
		Provider: ledger.ProviderClick,
		TransID:  transID,
		UserID:   f.user.ID,
		PlanID:   "premium",
		Amount:   999900,
	})
	require.NoError(t, err)
	return tx
}

func TestEnginePrepare(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates a pending prepared transaction", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		tx := f.prepare(t, "ext-1")
		assert.Equal(t, ledger.StatePending, tx.State)
		assert.Equal(t, ledger.SubStatePrepared, tx.SubState)
		assert.EqualValues(t, 999900, tx.Amount)
	})

	t.Run("unknown plan creates nothing", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		_, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1",
			UserID: f.user.ID, PlanID: "missing", Amount: 999900,
		})
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)

		_, err = f.txs.GetByTransID(ctx, ledger.ProviderClick, "ext-1")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("unknown user creates nothing", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		_, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1",
			UserID: uuid.New(), PlanID: "premium", Amount: 999900,
		})
		assert.ErrorIs(t, err, entitlement.ErrUserNotFound)
	})

	t.Run("amount mismatch creates nothing", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		_, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1",
			UserID: f.user.ID, PlanID: "premium", Amount: 999800,
		})
		assert.ErrorIs(t, err, billing.ErrInvalidAmount)

		_, err = f.txs.GetByTransID(ctx, ledger.ProviderClick, "ext-1")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("active subscriber gets success-shaped rejection", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		end := f.clock.Now().AddDate(0, 0, 10)
		f.user.IsActive = true
		f.user.SubscriptionEnd = &end
		require.NoError(t, f.users.Update(ctx, f.user))

		_, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1",
			UserID: f.user.ID, PlanID: "premium", Amount: 999900,
		})
		assert.ErrorIs(t, err, billing.ErrAlreadySubscribed)
	})

	t.Run("same external id is an idempotent retry", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		first := f.prepare(t, "ext-1")
		second := f.prepare(t, "ext-1")
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("competing external id while pending is refused", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		f.prepare(t, "ext-1")
		_, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderClick, TransID: "ext-2",
			UserID: f.user.ID, PlanID: "premium", Amount: 999900,
		})
		assert.ErrorIs(t, err, billing.ErrPendingExists)
	})

	t.Run("callback providers reuse the open order across external ids", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		first := f.prepare(t, "ext-1")
		second, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderClick, TransID: "ext-2",
			UserID: f.user.ID, PlanID: "premium", Amount: 999900,
			ReuseOpenOrder: true,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "ext-1", second.TransID, "row identity unchanged")
	})

	t.Run("expired pending is timed out and replaced by a new external id", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		stale, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderPayme, TransID: "ext-1",
			UserID: f.user.ID, PlanID: "premium", Amount: 999900,
			PendingTimeout: 15 * time.Minute,
		})
		require.NoError(t, err)

		f.clock.Advance(16 * time.Minute)

		fresh, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderPayme, TransID: "ext-2",
			UserID: f.user.ID, PlanID: "premium", Amount: 999900,
			PendingTimeout: 15 * time.Minute,
		})
		require.NoError(t, err)
		assert.NotEqual(t, stale.ID, fresh.ID)

		staleRow, err := f.txs.GetByTransID(ctx, ledger.ProviderPayme, "ext-1")
		require.NoError(t, err)
		assert.Equal(t, ledger.StateCanceled, staleRow.State)
		assert.Equal(t, ledger.ReasonTimeout, staleRow.CancelReason)
	})

	t.Run("expired pending retried with same id reports expiry", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		_, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderPayme, TransID: "ext-1",
			UserID: f.user.ID, PlanID: "premium", Amount: 999900,
			PendingTimeout: 15 * time.Minute,
		})
		require.NoError(t, err)

		f.clock.Advance(16 * time.Minute)

		_, err = f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderPayme, TransID: "ext-1",
			UserID: f.user.ID, PlanID: "premium", Amount: 999900,
			PendingTimeout: 15 * time.Minute,
		})
		assert.ErrorIs(t, err, billing.ErrExpired)
	})
}

func TestEngineComplete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("pays and grants entitlement atomically", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		prep := f.prepare(t, "ext-1")

		tx, err := f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderClick, PrepareID: prep.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, ledger.StatePaid, tx.State)
		require.NotNil(t, tx.PerformTime)

		user, err := f.users.GetByID(ctx, f.user.ID)
		require.NoError(t, err)
		assert.True(t, user.IsActive)

		active, err := f.subs.ListActive(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		assert.Equal(t, 1, f.notifier.activatedCount())
	})

	t.Run("second complete is idempotent", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		prep := f.prepare(t, "ext-1")

		first, err := f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderClick, PrepareID: prep.ID,
		})
		require.NoError(t, err)

		second, err := f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderClick, PrepareID: prep.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, first.PerformTime, second.PerformTime)

		active, err := f.subs.ListActive(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Len(t, active, 1, "no double grant")
		assert.Equal(t, 1, f.notifier.activatedCount(), "no second notification")
	})

	t.Run("unknown prepare id", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		_, err := f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderClick, PrepareID: uuid.New(),
		})
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("upstream failure moves to FAILED with supplied reason, user untouched", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		prep := f.prepare(t, "ext-1")

		reason := int32(-5017)
		tx, err := f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderClick, PrepareID: prep.ID, FailureReason: &reason,
		})
		require.NoError(t, err, "ledger consistency is acknowledged as success")
		assert.Equal(t, ledger.StateFailed, tx.State)
		assert.Equal(t, reason, tx.CancelReason)

		user, err := f.users.GetByID(ctx, f.user.ID)
		require.NoError(t, err)
		assert.False(t, user.IsActive)
		assert.Zero(t, f.notifier.activatedCount())
	})

	t.Run("already canceled is terminal", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		prep := f.prepare(t, "ext-1")

		_, err := f.engine.Cancel(ctx, billing.CancelRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1", Reason: ledger.ReasonReceiverError,
		})
		require.NoError(t, err)

		_, err = f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderClick, PrepareID: prep.ID,
		})
		assert.ErrorIs(t, err, billing.ErrAlreadyCanceled)
	})

	t.Run("stale pending expires on complete", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		prep, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderPayme, TransID: "ext-1",
			UserID: f.user.ID, PlanID: "premium", Amount: 999900,
			PendingTimeout: 15 * time.Minute,
		})
		require.NoError(t, err)

		f.clock.Advance(time.Hour)

		_, err = f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderPayme, TransID: "ext-1",
			PendingTimeout: 15 * time.Minute,
		})
		assert.ErrorIs(t, err, billing.ErrExpired)

		row, err := f.txs.GetByID(ctx, prep.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.StateCanceled, row.State)
		assert.Equal(t, ledger.ReasonTimeout, row.CancelReason)
	})

	t.Run("lifetime plan grants a century window", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		prep, err := f.engine.Prepare(ctx, billing.PrepareRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1",
			UserID: f.user.ID, PlanID: "lifetime", Amount: 999900,
		})
		require.NoError(t, err)

		_, err = f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderClick, PrepareID: prep.ID,
		})
		require.NoError(t, err)

		user, err := f.users.GetByID(ctx, f.user.ID)
		require.NoError(t, err)
		require.NotNil(t, user.SubscriptionEnd)
		assert.WithinDuration(t, time.Now().UTC().AddDate(100, 0, 0), *user.SubscriptionEnd, 48*time.Hour)
	})
}

func TestEngineCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("paid to canceled keeps entitlement", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		prep := f.prepare(t, "ext-1")

		_, err := f.engine.Complete(ctx, billing.CompleteRequest{
			Provider: ledger.ProviderClick, PrepareID: prep.ID,
		})
		require.NoError(t, err)

		tx, err := f.engine.Cancel(ctx, billing.CancelRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1", Reason: ledger.ReasonRefund,
		})
		require.NoError(t, err)
		assert.Equal(t, ledger.SubStatePaidCanceled, tx.SubState)

		// Provider-side refund does not strip access; only the Canceller does.
		user, err := f.users.GetByID(ctx, f.user.ID)
		require.NoError(t, err)
		assert.True(t, user.IsActive)
	})

	t.Run("cancel twice returns the same terminal row", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.prepare(t, "ext-1")

		first, err := f.engine.Cancel(ctx, billing.CancelRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1", Reason: ledger.ReasonReceiverError,
		})
		require.NoError(t, err)

		second, err := f.engine.Cancel(ctx, billing.CancelRequest{
			Provider: ledger.ProviderClick, TransID: "ext-1", Reason: ledger.ReasonRefund,
		})
		require.NoError(t, err)
		assert.Equal(t, first.CancelReason, second.CancelReason, "reason not overwritten")
	})
}

func TestEngineCheckAndStatement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	prep := f.prepare(t, "ext-1")

	_, err := f.engine.Complete(ctx, billing.CompleteRequest{
		Provider: ledger.ProviderClick, PrepareID: prep.ID,
	})
	require.NoError(t, err)

	t.Run("check replays persisted state", func(t *testing.T) {
		tx, err := f.engine.Check(ctx, ledger.ProviderClick, "ext-1")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatePaid, tx.State)
		assert.NotNil(t, tx.PerformTime)

		_, err = f.engine.Check(ctx, ledger.ProviderClick, "missing")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("statement lists the paid window", func(t *testing.T) {
		now := f.clock.Now()
		list, err := f.engine.Statement(ctx, ledger.ProviderClick, now.Add(-time.Hour), now.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "ext-1", list[0].TransID)
	})
}
