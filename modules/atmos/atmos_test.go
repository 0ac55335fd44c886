package atmos_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subpay/modules/atmos"
	"github.com/dmitrymomot/subpay/svc/billing"
	"github.com/dmitrymomot/subpay/svc/cards"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

// fakeGateway scripts the provider side of the binding and pay flows.
type fakeGateway struct {
	otp       string
	applyErr  error
	nextPayID int
	applied   []string
	removed   []string
	resent    []string
}

func (g *fakeGateway) BindInit(ctx context.Context, cardNumber, expiry string) (string, error) {
	return "session-1", nil
}

func (g *fakeGateway) BindConfirm(ctx context.Context, sessionID, otp string) (*atmos.BoundCard, error) {
	if otp != g.otp {
		return nil, atmos.ErrOTPInvalid
	}
	return &atmos.BoundCard{Token: "tok-abc", MaskedPAN: "860012******1234"}, nil
}

func (g *fakeGateway) BindResend(ctx context.Context, sessionID string) error {
	g.resent = append(g.resent, sessionID)
	return nil
}

func (g *fakeGateway) CreatePay(ctx context.Context, amount int64, account string) (string, error) {
	g.nextPayID++
	return "pay-" + uuid.NewString()[:8], nil
}

func (g *fakeGateway) ApplyPay(ctx context.Context, token, transID string) error {
	if g.applyErr != nil {
		return g.applyErr
	}
	g.applied = append(g.applied, transID)
	return nil
}

func (g *fakeGateway) RemoveCard(ctx context.Context, token string) error {
	g.removed = append(g.removed, token)
	return nil
}

type fixture struct {
	srv   *httptest.Server
	gw    *fakeGateway
	user  *entitlement.User
	users *entitlement.MemoryUserRepository
	cards *cards.MemoryRepository
	txs   *ledger.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := entitlement.NewMemoryUserRepository()
	txs := ledger.NewMemoryRepository()
	cardRepo := cards.NewMemoryRepository()
	plans := plan.NewInMemSource(
		plan.Plan{ID: "premium", Name: "Premium", Price: 999900, DurationDays: 30, Type: plan.TypeSubscription, TrialDays: 3},
	)
	activator := entitlement.NewActivator(users,
		entitlement.NewMemorySubscriptionRepository(),
		entitlement.NewMemoryPaymentRepository(), nil)
	engine := billing.NewEngine(txs, users, plans, activator, billing.NopRunner{})

	user := &entitlement.User{ID: uuid.New(), TelegramID: 777}
	require.NoError(t, users.Create(context.Background(), user))

	gw := &fakeGateway{otp: "123456"}
	h := atmos.NewHandler(atmos.Config{StoreID: "store-1"}, atmos.Deps{
		Gateway:   gw,
		Engine:    engine,
		Store:     cards.NewStore(cardRepo),
		Cards:     cardRepo,
		Users:     users,
		Plans:     plans,
		Activator: activator,
	}, nil)

	srv := httptest.NewServer(h.Handle())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, gw: gw, user: user, users: users, cards: cardRepo, txs: txs}
}

type reply struct {
	Success      bool   `json:"success"`
	Session      string `json:"session"`
	Token        string `json:"token"`
	MaskedPAN    string `json:"masked_pan"`
	TrialGranted bool   `json:"trial_granted"`
	Error        string `json:"error"`
}

func (f *fixture) post(t *testing.T, path string, body any) reply {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *fixture) bindCard(t *testing.T) {
	t.Helper()

	created := f.post(t, "/create-card-token", map[string]any{
		"telegram_id": f.user.TelegramID,
		"card_number": "8600123412341234",
		"expiry":      "2509",
	})
	require.True(t, created.Success)

	verified := f.post(t, "/verify-card-token", map[string]any{
		"telegram_id": f.user.TelegramID,
		"session":     created.Session,
		"otp":         "123456",
		"plan_id":     "premium",
	})
	require.True(t, verified.Success)
}

func TestHandler_CardBinding(t *testing.T) {
	t.Parallel()

	t.Run("first verification saves card and grants trial", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		created := f.post(t, "/create-card-token", map[string]any{
			"telegram_id": f.user.TelegramID,
			"card_number": "8600123412341234",
			"expiry":      "2509",
		})
		require.True(t, created.Success)
		assert.Equal(t, "session-1", created.Session)

		verified := f.post(t, "/verify-card-token", map[string]any{
			"telegram_id": f.user.TelegramID,
			"session":     created.Session,
			"otp":         "123456",
			"plan_id":     "premium",
		})
		require.True(t, verified.Success)
		assert.Equal(t, "tok-abc", verified.Token)
		assert.True(t, verified.TrialGranted)

		card, err := f.cards.GetByOwner(context.Background(), f.user.TelegramID, ledger.ProviderAtmos)
		require.NoError(t, err)
		assert.True(t, card.Usable())

		user, err := f.users.GetByID(context.Background(), f.user.ID)
		require.NoError(t, err)
		assert.True(t, user.HasAccess(time.Now().UTC()))
	})

	t.Run("wrong code is rejected without saving", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		out := f.post(t, "/verify-card-token", map[string]any{
			"telegram_id": f.user.TelegramID,
			"session":     "session-1",
			"otp":         "000000",
			"plan_id":     "premium",
		})
		assert.False(t, out.Success)
		assert.Equal(t, "invalid code", out.Error)

		_, err := f.cards.GetByOwner(context.Background(), f.user.TelegramID, ledger.ProviderAtmos)
		assert.ErrorIs(t, err, cards.ErrCardNotFound)
	})

	t.Run("resend forwards the session", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		out := f.post(t, "/resend-code", map[string]any{"session": "session-1"})
		require.True(t, out.Success)
		assert.Equal(t, []string{"session-1"}, f.gw.resent)
	})
}

func TestHandler_Charge(t *testing.T) {
	t.Parallel()

	t.Run("debits token and settles ledger", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.bindCard(t)

		// Trial from binding blocks a charge; drop it to simulate a user
		// whose trial has lapsed.
		user, err := f.users.GetByID(context.Background(), f.user.ID)
		require.NoError(t, err)
		user.IsActive = false
		require.NoError(t, f.users.Update(context.Background(), user))

		out := f.post(t, "/charge", map[string]any{
			"telegram_id": f.user.TelegramID,
			"plan_id":     "premium",
		})
		require.True(t, out.Success, out.Error)
		require.Len(t, f.gw.applied, 1)

		tx, err := f.txs.GetByTransID(context.Background(), ledger.ProviderAtmos, f.gw.applied[0])
		require.NoError(t, err)
		assert.Equal(t, ledger.StatePaid, tx.State)
		assert.Equal(t, int64(999900), tx.Amount)

		user, err = f.users.GetByID(context.Background(), f.user.ID)
		require.NoError(t, err)
		assert.True(t, user.HasAccess(time.Now().UTC()))
	})

	t.Run("failed debit cancels the pending transaction", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.bindCard(t)

		user, err := f.users.GetByID(context.Background(), f.user.ID)
		require.NoError(t, err)
		user.IsActive = false
		require.NoError(t, f.users.Update(context.Background(), user))

		f.gw.applyErr = errors.New("insufficient funds")
		out := f.post(t, "/charge", map[string]any{
			"telegram_id": f.user.TelegramID,
			"plan_id":     "premium",
		})
		assert.False(t, out.Success)

		_, err = f.txs.FindPending(context.Background(), ledger.ProviderAtmos, f.user.ID, "premium")
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("active subscriber is refused before any debit", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.bindCard(t)

		out := f.post(t, "/charge", map[string]any{
			"telegram_id": f.user.TelegramID,
			"plan_id":     "premium",
		})
		assert.False(t, out.Success)
		assert.Equal(t, "subscription already active", out.Error)
		assert.Empty(t, f.gw.applied)
	})

	t.Run("no saved card", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		out := f.post(t, "/charge", map[string]any{
			"telegram_id": f.user.TelegramID,
			"plan_id":     "premium",
		})
		assert.False(t, out.Success)
		assert.Equal(t, "no saved card", out.Error)
	})
}

func TestRevoker(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	r := atmos.NewRevoker(gw)
	err := r.RevokeToken(context.Background(), cards.SavedCard{Token: "tok-abc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-abc"}, gw.removed)
}
