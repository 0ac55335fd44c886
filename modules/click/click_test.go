package click_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subpay/modules/click"
	"github.com/dmitrymomot/subpay/svc/billing"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

var testCfg = click.Config{
	ServiceID:      "12345",
	MerchantID:     "67890",
	SecretKey:      "test-secret",
	MerchantUserID: "11111",
}

type fixture struct {
	srv   *httptest.Server
	user  *entitlement.User
	users *entitlement.MemoryUserRepository
	txs   *ledger.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := entitlement.NewMemoryUserRepository()
	txs := ledger.NewMemoryRepository()
	plans := plan.NewInMemSource(
		plan.Plan{ID: "premium", Name: "Premium", Price: 999900, DurationDays: 30, Type: plan.TypeSubscription},
	)
	activator := entitlement.NewActivator(users,
		entitlement.NewMemorySubscriptionRepository(),
		entitlement.NewMemoryPaymentRepository(), nil)
	engine := billing.NewEngine(txs, users, plans, activator, billing.NopRunner{})

	user := &entitlement.User{ID: uuid.New(), TelegramID: 42}
	require.NoError(t, users.Create(context.Background(), user))

	h := click.NewHandler(testCfg, engine, nil)
	srv := httptest.NewServer(h.Handle())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, user: user, users: users, txs: txs}
}

// sign reproduces the provider's MD5 concatenation for a callback.
func sign(form url.Values) string {
	s := form.Get("click_trans_id") + form.Get("service_id") + testCfg.SecretKey + form.Get("merchant_trans_id")
	if form.Get("action") == "1" {
		s += form.Get("merchant_prepare_id")
	}
	s += form.Get("amount") + form.Get("action") + form.Get("sign_time")
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type callbackReply struct {
	ClickTransID      string `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID string `json:"merchant_prepare_id"`
	MerchantConfirmID string `json:"merchant_confirm_id"`
	Error             int32  `json:"error"`
	ErrorNote         string `json:"error_note"`
}

func (f *fixture) callback(t *testing.T, form url.Values, signed bool) callbackReply {
	t.Helper()

	if signed {
		form.Set("sign_string", sign(form))
	}
	resp, err := http.Post(f.srv.URL+"/", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply callbackReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return reply
}

func (f *fixture) prepareForm(clickTransID string) url.Values {
	form := url.Values{}
	form.Set("click_trans_id", clickTransID)
	form.Set("service_id", testCfg.ServiceID)
	form.Set("merchant_trans_id", "premium."+f.user.ID.String())
	form.Set("amount", "9999.00")
	form.Set("action", "0")
	form.Set("error", "0")
	form.Set("sign_time", time.Now().Format("2006-01-02 15:04:05"))
	return form
}

func (f *fixture) completeForm(clickTransID, prepareID, errCode string) url.Values {
	form := f.prepareForm(clickTransID)
	form.Set("action", "1")
	form.Set("merchant_prepare_id", prepareID)
	form.Set("error", errCode)
	return form
}

func TestHandler_Prepare(t *testing.T) {
	t.Parallel()

	t.Run("creates pending transaction", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		reply := f.callback(t, f.prepareForm("ct-1"), true)
		require.Equal(t, int32(0), reply.Error, reply.ErrorNote)
		require.NotEmpty(t, reply.MerchantPrepareID)

		tx, err := f.txs.GetByTransID(context.Background(), ledger.ProviderClick, "ct-1")
		require.NoError(t, err)
		assert.Equal(t, reply.MerchantPrepareID, tx.ID.String())
		assert.Equal(t, ledger.StatePending, tx.State)
		assert.Equal(t, int64(999900), tx.Amount)
	})

	t.Run("bad signature is refused before any write", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		form := f.prepareForm("ct-2")
		form.Set("sign_string", "deadbeef")
		reply := f.callback(t, form, false)
		assert.Equal(t, int32(-1), reply.Error)

		_, err := f.txs.GetByTransID(context.Background(), ledger.ProviderClick, "ct-2")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		form := f.prepareForm("ct-3")
		form.Set("amount", "5000.00")
		reply := f.callback(t, form, true)
		assert.Equal(t, int32(-2), reply.Error)
	})

	t.Run("unknown plan in reference", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		form := f.prepareForm("ct-4")
		form.Set("merchant_trans_id", "gold."+f.user.ID.String())
		reply := f.callback(t, form, true)
		assert.Equal(t, int32(-5), reply.Error)
	})

	t.Run("retry reuses the open order", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		first := f.callback(t, f.prepareForm("ct-5"), true)
		require.Equal(t, int32(0), first.Error)

		// Same user and plan, new external id: the open row is reused.
		second := f.callback(t, f.prepareForm("ct-6"), true)
		require.Equal(t, int32(0), second.Error)
		assert.Equal(t, first.MerchantPrepareID, second.MerchantPrepareID)
	})

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		form := f.prepareForm("ct-7")
		form.Set("action", "2")
		reply := f.callback(t, form, true)
		assert.Equal(t, int32(-3), reply.Error)
	})
}

func TestHandler_Complete(t *testing.T) {
	t.Parallel()

	t.Run("pays and activates", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		prep := f.callback(t, f.prepareForm("ct-10"), true)
		require.Equal(t, int32(0), prep.Error)

		reply := f.callback(t, f.completeForm("ct-10", prep.MerchantPrepareID, "0"), true)
		require.Equal(t, int32(0), reply.Error, reply.ErrorNote)
		assert.NotEmpty(t, reply.MerchantConfirmID)

		tx, err := f.txs.GetByTransID(context.Background(), ledger.ProviderClick, "ct-10")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatePaid, tx.State)

		user, err := f.users.GetByID(context.Background(), f.user.ID)
		require.NoError(t, err)
		assert.True(t, user.HasAccess(time.Now().UTC()))
	})

	t.Run("upstream failure records provider code, acks success", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		prep := f.callback(t, f.prepareForm("ct-11"), true)
		require.Equal(t, int32(0), prep.Error)

		reply := f.callback(t, f.completeForm("ct-11", prep.MerchantPrepareID, "-5017"), true)
		require.Equal(t, int32(0), reply.Error, reply.ErrorNote)

		tx, err := f.txs.GetByTransID(context.Background(), ledger.ProviderClick, "ct-11")
		require.NoError(t, err)
		assert.Equal(t, ledger.StateFailed, tx.State)
		assert.Equal(t, int32(-5017), tx.CancelReason, "audit trail keeps the upstream cause")

		user, err := f.users.GetByID(context.Background(), f.user.ID)
		require.NoError(t, err)
		assert.False(t, user.HasAccess(time.Now().UTC()))
	})

	t.Run("replayed complete is idempotent", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		prep := f.callback(t, f.prepareForm("ct-12"), true)
		require.Equal(t, int32(0), prep.Error)

		form := f.completeForm("ct-12", prep.MerchantPrepareID, "0")
		first := f.callback(t, form, true)
		require.Equal(t, int32(0), first.Error)

		second := f.callback(t, form, true)
		require.Equal(t, int32(0), second.Error)
		assert.Equal(t, first.MerchantConfirmID, second.MerchantConfirmID)
	})

	t.Run("unknown prepare id", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		reply := f.callback(t, f.completeForm("ct-13", uuid.NewString(), "0"), true)
		assert.Equal(t, int32(-6), reply.Error)
	})
}

func TestHandler_ActiveSubscriber(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	prep := f.callback(t, f.prepareForm("ct-20"), true)
	require.Equal(t, int32(0), prep.Error)
	complete := f.callback(t, f.completeForm("ct-20", prep.MerchantPrepareID, "0"), true)
	require.Equal(t, int32(0), complete.Error)

	// A fresh attempt while the subscription is live is acknowledged as
	// already paid, not as an error the provider would retry.
	reply := f.callback(t, f.prepareForm("ct-21"), true)
	assert.Equal(t, int32(-4), reply.Error)
}

func TestCheckoutURL(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	link := click.CheckoutURL(testCfg, "premium", userID, 999900)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "my.click.uz", u.Host)
	q := u.Query()
	assert.Equal(t, testCfg.ServiceID, q.Get("service_id"))
	assert.Equal(t, "9999.00", q.Get("amount"))
	assert.Equal(t, "premium."+userID.String(), q.Get("transaction_param"))
}
