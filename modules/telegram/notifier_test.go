package telegram_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subpay/modules/telegram"
	"github.com/dmitrymomot/subpay/pkg/pending"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/plan"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []bot.SendMessageParams
	err      error
}

func (s *fakeSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.messages = append(s.messages, *params)
	return &models.Message{}, nil
}

func (s *fakeSender) sent() []bot.SendMessageParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bot.SendMessageParams(nil), s.messages...)
}

func testUser() *entitlement.User {
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	return &entitlement.User{TelegramID: 42, IsActive: true, SubscriptionEnd: &end}
}

func TestNotifier_SubscriptionActivated(t *testing.T) {
	t.Parallel()

	t.Run("message carries plan name and end date", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		n := telegram.NewNotifier(sender)

		err := n.SubscriptionActivated(context.Background(), testUser(),
			plan.Plan{ID: "premium", Name: "Premium", DurationDays: 30, Type: plan.TypeSubscription})
		require.NoError(t, err)

		msgs := sender.sent()
		require.Len(t, msgs, 1)
		assert.Equal(t, int64(42), msgs[0].ChatID)
		assert.Contains(t, msgs[0].Text, "Premium")
		assert.Contains(t, msgs[0].Text, "01.07.2025")
	})

	t.Run("lifetime plan omits the end date", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		n := telegram.NewNotifier(sender)

		err := n.SubscriptionActivated(context.Background(), testUser(),
			plan.Plan{ID: "lifetime", Name: "Lifetime", Type: plan.TypeOnetime})
		require.NoError(t, err)

		msgs := sender.sent()
		require.Len(t, msgs, 1)
		assert.NotContains(t, msgs[0].Text, "до")
	})

	t.Run("pending content is delivered after activation", func(t *testing.T) {
		t.Parallel()

		store := pending.NewMemoryStore()
		require.NoError(t, store.Put(context.Background(), 42, "lesson-17", time.Minute))

		sender := &fakeSender{}
		n := telegram.NewNotifier(sender, telegram.WithPendingStore(store))

		err := n.SubscriptionActivated(context.Background(), testUser(),
			plan.Plan{ID: "premium", Name: "Premium", DurationDays: 30, Type: plan.TypeSubscription})
		require.NoError(t, err)

		msgs := sender.sent()
		require.Len(t, msgs, 2)
		assert.Equal(t, "lesson-17", msgs[1].Text)

		_, err = store.Pop(context.Background(), 42)
		assert.ErrorIs(t, err, pending.ErrNotFound)
	})

	t.Run("send failure is reported", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{err: errors.New("chat not found")}
		n := telegram.NewNotifier(sender)

		err := n.SubscriptionActivated(context.Background(), testUser(),
			plan.Plan{ID: "premium", Name: "Premium", DurationDays: 30, Type: plan.TypeSubscription})
		assert.Error(t, err)
	})
}

func TestNotifier_SubscriptionRevoked(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n := telegram.NewNotifier(sender)

	require.NoError(t, n.SubscriptionRevoked(context.Background(), testUser()))
	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].ChatID)
}
