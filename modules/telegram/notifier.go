package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/pkg/pending"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/plan"
)

// Sender is the slice of the bot API the notifier needs. *bot.Bot
// satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// NewBot builds the production bot client.
func NewBot(cfg Config) (*bot.Bot, error) {
	return bot.New(cfg.BotToken)
}

// Notifier delivers subscription lifecycle messages to the user's chat.
// It runs strictly after ledger commits; a failed delivery is logged and
// swallowed, never propagated into payment processing.
type Notifier struct {
	sender  Sender
	store   pending.Store
	log     *slog.Logger
	timeout time.Duration
}

type Option func(*Notifier)

// WithPendingStore enables auto-delivery of the content the user asked
// about before paying.
func WithPendingStore(store pending.Store) Option {
	return func(n *Notifier) { n.store = store }
}

func WithLogger(log *slog.Logger) Option {
	return func(n *Notifier) { n.log = log }
}

func WithSendTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.timeout = d }
}

func NewNotifier(sender Sender, opts ...Option) *Notifier {
	n := &Notifier{
		sender:  sender,
		log:     logger.Discard(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) SubscriptionActivated(ctx context.Context, user *entitlement.User, p plan.Plan) error {
	var text string
	if p.IsLifetime() || user.SubscriptionEnd == nil {
		text = fmt.Sprintf("✅ Подписка <b>%s</b> активирована.", p.Name)
	} else {
		text = fmt.Sprintf("✅ Подписка <b>%s</b> активирована до %s.",
			p.Name, user.SubscriptionEnd.Format("02.01.2006"))
	}
	if err := n.send(ctx, user.TelegramID, text); err != nil {
		return err
	}

	n.deliverPending(ctx, user.TelegramID)
	return nil
}

func (n *Notifier) SubscriptionRevoked(ctx context.Context, user *entitlement.User) error {
	return n.send(ctx, user.TelegramID, "Подписка отменена. Доступ к материалам закрыт.")
}

// deliverPending pushes the content the user requested before checkout.
// Absence is the normal case.
func (n *Notifier) deliverPending(ctx context.Context, telegramID int64) {
	if n.store == nil {
		return
	}
	content, err := n.store.Pop(ctx, telegramID)
	if err != nil {
		if !errors.Is(err, pending.ErrNotFound) {
			n.log.ErrorContext(ctx, "pending content lookup failed", logger.Error(err))
		}
		return
	}
	if err := n.send(ctx, telegramID, content); err != nil {
		n.log.ErrorContext(ctx, "pending content delivery failed", logger.Error(err))
	}
}

func (n *Notifier) send(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}
