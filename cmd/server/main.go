package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/modules/atmos"
	"github.com/dmitrymomot/subpay/modules/click"
	"github.com/dmitrymomot/subpay/modules/payme"
	"github.com/dmitrymomot/subpay/modules/telegram"
	"github.com/dmitrymomot/subpay/pkg/config"
	"github.com/dmitrymomot/subpay/pkg/httpserver"
	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/pkg/paylink"
	"github.com/dmitrymomot/subpay/pkg/pending"
	"github.com/dmitrymomot/subpay/pkg/pg"
	"github.com/dmitrymomot/subpay/pkg/redis"
	"github.com/dmitrymomot/subpay/svc/billing"
	"github.com/dmitrymomot/subpay/svc/cards"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

type appConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"subpay"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	PlansFile  string `env:"PLANS_FILE" envDefault:"plans.yml"`
	BaseURL    string `env:"BASE_URL,required"` // BaseURL is the public root the pay and cancel links are built on.
	LinkSecret string `env:"LINK_SECRET,required"`

	PayLinkTTL    time.Duration `env:"PAY_LINK_TTL" envDefault:"24h"`
	PendingTTL    time.Duration `env:"PENDING_CONTENT_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	ClickAPIBaseURL string `env:"CLICK_API_BASE_URL" envDefault:"https://api.click.uz/v2/merchant"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		appCfg   appConfig
		pgCfg    pg.Config
		redisCfg redis.Config
		httpCfg  httpserver.Config
		clickCfg click.Config
		paymeCfg payme.Config
		atmosCfg atmos.Config
		tgCfg    telegram.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&clickCfg)
	config.MustLoad(&paymeCfg)
	config.MustLoad(&atmosCfg)
	config.MustLoad(&tgCfg)

	var level slog.Level
	if err := level.UnmarshalText([]byte(appCfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := logger.New(
		logger.WithService(appCfg.ServiceName),
		logger.WithLevel(level),
		logger.WithFormat(logger.FormatJSON),
	)
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// Storage.
	txRepo := ledger.NewPostgresRepository(pool)
	userRepo := entitlement.NewPostgresUserRepository(pool)
	subRepo := entitlement.NewPostgresSubscriptionRepository(pool)
	payRepo := entitlement.NewPostgresPaymentRepository(pool)
	cardRepo := cards.NewPostgresRepository(pool)
	plans := plan.NewFileSource(appCfg.PlansFile)

	// Outbound side.
	bot, err := telegram.NewBot(tgCfg)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}
	pendingStore := pending.NewRedisStore(redisClient)
	notifier := telegram.NewNotifier(bot,
		telegram.WithPendingStore(pendingStore),
		telegram.WithLogger(log),
		telegram.WithSendTimeout(tgCfg.SendTimeout),
	)
	atmosClient := atmos.NewClient(atmosCfg)

	// Core services.
	activator := entitlement.NewActivator(userRepo, subRepo, payRepo, log)
	engine := billing.NewEngine(txRepo, userRepo, plans, activator, pg.NewPoolRunner(pool),
		billing.WithNotifier(notifier),
		billing.WithLogger(log),
	)
	canceller := entitlement.NewCanceller(userRepo, subRepo, cardRepo,
		map[ledger.Provider]entitlement.TokenRevoker{
			ledger.ProviderClick: click.NewRevoker(clickCfg, appCfg.ClickAPIBaseURL),
			ledger.ProviderAtmos: atmos.NewRevoker(atmosClient),
		}, log)
	sweeper := entitlement.NewSweeper(userRepo, subRepo, log)

	// HTTP surface.
	checkout := func(provider, planID string, userID uuid.UUID, amount int64) (string, error) {
		switch ledger.Provider(provider) {
		case ledger.ProviderClick:
			return click.CheckoutURL(clickCfg, planID, userID, billing.Amount(amount)), nil
		case ledger.ProviderPayme:
			return payme.CheckoutURL(paymeCfg, planID, userID, billing.Amount(amount)), nil
		default:
			return "", fmt.Errorf("no checkout for provider %q", provider)
		}
	}

	r := chi.NewRouter()
	r.Mount("/payments/click", click.NewHandler(clickCfg, engine, log).Handle())
	r.Mount("/payments/payme", payme.NewHandler(paymeCfg, engine, log).Handle())
	r.Mount("/payments/atmos", atmos.NewHandler(atmosCfg, atmos.Deps{
		Gateway:   atmosClient,
		Engine:    engine,
		Store:     cards.NewStore(cardRepo),
		Cards:     cardRepo,
		Users:     userRepo,
		Plans:     plans,
		Activator: activator,
	}, log).Handle())
	r.Mount("/", paylink.NewHandler(appCfg.LinkSecret, checkout, canceller, log).Handle())
	r.Get("/health", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))

	go sweepLoop(ctx, sweeper, appCfg.SweepInterval, log)

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	log.InfoContext(ctx, "server starting", slog.String("addr", httpCfg.Addr))
	return srv.Run(ctx, r)
}

// sweepLoop periodically expires lapsed subscriptions.
func sweepLoop(ctx context.Context, sweeper *entitlement.Sweeper, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweeper.HandleExpired(ctx); err != nil {
				log.ErrorContext(ctx, "subscription sweep failed", logger.Error(err))
			}
		}
	}
}
