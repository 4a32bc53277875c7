// Package notifier собирает сервис уведомлений о коэффициентах: хранилище,
// кэш фида, брокер, планировщик задач и HTTP API.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/odds-notifier/internal/cache"
	"github.com/magabrotheeeer/odds-notifier/internal/config"
	"github.com/magabrotheeeer/odds-notifier/internal/feed"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/admin/grant"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/admin/revoke"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/admin/weeklystats"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/health"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/matches/search"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/payment/paymentcheck"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/payment/paymentcreate"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/users/access"
	"github.com/magabrotheeeer/odds-notifier/internal/http/handlers/users/register"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/jwt"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/metrics"
	"github.com/magabrotheeeer/odds-notifier/internal/migrations"
	"github.com/magabrotheeeer/odds-notifier/internal/notification"
	"github.com/magabrotheeeer/odds-notifier/internal/paymentprovider"
	"github.com/magabrotheeeer/odds-notifier/internal/rabbitmq"
	"github.com/magabrotheeeer/odds-notifier/internal/services/ledger"
	"github.com/magabrotheeeer/odds-notifier/internal/services/matcher"
	"github.com/magabrotheeeer/odds-notifier/internal/services/odds"
	"github.com/magabrotheeeer/odds-notifier/internal/services/payment"
	"github.com/magabrotheeeer/odds-notifier/internal/services/scheduler"
	searchsvc "github.com/magabrotheeeer/odds-notifier/internal/services/search"
	"github.com/magabrotheeeer/odds-notifier/internal/services/stats"
	"github.com/magabrotheeeer/odds-notifier/internal/storage/memory"
	"github.com/magabrotheeeer/odds-notifier/internal/storage/postgresql"
)

const shutdownTimeout = 15 * time.Second

// Store методы хранилища, нужные сервисам. Реализуется PostgreSQL и памятью.
type Store interface {
	ledger.Repository
	matcher.Repository
	stats.Repository
	scheduler.Repository
	payment.LinkRepository
	Close() error
}

// App процесс сервиса.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        Store
	cache     *cache.Cache
	amqp      *amqp.Connection
	scheduler *scheduler.Scheduler
	consumer  *amqp.Channel
	settle    *payment.Settlement
}

// New поднимает зависимости и собирает HTTP сервер. Ошибка подключения
// к любой обязательной зависимости прерывает запуск.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.notifier.New"

	plans, err := cfg.Plans()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rules, err := cfg.TargetRules()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clk := clock.UTC{}

	app := &App{logger: logger}
	checks := make(map[string]health.Check)

	db, err := openStore(cfg.Storage, logger, checks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	app.db = db

	var cacheOpts []odds.Option
	if cfg.RedisConnection.Address != "" {
		redisCache, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.cache = redisCache
		cacheOpts = append(cacheOpts, odds.WithSnapshotStore(redisCache, cfg.OddsCache.SnapshotKey))
		checks["redis"] = func(ctx context.Context) error {
			return redisCache.Db.Ping(ctx).Err()
		}
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	app.amqp = conn
	checks["rabbitmq"] = func(context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}

	consumerCh, err := rabbitmq.SetupChannel(conn, rabbitmq.Queues())
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	app.consumer = consumerCh
	notifyCh, err := conn.Channel()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	paymentsCh, err := conn.Channel()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	feedClient := feed.NewClient(cfg.Feed.APIKey, logger,
		feed.WithBaseURL(cfg.Feed.BaseURL),
		feed.WithTimeout(cfg.Feed.Timeout),
		feed.WithRateLimit(cfg.Feed.RateLimit, 1),
		feed.WithRegions(cfg.Feed.Regions),
		feed.WithMarkets(cfg.Feed.Markets),
	)
	oddsCache := odds.New(feedClient, cfg.OddsCache.TTL, clk, logger, m, cacheOpts...)
	oddsCache.Warm(ctx)

	publisher := notification.NewPublisher(notifyCh, logger, m)
	ledgerService := ledger.New(db, plans, cfg.Trial.InitialQuota, clk, logger, m)
	matcherService := matcher.New(db, rules, clk, logger)
	statsService := stats.New(db, clk, logger)
	searchService := searchsvc.New(ledgerService, oddsCache, matcherService, cfg.Matching.SearchMin, cfg.Matching.SearchMax, logger)

	providerClient := paymentprovider.NewClient(cfg.Payment)
	registry := payment.NewRegistry(db, providerClient, plans, clk, logger)
	settlement := payment.NewSettlement(registry, ledgerService, publisher, plans, logger, m)
	app.settle = settlement
	settlementQueue := payment.NewSettlementQueue(paymentsCh)

	app.scheduler = scheduler.New(scheduler.Deps{
		Odds:       oddsCache,
		Matcher:    matcherService,
		Repo:       db,
		Notifier:   publisher,
		Stats:      statsService,
		Reconciler: settlement,
	}, cfg.Schedule, cfg.AdminIDs, plans, clk, logger, m)

	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.SecretKey, cfg.JWTToken.TokenTTL)
	limiter := rate.NewLimiter(rate.Limit(cfg.HTTPServer.RateLimit), cfg.HTTPServer.RateBurst)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, jwtMaker, limiter, Handlers{
		Register:     register.New(logger, ledgerService),
		Access:       access.New(logger, ledgerService),
		Search:       search.New(logger, searchService),
		PaymentLink:  paymentcreate.New(logger, ledgerService, registry),
		PaymentCheck: paymentcheck.New(logger, registry, settlement),
		Webhook:      paymentwebhook.New(logger, settlementQueue, cfg.Payment.WebhookSecret),
		Grant:        grant.New(logger, ledgerService, publisher, plans),
		Revoke:       revoke.New(logger, ledgerService, publisher),
		WeeklyStats:  weeklystats.New(logger, statsService),
		Health:       health.New(logger, checks),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	app.server = &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	return app, nil
}

func openStore(cfg config.Storage, logger *slog.Logger, checks map[string]health.Check) (Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	case "postgres", "":
		db, err := postgresql.New(cfg.ConnectionString)
		if err != nil {
			return nil, err
		}
		if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, err
		}
		checks["postgres"] = db.CheckDatabaseReady
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Run запускает потребителя оплат, планировщик и HTTP сервер. Возвращается
// после отмены ctx и корректной остановки всех частей.
func (a *App) Run(ctx context.Context) error {
	const op = "app.notifier.Run"

	if err := rabbitmq.ConsumerMessage(ctx, a.consumer, rabbitmq.QueueSettlements, a.logger, a.settle.HandleSettlementMessage); err != nil {
		a.close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		a.close()
		return fmt.Errorf("%s: %w", op, err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.scheduler.Stop()
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.scheduler.Stop()
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Error("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
