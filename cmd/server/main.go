package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cinema-seat-booking/internal/clock"
	"github.com/iliyamo/cinema-seat-booking/internal/config"
	"github.com/iliyamo/cinema-seat-booking/internal/database"
	"github.com/iliyamo/cinema-seat-booking/internal/handler"
	"github.com/iliyamo/cinema-seat-booking/internal/middleware"
	"github.com/iliyamo/cinema-seat-booking/internal/payment"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/metrics"
	"github.com/iliyamo/cinema-seat-booking/internal/queue"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
	"github.com/iliyamo/cinema-seat-booking/internal/repository/memory"
	"github.com/iliyamo/cinema-seat-booking/internal/router"
	"github.com/iliyamo/cinema-seat-booking/internal/service"
	"github.com/iliyamo/cinema-seat-booking/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger.Set(logger.NewLogger(cfg.Env))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	clk := clock.NewSystem()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var m *metrics.Metrics
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		m = metrics.New()
		gatherer = prometheus.DefaultGatherer
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	var dispatcher service.Dispatcher = service.NewLogDispatcher(logger.Get())
	if cfg.AMQPURL != "" {
		dispatcher = queue.NewPublisher(cfg.AMQPURL)
	}

	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.PaymentCurrency,
		SeatPrice:     cfg.SeatPriceMinor,
	})
	if !gateway.Configured() {
		logger.Warn("STRIPE_SECRET_KEY not set, checkout and webhooks are disabled")
	}

	locks := service.NewLockManager(store, clk, cfg.SeatLockTTL, m)
	bookings := service.NewBookingCoordinator(store, clk, service.NewNotifier(store.Bookings(), dispatcher, m), m)
	ledger := service.NewLedger(store.PaymentEvents(), clk, m)

	var lease worker.Lease
	if cfg.ReaperLease && rdb != nil {
		lease = worker.NewRedisLease(rdb, "seat-reaper:lease", cfg.ReaperInterval)
	}
	reaper := worker.NewReaper(locks, clk, cfg.ReaperInterval, cfg.SeatLockTTL, lease, m)

	seats := handler.NewSeatHandler(locks, bookings, store.Catalog(), gateway)
	seats.BaseURL = cfg.PublicBaseURL
	seats.SeatPrice = cfg.SeatPriceMinor
	seats.DemoEnabled = !cfg.IsProduction()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()
	e.Use(echomw.Recover(), middleware.RequestID(), middleware.RequestLogger(), middleware.Prometheus(m))

	router.RegisterRoutes(e, gatherer)
	router.RegisterAuth(e, handler.NewAuthHandler(store.Users(), cfg.JWTSecret, cfg.AccessTTLMin), cfg.JWTSecret)
	router.RegisterSeats(e, seats, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterWebhooks(e, handler.NewWebhookHandler(gateway, ledger, bookings))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		reaper.Start(gctx)
		return nil
	})
	if cfg.AMQPURL != "" {
		consumer := queue.NewConsumer(cfg.AMQPURL, cfg.NotificationLogDir)
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		s := memory.New()
		if err := seedDemo(ctx, s, cfg.BcryptCost); err != nil {
			return nil, nil, err
		}
		logger.Warn("using in-memory store, data is lost on exit")
		return s, func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := database.MigrateUp(database.MigrationDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)); err != nil {
			return nil, nil, err
		}
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewMySQLStore(db), func() { _ = db.Close() }, nil
}
