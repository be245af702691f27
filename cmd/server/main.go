package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bazar_back_end/internal/cache"
	"bazar_back_end/internal/checkout"
	"bazar_back_end/internal/config"
	"bazar_back_end/internal/database"
	"bazar_back_end/internal/database/cql"
	"bazar_back_end/internal/handlers"
	"bazar_back_end/internal/middleware"
	"bazar_back_end/internal/notify"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/payment"
	"bazar_back_end/internal/pricing"
	"bazar_back_end/internal/profile"
	"bazar_back_end/internal/reconcile"
	"bazar_back_end/internal/routes"
	"bazar_back_end/internal/search"
	"bazar_back_end/internal/tasks"
	"bazar_back_end/internal/telemetry"
	"bazar_back_end/internal/tracking"
	"bazar_back_end/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.Environment)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decimal.MarshalJSONWithoutQuotes = true

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	gateway, err := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.PublicBaseURL+"/checkout/complete")
	if err != nil {
		return err
	}
	logger.Info("stripe initialised")

	conns, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer conns.Close()

	// Stores
	var (
		orderRepo  orders.Repository
		reconStore reconcile.Store
	)
	switch cfg.OrderStore {
	case "scylla":
		session := cql.NewSession(conns.Orders)
		orderRepo = orders.NewScyllaRepository(session, logger)
		reconStore = reconcile.NewScyllaStore(session)
	case "postgres":
		pg := orders.NewPostgresRepository(conns.Postgres)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		ps := reconcile.NewPostgresStore(conns.Postgres)
		if err := ps.EnsureSchema(ctx); err != nil {
			return err
		}
		orderRepo, reconStore = pg, ps
	default:
		logger.Warn("orders are kept in memory and lost on restart")
		orderRepo = orders.NewMemoryRepository()
		reconStore = reconcile.NewMemoryStore()
	}

	var profileRepo profile.Repository
	if conns.Users != nil {
		profileRepo = profile.NewScyllaRepository(cql.NewSession(conns.Users))
	} else {
		logger.Warn("no users keyspace configured, profiles are kept in memory")
		profileRepo = profile.NewMemoryRepository()
	}

	var (
		kv interface {
			cache.Cache
			cache.Counter
			cache.Publisher
			cache.Subscriber
		}
		sessions checkout.SessionStore
	)
	if conns.Redis != nil {
		kv = cache.NewRedis(conns.Redis)
		sessions = checkout.NewRedisSessionStore(conns.Redis, cfg.CheckoutStateTTL)
	} else {
		kv = cache.NewMemory()
		sessions = checkout.NewMemorySessionStore()
	}

	// Background work
	queue := tasks.NewQueue(cfg.TaskWorkers, cfg.TaskQueueSize, cfg.TaskTimeout, logger)
	queue.Start()

	var mailer notify.Mailer = notify.LogMailer{Logger: logger}
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}

	// Services
	prices := pricing.Config{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		DefaultShippingCost:   cfg.DefaultShippingCost,
	}
	ledger := orders.NewLedger(orderRepo, orders.WithRefunder(gateway), orders.WithLogger(logger))
	trackingSvc := tracking.NewService(orderRepo, kv, kv, tracking.Config{
		CacheTTL:     cfg.TrackingCacheTTL,
		DeliveryDays: cfg.DeliveryEstimateDays,
	}, logger)
	profiles := profile.NewService(profileRepo, logger)
	reconciler := reconcile.NewProcessor(reconStore, ledger, logger)
	index := search.NewOrderIndex(conns.Elastic, queue, logger)
	if conns.Elastic != nil {
		if err := index.EnsureIndex(ctx); err != nil {
			logger.Warn("order index not ready", "error", err)
		}
	}
	notifier := notify.NewNotifier(mailer, queue, cfg.PublicBaseURL, logger)

	ledger.OnCommit(trackingSvc.OnLedgerEvent)
	ledger.OnCommit(notifier.OnLedgerEvent)
	ledger.OnCommit(index.OnLedgerEvent)

	orchestrator := checkout.NewOrchestrator(checkout.Deps{
		Pricing:  prices,
		Currency: cfg.Currency,
		Gateway:  gateway,
		Ledger:   ledger,
		Sessions: sessions,
		Recorder: reconciler,
		Tasks:    queue,
		Profiles: profiles,
		Logger:   logger,
	})

	// HTTP
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := validation.RegisterBindings(); err != nil {
		return err
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", handlers.SessionHeader},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After", handlers.SessionHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	perIP := middleware.NewIPLimiter(20, 40)
	sweeperDone := make(chan struct{})
	go perIP.RunSweeper(sweeperDone)
	defer close(sweeperDone)

	routes.RegisterRoutes(r, routes.Handlers{
		Orders:   handlers.NewOrderHandler(orchestrator, gateway),
		Payments: handlers.NewPaymentHandler(orchestrator, gateway, reconciler),
		Tracking: handlers.NewTrackingHandler(trackingSvc, kv, cfg.CORSOrigins),
		Account:  handlers.NewAccountHandler(trackingSvc, profiles),
		Shipping: handlers.NewShippingHandler(prices),
		Admin:    handlers.NewAdminHandler(ledger, trackingSvc, index, reconciler),
	}, middleware.NewAuth(cfg.JWTSecret), routes.Limits{
		Counter:      kv,
		TrackPerMin:  cfg.TrackingRateLimit,
		PerIP:        perIP,
		IntentPerMin: 10,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("bazar checkout server listening", "port", cfg.Port, "order_store", cfg.OrderStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("task queue did not drain", "error", err)
	}
	return nil
}
